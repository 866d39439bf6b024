//go:build windows

package tsf

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"

	"github.com/go-ole/go-ole"

	"hyperimswitch/internal/profile"
)

// ITfInputProcessorProfiles vtable slots. IUnknown occupies 0-2.
const (
	slotGetDefaultLanguageProfile     = 8
	slotSetDefaultLanguageProfile     = 9
	slotActivateLanguageProfile       = 10
	slotGetActiveLanguageProfile      = 11
	slotGetLanguageProfileDescription = 12
	slotGetCurrentLanguage            = 13
	slotChangeCurrentLanguage         = 14
	slotGetLanguageList               = 15
	slotEnumLanguageProfiles          = 16
	slotEnableLanguageProfile         = 17
	slotIsEnabledLanguageProfile      = 18

	slotEnumNext = 4

	slotThreadMgrActivate             = 3
	slotThreadMgrDeactivate           = 4
	slotThreadMgrGetGlobalCompartment = 13
	slotCompartmentMgrGetCompartment  = 3
	slotCompartmentSetValue           = 3
)

// tfLanguageProfile matches the native TF_LANGUAGEPROFILE layout (56 bytes).
type tfLanguageProfile struct {
	clsid   ole.GUID
	langid  uint16
	catid   ole.GUID
	active  int32
	profile ole.GUID
}

// COM is the go-ole backed Subsystem.
type COM struct{}

// NewCOM returns the native subsystem.
func NewCOM() *COM { return &COM{} }

func (*COM) InitThread() error {
	err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED)
	if err == nil {
		return nil
	}
	// S_FALSE: this thread already joined the apartment.
	var oleErr *ole.OleError
	if errors.As(err, &oleErr) && oleErr.Code() == uintptr(StatusFalse) {
		return nil
	}
	return fmt.Errorf("CoInitializeEx(STA): %w", err)
}

func (*COM) UninitThread() { ole.CoUninitialize() }

func (*COM) OpenProfiles() (Profiles, error) {
	unk, err := ole.CreateInstance(CLSIDInputProcessorProfiles, IIDInputProcessorProfiles)
	if err != nil {
		return nil, fmt.Errorf("create ITfInputProcessorProfiles: %w", err)
	}
	return &comProfiles{unk: unk}, nil
}

func (*COM) SetGlobalConversionMode(mode uint32) error {
	threadMgr, err := ole.CreateInstance(CLSIDThreadMgr, IIDThreadMgr)
	if err != nil {
		return fmt.Errorf("create ITfThreadMgr: %w", err)
	}
	defer threadMgr.Release()

	var clientID uint32
	if err := Check("ITfThreadMgr.Activate", call(threadMgr, slotThreadMgrActivate, uintptr(unsafe.Pointer(&clientID)))); err != nil {
		return err
	}
	defer call(threadMgr, slotThreadMgrDeactivate)

	var compartmentMgr *ole.IUnknown
	if err := Check("ITfThreadMgr.GetGlobalCompartment",
		call(threadMgr, slotThreadMgrGetGlobalCompartment, uintptr(unsafe.Pointer(&compartmentMgr)))); err != nil {
		return err
	}
	if compartmentMgr == nil {
		return errors.New("ITfThreadMgr.GetGlobalCompartment returned nil")
	}
	defer compartmentMgr.Release()

	var compartment *ole.IUnknown
	if err := Check("ITfCompartmentMgr.GetCompartment", call(compartmentMgr, slotCompartmentMgrGetCompartment,
		uintptr(unsafe.Pointer(GUIDCompartmentConversion)), uintptr(unsafe.Pointer(&compartment)))); err != nil {
		return err
	}
	if compartment == nil {
		return errors.New("ITfCompartmentMgr.GetCompartment returned nil")
	}
	defer compartment.Release()

	value := ole.NewVariant(ole.VT_I4, int64(int32(mode)))
	return Check("ITfCompartment.SetValue", call(compartment, slotCompartmentSetValue,
		uintptr(clientID), uintptr(unsafe.Pointer(&value))))
}

type comProfiles struct {
	unk *ole.IUnknown
}

func (p *comProfiles) Release() {
	if p.unk == nil {
		return
	}
	p.unk.Release()
	p.unk = nil
}

func (p *comProfiles) ActivateLanguageProfile(clsid ole.GUID, lang profile.LangID, profileGUID ole.GUID) Status {
	return call(p.unk, slotActivateLanguageProfile,
		uintptr(unsafe.Pointer(&clsid)), uintptr(lang), uintptr(unsafe.Pointer(&profileGUID)))
}

func (p *comProfiles) IsEnabledLanguageProfile(clsid ole.GUID, lang profile.LangID, profileGUID ole.GUID) (bool, Status) {
	var enabled int32
	s := call(p.unk, slotIsEnabledLanguageProfile,
		uintptr(unsafe.Pointer(&clsid)), uintptr(lang), uintptr(unsafe.Pointer(&profileGUID)),
		uintptr(unsafe.Pointer(&enabled)))
	return enabled != 0, s
}

func (p *comProfiles) EnableLanguageProfile(clsid ole.GUID, lang profile.LangID, profileGUID ole.GUID, enable bool) Status {
	return call(p.unk, slotEnableLanguageProfile,
		uintptr(unsafe.Pointer(&clsid)), uintptr(lang), uintptr(unsafe.Pointer(&profileGUID)), boolArg(enable))
}

func (p *comProfiles) ChangeCurrentLanguage(lang profile.LangID) Status {
	return call(p.unk, slotChangeCurrentLanguage, uintptr(lang))
}

func (p *comProfiles) SetDefaultLanguageProfile(lang profile.LangID, clsid ole.GUID, profileGUID ole.GUID) Status {
	return call(p.unk, slotSetDefaultLanguageProfile,
		uintptr(lang), uintptr(unsafe.Pointer(&clsid)), uintptr(unsafe.Pointer(&profileGUID)))
}

func (p *comProfiles) GetDefaultLanguageProfile(lang profile.LangID, catid ole.GUID) (ole.GUID, ole.GUID, Status) {
	var clsid, profileGUID ole.GUID
	s := call(p.unk, slotGetDefaultLanguageProfile,
		uintptr(lang), uintptr(unsafe.Pointer(&catid)),
		uintptr(unsafe.Pointer(&clsid)), uintptr(unsafe.Pointer(&profileGUID)))
	return clsid, profileGUID, s
}

func (p *comProfiles) GetActiveLanguageProfile(clsid ole.GUID) (profile.LangID, ole.GUID, Status) {
	var lang uint16
	var profileGUID ole.GUID
	s := call(p.unk, slotGetActiveLanguageProfile,
		uintptr(unsafe.Pointer(&clsid)), uintptr(unsafe.Pointer(&lang)), uintptr(unsafe.Pointer(&profileGUID)))
	return profile.LangID(lang), profileGUID, s
}

func (p *comProfiles) GetCurrentLanguage() (profile.LangID, Status) {
	var lang uint16
	s := call(p.unk, slotGetCurrentLanguage, uintptr(unsafe.Pointer(&lang)))
	return profile.LangID(lang), s
}

func (p *comProfiles) GetLanguageList() ([]profile.LangID, Status) {
	var list *uint16
	var count uint32
	s := call(p.unk, slotGetLanguageList, uintptr(unsafe.Pointer(&list)), uintptr(unsafe.Pointer(&count)))
	if !s.OK() || list == nil {
		return nil, s
	}
	defer ole.CoTaskMemFree(uintptr(unsafe.Pointer(list)))

	raw := unsafe.Slice(list, count)
	langs := make([]profile.LangID, 0, count)
	for _, lang := range raw {
		langs = append(langs, profile.LangID(lang))
	}
	return langs, s
}

func (p *comProfiles) EnumLanguageProfiles(lang profile.LangID) ([]LanguageProfile, Status) {
	var enum *ole.IUnknown
	s := call(p.unk, slotEnumLanguageProfiles, uintptr(lang), uintptr(unsafe.Pointer(&enum)))
	if !s.OK() || enum == nil {
		return nil, s
	}
	defer enum.Release()

	var out []LanguageProfile
	for {
		var item tfLanguageProfile
		var fetched uint32
		next := call(enum, slotEnumNext, 1, uintptr(unsafe.Pointer(&item)), uintptr(unsafe.Pointer(&fetched)))
		if !next.OK() || fetched == 0 {
			break
		}
		out = append(out, LanguageProfile{
			CLSID:       item.clsid,
			LangID:      profile.LangID(item.langid),
			CatID:       item.catid,
			Active:      item.active != 0,
			ProfileGUID: item.profile,
		})
	}
	return out, s
}

func (p *comProfiles) GetLanguageProfileDescription(clsid ole.GUID, lang profile.LangID, profileGUID ole.GUID) (string, Status) {
	var bstr *uint16
	s := call(p.unk, slotGetLanguageProfileDescription,
		uintptr(unsafe.Pointer(&clsid)), uintptr(lang), uintptr(unsafe.Pointer(&profileGUID)),
		uintptr(unsafe.Pointer(&bstr)))
	if !s.OK() || bstr == nil {
		return "", s
	}
	desc := ole.BstrToString(bstr)
	_ = ole.SysFreeString((*int16)(unsafe.Pointer(bstr)))
	return desc, s
}

// call invokes vtable slot on obj with obj as the implicit this pointer.
func call(obj *ole.IUnknown, slot int, args ...uintptr) Status {
	if obj == nil {
		return StatusUnavailable
	}
	vtbl := unsafe.Pointer(obj.RawVTable)
	fn := *(*uintptr)(unsafe.Add(vtbl, uintptr(slot)*unsafe.Sizeof(uintptr(0))))
	hr, _, _ := syscall.SyscallN(fn, append([]uintptr{uintptr(unsafe.Pointer(obj))}, args...)...)
	return Status(int32(hr))
}

func boolArg(v bool) uintptr {
	if v {
		return 1
	}
	return 0
}
