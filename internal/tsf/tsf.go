// Package tsf wraps the Text Services Framework input-processor profile API.
//
// Every method on Profiles and Subsystem must be called from the thread that
// called Subsystem.InitThread. The switch engine owns that thread.
package tsf

import (
	"github.com/go-ole/go-ole"

	"hyperimswitch/internal/profile"
)

var (
	CLSIDInputProcessorProfiles = ole.NewGUID("{33C53A50-F456-4884-B049-85FD643ECFED}")
	IIDInputProcessorProfiles   = ole.NewGUID("{1F02B6C5-7842-4EE6-8A0B-9A24183A95CA}")
	CLSIDThreadMgr              = ole.NewGUID("{529A9E6B-6587-4F23-AB9E-9C7D683E3C50}")
	IIDThreadMgr                = ole.NewGUID("{AA80E801-2021-11D2-93E0-0060B067B86E}")

	// GUIDCompartmentConversion is GUID_COMPARTMENT_KEYBOARD_INPUTMODE_CONVERSION.
	GUIDCompartmentConversion = ole.NewGUID("{CCF05DD8-4A87-11D7-A6E2-00065B84435C}")
	// GUIDCategoryKeyboard is GUID_TFCAT_TIP_KEYBOARD.
	GUIDCategoryKeyboard = ole.NewGUID("{34745C63-B2F0-4784-8B67-5E12C8701A31}")
)

// LanguageProfile mirrors TF_LANGUAGEPROFILE.
type LanguageProfile struct {
	CLSID       ole.GUID
	LangID      profile.LangID
	CatID       ole.GUID
	Active      bool
	ProfileGUID ole.GUID
}

// Profiles is ITfInputProcessorProfiles. Status values are returned as-is so
// the caller can log and branch on them.
type Profiles interface {
	ActivateLanguageProfile(clsid ole.GUID, lang profile.LangID, profileGUID ole.GUID) Status
	IsEnabledLanguageProfile(clsid ole.GUID, lang profile.LangID, profileGUID ole.GUID) (bool, Status)
	EnableLanguageProfile(clsid ole.GUID, lang profile.LangID, profileGUID ole.GUID, enable bool) Status
	ChangeCurrentLanguage(lang profile.LangID) Status
	SetDefaultLanguageProfile(lang profile.LangID, clsid ole.GUID, profileGUID ole.GUID) Status
	GetDefaultLanguageProfile(lang profile.LangID, catid ole.GUID) (clsid ole.GUID, profileGUID ole.GUID, s Status)
	GetActiveLanguageProfile(clsid ole.GUID) (lang profile.LangID, profileGUID ole.GUID, s Status)
	GetCurrentLanguage() (profile.LangID, Status)
	GetLanguageList() ([]profile.LangID, Status)
	EnumLanguageProfiles(lang profile.LangID) ([]LanguageProfile, Status)
	GetLanguageProfileDescription(clsid ole.GUID, lang profile.LangID, profileGUID ole.GUID) (string, Status)
	// Release drops the underlying COM reference. Safe to call twice.
	Release()
}

// Subsystem creates profile sessions and touches the global compartment.
type Subsystem interface {
	// InitThread enters the single-threaded apartment on the calling thread.
	InitThread() error
	UninitThread()
	OpenProfiles() (Profiles, error)
	// SetGlobalConversionMode writes the keyboard conversion compartment
	// through a temporarily activated thread manager.
	SetGlobalConversionMode(mode uint32) error
}
