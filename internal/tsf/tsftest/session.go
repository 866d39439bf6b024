package tsftest

import (
	"time"

	"github.com/go-ole/go-ole"

	"hyperimswitch/internal/profile"
	"hyperimswitch/internal/tsf"
)

type session struct {
	s        *System
	released bool
}

func (p *session) Release() { p.released = true }

func (p *session) ActivateLanguageProfile(clsid ole.GUID, lang profile.LangID, profileGUID ole.GUID) tsf.Status {
	defer p.s.enter()()
	s := p.s
	s.mu.Lock()
	delay, panics := s.activationDelay, s.panicOnActivate
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if panics {
		panic("tsftest: ActivateLanguageProfile panic")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("ActivateLanguageProfile %s", lang)
	key := Key{CLSID: clsid, Lang: lang, Profile: profileGUID}
	ip := s.find(key)
	if ip == nil {
		return tsf.StatusInvalidArg
	}
	if ip.failActivation > 0 {
		ip.failActivation--
		return tsf.StatusFail
	}
	if !ip.enabled {
		return tsf.StatusFail
	}
	s.current = lang
	s.active = key
	return tsf.StatusOK
}

func (p *session) IsEnabledLanguageProfile(clsid ole.GUID, lang profile.LangID, profileGUID ole.GUID) (bool, tsf.Status) {
	defer p.s.enter()()
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("IsEnabledLanguageProfile %s", lang)
	ip := s.find(Key{CLSID: clsid, Lang: lang, Profile: profileGUID})
	if ip == nil {
		return false, tsf.StatusInvalidArg
	}
	return ip.enabled, tsf.StatusOK
}

func (p *session) EnableLanguageProfile(clsid ole.GUID, lang profile.LangID, profileGUID ole.GUID, enable bool) tsf.Status {
	defer p.s.enter()()
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("EnableLanguageProfile %s %v", lang, enable)
	ip := s.find(Key{CLSID: clsid, Lang: lang, Profile: profileGUID})
	if ip == nil {
		return tsf.StatusInvalidArg
	}
	ip.enabled = enable
	return tsf.StatusOK
}

func (p *session) ChangeCurrentLanguage(lang profile.LangID) tsf.Status {
	defer p.s.enter()()
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("ChangeCurrentLanguage %s", lang)
	s.current = lang
	return tsf.StatusOK
}

func (p *session) SetDefaultLanguageProfile(lang profile.LangID, clsid ole.GUID, profileGUID ole.GUID) tsf.Status {
	defer p.s.enter()()
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("SetDefaultLanguageProfile %s", lang)
	key := Key{CLSID: clsid, Lang: lang, Profile: profileGUID}
	if s.find(key) == nil {
		return tsf.StatusInvalidArg
	}
	s.defaults[lang] = key
	return tsf.StatusOK
}

func (p *session) GetDefaultLanguageProfile(lang profile.LangID, _ ole.GUID) (ole.GUID, ole.GUID, tsf.Status) {
	defer p.s.enter()()
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.defaults[lang]
	if !ok {
		return ole.GUID{}, ole.GUID{}, tsf.StatusFalse
	}
	return key.CLSID, key.Profile, tsf.StatusOK
}

func (p *session) GetActiveLanguageProfile(clsid ole.GUID) (profile.LangID, ole.GUID, tsf.Status) {
	defer p.s.enter()()
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active.CLSID != clsid {
		return s.current, ole.GUID{}, tsf.StatusFalse
	}
	return s.active.Lang, s.active.Profile, tsf.StatusOK
}

func (p *session) GetCurrentLanguage() (profile.LangID, tsf.Status) {
	defer p.s.enter()()
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, tsf.StatusOK
}

func (p *session) GetLanguageList() ([]profile.LangID, tsf.Status) {
	defer p.s.enter()()
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]profile.LangID, len(s.languages))
	copy(out, s.languages)
	return out, tsf.StatusOK
}

func (p *session) EnumLanguageProfiles(lang profile.LangID) ([]tsf.LanguageProfile, tsf.Status) {
	defer p.s.enter()()
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []tsf.LanguageProfile
	for _, ip := range s.profiles {
		if ip.key.Lang != lang {
			continue
		}
		out = append(out, tsf.LanguageProfile{
			CLSID:       ip.key.CLSID,
			LangID:      lang,
			CatID:       *tsf.GUIDCategoryKeyboard,
			Active:      ip.key == s.active,
			ProfileGUID: ip.key.Profile,
		})
	}
	return out, tsf.StatusOK
}

func (p *session) GetLanguageProfileDescription(clsid ole.GUID, lang profile.LangID, profileGUID ole.GUID) (string, tsf.Status) {
	defer p.s.enter()()
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	ip := s.find(Key{CLSID: clsid, Lang: lang, Profile: profileGUID})
	if ip == nil {
		return "", tsf.StatusInvalidArg
	}
	return ip.description, tsf.StatusOK
}
