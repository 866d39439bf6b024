package profile

import "github.com/go-ole/go-ole"

// Catalog is the immutable result of one enumeration pass. A nil *Catalog is
// a valid empty catalog.
type Catalog struct {
	profiles []ImeProfile
}

// NewCatalog copies profiles into a new catalog.
func NewCatalog(profiles []ImeProfile) *Catalog {
	cloned := make([]ImeProfile, len(profiles))
	copy(cloned, profiles)
	return &Catalog{profiles: cloned}
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.profiles)
}

// Profiles returns a copy of the entries in enumeration order.
func (c *Catalog) Profiles() []ImeProfile {
	if c == nil {
		return nil
	}
	out := make([]ImeProfile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

// HasInputProcessor reports whether any input processor for lang is present.
func (c *Catalog) HasInputProcessor(lang LangID) bool {
	if c == nil {
		return false
	}
	for _, p := range c.profiles {
		if p.IsInputProcessor() && p.LangID == lang {
			return true
		}
	}
	return false
}

// FirstKeyboardLayout returns the first keyboard layout entry for lang.
func (c *Catalog) FirstKeyboardLayout(lang LangID) (ImeProfile, bool) {
	if c == nil {
		return ImeProfile{}, false
	}
	for _, p := range c.profiles {
		if p.IsKeyboardLayout() && p.LangID == lang {
			return p, true
		}
	}
	return ImeProfile{}, false
}

// FindInputProcessor looks up an input processor by its identity triple.
func (c *Catalog) FindInputProcessor(clsid ole.GUID, lang LangID, profileGUID ole.GUID) (ImeProfile, bool) {
	if c == nil {
		return ImeProfile{}, false
	}
	for _, p := range c.profiles {
		if p.IsInputProcessor() && p.LangID == lang && p.CLSID == clsid && p.ProfileGUID == profileGUID {
			return p, true
		}
	}
	return ImeProfile{}, false
}
