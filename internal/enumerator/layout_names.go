package enumerator

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"hyperimswitch/internal/profile"
)

// KLIDCandidates lists the registry keys tried for hkl, in order, without
// case-insensitive duplicates.
func KLIDCandidates(hkl profile.LayoutHandle) []string {
	hkl32 := uint32(hkl)
	raw := []string{
		fmt.Sprintf("0000%04X", uint16(hkl.Lang())),
		fmt.Sprintf("0000%04X", hkl.LayoutID()),
		fmt.Sprintf("%08X", hkl32),
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, klid := range raw {
		folded := strings.ToUpper(klid)
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		out = append(out, klid)
	}
	return out
}

func describeLayout(names LayoutNames, hkl profile.LayoutHandle) string {
	for _, klid := range KLIDCandidates(hkl) {
		if text, ok := names.LayoutDisplayText(klid); ok && strings.TrimSpace(text) != "" {
			return text
		}
	}
	lang := hkl.Lang()
	if tag, ok := names.LocaleName(lang); ok {
		if name, ok := LocaleDisplayName(tag); ok {
			return name + " Keyboard"
		}
	}
	return fmt.Sprintf("KeyboardLayout-%04X", uint16(lang))
}

// LocaleDisplayName renders a BCP 47 tag as "Language (Region)" in English.
func LocaleDisplayName(tag string) (string, bool) {
	t, err := language.Parse(tag)
	if err != nil || t == language.Und {
		return "", false
	}
	base, _ := t.Base()
	langName := display.English.Languages().Name(base)
	if langName == "" {
		return "", false
	}
	region, conf := t.Region()
	if conf == language.Exact {
		if regionName := display.English.Regions().Name(region); regionName != "" {
			return fmt.Sprintf("%s (%s)", langName, regionName), true
		}
	}
	return langName, true
}
