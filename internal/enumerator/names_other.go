//go:build !windows

package enumerator

import "hyperimswitch/internal/profile"

type noNames struct{}

// DefaultNames resolves nothing outside Windows, so descriptions fall back
// to the synthesized placeholder.
func DefaultNames() LayoutNames { return noNames{} }

func (noNames) LayoutDisplayText(string) (string, bool)  { return "", false }
func (noNames) LocaleName(profile.LangID) (string, bool) { return "", false }
