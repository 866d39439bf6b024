package testutil

import "testing"

// Ptr returns a pointer to v, for optional fields such as
// HotkeyBinding.ConversionMode.
func Ptr[T any](v T) *T { return &v }

// IsolateDataDir points LOCALAPPDATA at a fresh temp dir and clears APPDATA,
// so settings, log and history paths resolve under it. It returns the dir.
func IsolateDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("LOCALAPPDATA", dir)
	t.Setenv("APPDATA", "")
	return dir
}
