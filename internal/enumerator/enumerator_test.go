package enumerator

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-ole/go-ole"

	"hyperimswitch/internal/profile"
	"hyperimswitch/internal/switcher"
	"hyperimswitch/internal/tsf"
	"hyperimswitch/internal/tsf/tsftest"
)

type directRunner struct {
	sys *tsftest.System
	err error
}

func (r directRunner) WithProfiles(_ time.Duration, fn func(tsf.Profiles)) error {
	if r.err != nil {
		return r.err
	}
	p, err := r.sys.OpenProfiles()
	if err != nil {
		return err
	}
	defer p.Release()
	fn(p)
	return nil
}

type fakeNames struct {
	texts   map[string]string
	locales map[profile.LangID]string
}

func (n fakeNames) LayoutDisplayText(klid string) (string, bool) {
	text, ok := n.texts[klid]
	return text, ok
}

func (n fakeNames) LocaleName(lang profile.LangID) (string, bool) {
	tag, ok := n.locales[lang]
	return tag, ok
}

func installedSystem() *tsftest.System {
	sys := tsftest.New()
	sys.AddInputProcessor(profile.LangJapanese, tsftest.GUID(1), tsftest.GUID(2), "Microsoft IME")
	sys.AddInputProcessor(profile.LangChineseSimplified, tsftest.GUID(3), tsftest.GUID(4), "微信输入法")
	sys.AddInputProcessor(profile.LangChineseSimplified, ole.GUID{}, tsftest.GUID(5), "zero clsid")
	sys.AddKeyboardLayout(0x04090409)
	sys.AddKeyboardLayout(0xF0030416)
	sys.AddKeyboardLayout(0x04110411)
	sys.AddKeyboardLayout(0xE0010411)
	sys.AddKeyboardLayout(0x04070407)
	sys.AddKeyboardLayout(0x04150415)
	return sys
}

func TestEnumerate(t *testing.T) {
	sys := installedSystem()
	names := fakeNames{
		texts:   map[string]string{"00000409": "US", "0000F003": "Portuguese Custom"},
		locales: map[profile.LangID]string{0x0407: "de-DE"},
	}
	e := New(Config{Runner: directRunner{sys: sys}, Layouts: sys, Names: names, Verbose: true})

	catalog := e.Enumerate()
	got := catalog.Profiles()

	want := []profile.ImeProfile{
		{Type: profile.TypeInputProcessor, LangID: 0x0411, CLSID: tsftest.GUID(1), ProfileGUID: tsftest.GUID(2), Description: "Microsoft IME"},
		{Type: profile.TypeInputProcessor, LangID: 0x0804, CLSID: tsftest.GUID(3), ProfileGUID: tsftest.GUID(4), Description: "微信输入法"},
		{Type: profile.TypeKeyboardLayout, LangID: 0x0409, LayoutHandle: 0x04090409, Description: "US"},
		{Type: profile.TypeKeyboardLayout, LangID: 0x0416, LayoutHandle: 0xF0030416, Description: "Portuguese Custom"},
		{Type: profile.TypeKeyboardLayout, LangID: 0x0407, LayoutHandle: 0x04070407, Description: "German (Germany) Keyboard"},
		{Type: profile.TypeKeyboardLayout, LangID: 0x0415, LayoutHandle: 0x04150415, Description: "KeyboardLayout-0415"},
	}
	if !slices.Equal(got, want) {
		t.Fatalf("catalog =\n%v\nwant\n%v", got, want)
	}
	if e.Catalog() != catalog {
		t.Fatal("Catalog() does not return the published catalog")
	}
}

func TestEnumerateSubsystemFailure(t *testing.T) {
	sys := installedSystem()
	e := New(Config{Runner: directRunner{err: errors.New("subsystem unavailable")}, Layouts: sys, Names: fakeNames{}})

	catalog := e.Enumerate()
	for _, p := range catalog.Profiles() {
		if p.IsInputProcessor() {
			t.Fatalf("input processor %v present after subsystem failure", p)
		}
	}
	// Layouts still enumerate, including the Japanese layout no longer shadowed.
	if _, ok := catalog.FirstKeyboardLayout(profile.LangJapanese); !ok {
		t.Fatal("partial catalog missing keyboard layouts")
	}
}

func TestEnumerateNoCollaborators(t *testing.T) {
	e := New(Config{})
	if got := e.Enumerate(); got.Len() != 0 {
		t.Fatalf("Enumerate() = %d entries, want empty", got.Len())
	}
}

func TestEnumerateSwapsCompleteCatalogs(t *testing.T) {
	sys := installedSystem()
	e := New(Config{Runner: directRunner{sys: sys}, Layouts: sys, Names: fakeNames{}})

	first := e.Enumerate()
	firstSnapshot := first.Profiles()

	var wg sync.WaitGroup
	wg.Go(func() {
		sys.AddInputProcessor(0x0412, tsftest.GUID(7), tsftest.GUID(8), "Korean IME")
		e.Enumerate()
	})
	for range 100 {
		c := e.Catalog()
		if n := c.Len(); n != len(firstSnapshot) && n != len(firstSnapshot)+1 {
			t.Fatalf("observed partial catalog with %d entries", n)
		}
	}
	wg.Wait()

	if !slices.Equal(first.Profiles(), firstSnapshot) {
		t.Fatal("first catalog changed after second enumeration")
	}
	if second := e.Catalog(); second == first || second.Len() != len(firstSnapshot)+1 {
		t.Fatalf("second catalog = %d entries, want a new catalog with %d", second.Len(), len(firstSnapshot)+1)
	}
}

// overlapRunner counts subsystem passes that run at the same time.
type overlapRunner struct {
	directRunner
	delay    time.Duration
	inFlight atomic.Int32
	overlaps atomic.Int32
	passes   atomic.Int32
}

func (r *overlapRunner) WithProfiles(timeout time.Duration, fn func(tsf.Profiles)) error {
	if r.inFlight.Add(1) > 1 {
		r.overlaps.Add(1)
	}
	defer r.inFlight.Add(-1)
	r.passes.Add(1)
	time.Sleep(r.delay)
	return r.directRunner.WithProfiles(timeout, fn)
}

func TestEnumerateSerializesPasses(t *testing.T) {
	sys := installedSystem()
	runner := &overlapRunner{directRunner: directRunner{sys: sys}, delay: 20 * time.Millisecond}
	e := New(Config{Runner: runner, Layouts: sys, Names: fakeNames{}})

	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() { e.Enumerate() })
	}
	wg.Wait()

	if got := runner.overlaps.Load(); got != 0 {
		t.Fatalf("overlapping enumeration passes = %d, want 0", got)
	}
	if got := runner.passes.Load(); got != 4 {
		t.Fatalf("passes = %d, want 4", got)
	}

	// The newest pass publishes last.
	sys.AddInputProcessor(0x0412, tsftest.GUID(9), tsftest.GUID(10), "Korean IME")
	latest := e.Enumerate()
	if e.Catalog() != latest {
		t.Fatal("Catalog() is not the catalog from the newest pass")
	}
}

func TestEnumerateThroughEngine(t *testing.T) {
	sys := installedSystem()
	engine := switcher.NewEngine(switcher.Config{Subsystem: sys, Windowing: sys})
	t.Cleanup(func() { _ = engine.Close() })

	e := New(Config{Runner: engine, Layouts: sys, Names: fakeNames{}})
	catalog := e.Enumerate()
	if !catalog.HasInputProcessor(profile.LangJapanese) || !catalog.HasInputProcessor(profile.LangChineseSimplified) {
		t.Fatalf("engine-backed enumeration missing input processors: %v", catalog.Profiles())
	}
}

func TestKLIDCandidates(t *testing.T) {
	tests := []struct {
		hkl  profile.LayoutHandle
		want []string
	}{
		{hkl: 0x04090409, want: []string{"00000409", "04090409"}},
		{hkl: 0xF0020409, want: []string{"00000409", "0000F002", "F0020409"}},
		{hkl: 0x00000409, want: []string{"00000409", "00000000"}},
	}
	for _, tt := range tests {
		if got := KLIDCandidates(tt.hkl); !slices.Equal(got, tt.want) {
			t.Errorf("KLIDCandidates(%s) = %v, want %v", tt.hkl, got, tt.want)
		}
	}
}

func TestLocaleDisplayName(t *testing.T) {
	tests := []struct {
		tag    string
		want   string
		wantOK bool
	}{
		{tag: "en-US", want: "English (United States)", wantOK: true},
		{tag: "ja-JP", want: "Japanese (Japan)", wantOK: true},
		{tag: "de", want: "German", wantOK: true},
		{tag: "", wantOK: false},
		{tag: "not a tag!", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := LocaleDisplayName(tt.tag)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("LocaleDisplayName(%q) = %q, %v; want %q, %v", tt.tag, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestLanguageName(t *testing.T) {
	e := New(Config{Names: fakeNames{locales: map[profile.LangID]string{0x0411: "ja-JP", 0x0C0A: "??"}}})
	tests := []struct {
		lang profile.LangID
		want string
	}{
		{lang: 0x0411, want: "Japanese (Japan)"},
		{lang: 0x0C0A, want: "0x0C0A"},
		{lang: 0x0804, want: "0x0804"},
	}
	for _, tt := range tests {
		if got := e.LanguageName(tt.lang); got != tt.want {
			t.Errorf("LanguageName(%s) = %q, want %q", tt.lang, got, tt.want)
		}
	}
}
