package main

import (
	"fmt"
	"sync"
	"testing"

	"hyperimswitch/internal/binding"
	"hyperimswitch/internal/config"
	"hyperimswitch/internal/profile"
	"hyperimswitch/internal/testutil"
)

func TestSettingsSnapshotReturnsIndependentCopy(t *testing.T) {
	app := &App{}
	s := config.DefaultSettings()
	s.Hotkeys = []config.HotkeyEntry{{Slot: 1, ProfileType: "input_processor", LangID: "0x0411", ConversionMode: testutil.Ptr(uint32(profile.ConversionHiragana))}}
	bs := []binding.HotkeyBinding{{SlotID: 1, ProfileType: profile.TypeInputProcessor, LangID: profile.LangJapanese, ConversionMode: testutil.Ptr(uint32(profile.ConversionHiragana))}}
	app.setSettingsSnapshot(s, bs)

	snapshot := app.getSettingsSnapshot()
	snapshot.Hotkeys[0].Slot = 9
	*snapshot.Hotkeys[0].ConversionMode = 0
	bindings := app.bindingsSnapshot()
	bindings[0].SlotID = 9
	*bindings[0].ConversionMode = 0

	latest := app.getSettingsSnapshot()
	if latest.Hotkeys[0].Slot != 1 || *latest.Hotkeys[0].ConversionMode != uint32(profile.ConversionHiragana) {
		t.Fatal("getSettingsSnapshot returned shared hotkey entries")
	}
	latestBindings := app.bindingsSnapshot()
	if latestBindings[0].SlotID != 1 || *latestBindings[0].ConversionMode != uint32(profile.ConversionHiragana) {
		t.Fatal("bindingsSnapshot returned shared bindings")
	}

	// The caller's slices are copied on store too.
	bs[0].SlotID = 7
	if app.bindingsSnapshot()[0].SlotID != 1 {
		t.Fatal("setSettingsSnapshot kept the caller's slice")
	}
}

func TestSettingsSnapshotConcurrency(t *testing.T) {
	app := &App{}
	app.setSettingsSnapshot(config.DefaultSettings(), nil)

	const goroutines = 12
	const iterations = 200

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			<-start
			for j := 0; j < iterations; j++ {
				if worker%2 == 0 {
					s := config.DefaultSettings()
					s.LogLevel = fmt.Sprintf("level-%d-%d", worker, j)
					app.setSettingsSnapshot(s, []binding.HotkeyBinding{{SlotID: j + 1}})
					continue
				}
				_ = app.getSettingsSnapshot()
				_ = app.bindingsSnapshot()
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if got := len(app.bindingsSnapshot()); got != 1 {
		t.Fatalf("bindings = %d, want 1", got)
	}
}
