package tts

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "voices.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	return path
}

func TestDefaultVoiceManager_ContainsDefaultVoice(t *testing.T) {
	vm := DefaultVoiceManager()

	if !vm.Has("af_sarah") {
		t.Fatal("built-in catalog is missing af_sarah")
	}

	var found Voice
	for _, v := range vm.ListVoices() {
		if v.ID == "af_sarah" {
			found = v
		}
	}

	if found.Lang != "en-us" {
		t.Errorf("af_sarah lang = %q; want en-us", found.Lang)
	}

	if found.Gender != "female" {
		t.Errorf("af_sarah gender = %q; want female", found.Gender)
	}
}

func TestVoiceManager_ListVoicesSortedCopy(t *testing.T) {
	vm := DefaultVoiceManager()

	voices := vm.ListVoices()
	for i := 1; i < len(voices); i++ {
		if voices[i-1].ID > voices[i].ID {
			t.Fatalf("voices not sorted: %q before %q", voices[i-1].ID, voices[i].ID)
		}
	}

	voices[0].ID = "mutated"
	if vm.ListVoices()[0].ID == "mutated" {
		t.Error("ListVoices returned the internal slice")
	}
}

func TestVoiceManager_Has(t *testing.T) {
	vm := DefaultVoiceManager()

	tests := []struct {
		id   string
		want bool
	}{
		{"af_sarah", true},
		{"bm_george", true},
		{"af_sarah:60,af_bella:40", true},
		{"af_sarah,am_adam", true},
		{"af_sarah,nobody", false},
		{"nobody", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := vm.Has(tt.id); got != tt.want {
			t.Errorf("Has(%q) = %v; want %v", tt.id, got, tt.want)
		}
	}
}

func TestNewVoiceManager_EmptyPath(t *testing.T) {
	_, err := NewVoiceManager("")
	if err == nil {
		t.Error("NewVoiceManager(\"\") = nil; want error")
	}
}

func TestNewVoiceManager_MissingFile(t *testing.T) {
	_, err := NewVoiceManager("/nonexistent/manifest.json")
	if err == nil {
		t.Error("NewVoiceManager(missing) = nil; want error")
	}
}

func TestNewVoiceManager_InvalidJSON(t *testing.T) {
	_, err := NewVoiceManager(writeManifest(t, "{bad json"))
	if err == nil {
		t.Error("NewVoiceManager(invalid json) = nil; want error")
	}
}

func TestNewVoiceManager_EmptyVoiceID(t *testing.T) {
	_, err := NewVoiceManager(writeManifest(t, `{"voices":[{"id":""}]}`))
	if err == nil {
		t.Error("NewVoiceManager(empty id) = nil; want error")
	}
}

func TestNewVoiceManager_DuplicateID(t *testing.T) {
	_, err := NewVoiceManager(writeManifest(t, `{"voices":[{"id":"v1"},{"id":"v1"}]}`))
	if err == nil {
		t.Error("NewVoiceManager(duplicate id) = nil; want error")
	}
}

func TestNewVoiceManager_InfersLangFromID(t *testing.T) {
	vm, err := NewVoiceManager(writeManifest(t, `{"voices":[
		{"id":"bf_emma"},
		{"id":"custom","lang":"de"}
	]}`))
	if err != nil {
		t.Fatalf("NewVoiceManager: %v", err)
	}

	voices := vm.ListVoices()
	if len(voices) != 2 {
		t.Fatalf("got %d voices; want 2", len(voices))
	}

	if voices[0].ID != "bf_emma" || voices[0].Lang != "en-gb" {
		t.Errorf("voices[0] = %+v; want bf_emma/en-gb", voices[0])
	}

	if voices[1].ID != "custom" || voices[1].Lang != "de" {
		t.Errorf("voices[1] = %+v; want custom/de", voices[1])
	}
}
