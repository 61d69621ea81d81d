package tts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

type Voice struct {
	ID     string `json:"id"`
	Lang   string `json:"lang"`
	Gender string `json:"gender,omitempty"`
}

type voiceManifest struct {
	Voices []Voice `json:"voices"`
}

// builtinVoiceIDs lists the voices shipped in the Kokoro v1.0 voice pack.
var builtinVoiceIDs = []string{
	"af_alloy", "af_aoede", "af_bella", "af_heart", "af_jessica", "af_kore",
	"af_nicole", "af_nova", "af_river", "af_sarah", "af_sky",
	"am_adam", "am_echo", "am_eric", "am_fenrir", "am_liam", "am_michael",
	"am_onyx", "am_puck", "am_santa",
	"bf_alice", "bf_emma", "bf_isabella", "bf_lily",
	"bm_daniel", "bm_fable", "bm_george", "bm_lewis",
}

// Kokoro voice IDs encode language and gender in their two-letter prefix.
var voiceLangByPrefix = map[byte]string{
	'a': "en-us",
	'b': "en-gb",
	'e': "es",
	'f': "fr-fr",
	'h': "hi",
	'i': "it",
	'j': "ja",
	'p': "pt-br",
	'z': "cmn",
}

type VoiceManager struct {
	voices []Voice
	byID   map[string]Voice
}

// DefaultVoiceManager returns the built-in Kokoro catalog.
func DefaultVoiceManager() *VoiceManager {
	voices := make([]Voice, 0, len(builtinVoiceIDs))
	for _, id := range builtinVoiceIDs {
		voices = append(voices, voiceFromID(id))
	}
	mgr, err := newVoiceManager(voices)
	if err != nil {
		panic(err)
	}
	return mgr
}

func NewVoiceManager(manifestPath string) (*VoiceManager, error) {
	if manifestPath == "" {
		return nil, errors.New("manifest path is required")
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read voice manifest: %w", err)
	}

	var manifest voiceManifest

	err = json.Unmarshal(data, &manifest)
	if err != nil {
		return nil, fmt.Errorf("decode voice manifest: %w", err)
	}

	return newVoiceManager(manifest.Voices)
}

func newVoiceManager(voices []Voice) (*VoiceManager, error) {
	mgr := &VoiceManager{
		voices: make([]Voice, 0, len(voices)),
		byID:   make(map[string]Voice, len(voices)),
	}

	for _, v := range voices {
		if v.ID == "" {
			return nil, errors.New("voice manifest contains empty id")
		}

		if _, exists := mgr.byID[v.ID]; exists {
			return nil, fmt.Errorf("duplicate voice id %q", v.ID)
		}

		if v.Lang == "" {
			v.Lang = voiceFromID(v.ID).Lang
		}

		mgr.byID[v.ID] = v
		mgr.voices = append(mgr.voices, v)
	}

	sort.Slice(mgr.voices, func(i, j int) bool { return mgr.voices[i].ID < mgr.voices[j].ID })

	return mgr, nil
}

func (m *VoiceManager) ListVoices() []Voice {
	return append([]Voice(nil), m.voices...)
}

// Has reports whether id names a voice in the catalog. Weighted blends such
// as "af_sarah:60,af_bella:40" are accepted when every component is known.
func (m *VoiceManager) Has(id string) bool {
	if _, ok := m.byID[id]; ok {
		return true
	}
	if !strings.Contains(id, ",") {
		return false
	}
	for _, part := range strings.Split(id, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), ":")
		if _, ok := m.byID[name]; !ok {
			return false
		}
	}
	return true
}

func voiceFromID(id string) Voice {
	v := Voice{ID: id}
	if len(id) < 3 || id[2] != '_' {
		return v
	}
	v.Lang = voiceLangByPrefix[id[0]]
	switch id[1] {
	case 'f':
		v.Gender = "female"
	case 'm':
		v.Gender = "male"
	}
	return v
}
