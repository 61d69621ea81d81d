package model

// DefaultBaseURL hosts the Kokoro v1.0 ONNX model and voice pack.
const DefaultBaseURL = "https://github.com/thewh1teagle/kokoro-onnx/releases/download/model-files-v1.0"

// LockFileName is written next to the downloaded files and records their
// checksums.
const LockFileName = "kokoro-files.lock.json"

type Manifest struct {
	BaseURL string      `json:"base_url"`
	Files   []ModelFile `json:"files"`
}

// ModelFile is one downloadable file. An empty SHA256 is resolved from the
// lock file or, on first download, recorded there.
type ModelFile struct {
	Filename string `json:"filename"`
	SHA256   string `json:"sha256"`
}

// KokoroManifest lists the files the synthesis worker loads.
func KokoroManifest(baseURL string) Manifest {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return Manifest{
		BaseURL: baseURL,
		Files: []ModelFile{
			{Filename: "kokoro-v1.0.onnx"},
			{Filename: "voices-v1.0.bin"},
		},
	}
}
