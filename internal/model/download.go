package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

type DownloadOptions struct {
	Manifest Manifest
	OutDir   string
	Client   *http.Client
	Stdout   io.Writer
}

type lockManifest struct {
	BaseURL   string                `json:"base_url"`
	Generated string                `json:"generated"`
	Files     map[string]lockRecord `json:"files"`
}

type lockRecord struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// ErrChecksumMismatch is returned when a file does not match its recorded
// checksum.
var ErrChecksumMismatch = errors.New("checksum mismatch")

var shaHexPattern = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

// Download fetches every manifest file into OutDir. Files whose checksum
// already matches are skipped. Checksums not pinned in the manifest are
// taken from the lock file, and recorded there after the first download.
func Download(ctx context.Context, opts DownloadOptions) error {
	if opts.OutDir == "" {
		return fmt.Errorf("out dir is required")
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 0}
	}
	if len(opts.Manifest.Files) == 0 {
		opts.Manifest = KokoroManifest(opts.Manifest.BaseURL)
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	lockPath := filepath.Join(opts.OutDir, LockFileName)
	lock := readLockManifest(lockPath)
	lock.BaseURL = opts.Manifest.BaseURL
	lock.Generated = time.Now().UTC().Format(time.RFC3339)

	for _, f := range opts.Manifest.Files {
		expected := strings.ToLower(f.SHA256)
		if expected == "" {
			if lr, ok := lock.Files[f.Filename]; ok && isSHA256Hex(lr.SHA256) {
				expected = strings.ToLower(lr.SHA256)
			}
		}

		localPath := filepath.Join(opts.OutDir, filepath.FromSlash(f.Filename))

		if expected != "" {
			ok, err := existingMatches(localPath, expected)
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintf(opts.Stdout, "skip %s (checksum match)\n", f.Filename)
				continue
			}
		}

		fmt.Fprintf(opts.Stdout, "download %s -> %s\n", f.Filename, localPath)
		actual, size, err := downloadWithProgress(ctx, opts.Client, resolveURL(opts.Manifest.BaseURL, f), localPath, opts.Stdout)
		if err != nil {
			return err
		}
		if expected != "" && actual != expected {
			return fmt.Errorf("%w for %s: expected %s got %s", ErrChecksumMismatch, f.Filename, expected, actual)
		}

		fmt.Fprintf(opts.Stdout, "verified %s (sha256=%s)\n", f.Filename, actual)
		lock.Files[f.Filename] = lockRecord{SHA256: actual, Size: size}
	}

	if err := writeLockManifest(lockPath, lock); err != nil {
		return err
	}
	fmt.Fprintf(opts.Stdout, "wrote lock manifest: %s\n", lockPath)
	return nil
}

// Verify checks the files in dir against the lock file written by Download.
func Verify(dir string, w io.Writer) error {
	if w == nil {
		w = io.Discard
	}

	lockPath := filepath.Join(dir, LockFileName)
	if _, err := os.Stat(lockPath); err != nil {
		return fmt.Errorf("read lock manifest: %w", err)
	}

	lock := readLockManifest(lockPath)
	if len(lock.Files) == 0 {
		return fmt.Errorf("lock manifest %s lists no files", lockPath)
	}

	var errs []error
	for name, rec := range lock.Files {
		ok, err := existingMatches(filepath.Join(dir, filepath.FromSlash(name)), strings.ToLower(rec.SHA256))
		switch {
		case err != nil:
			errs = append(errs, err)
		case !ok:
			errs = append(errs, fmt.Errorf("%w for %s", ErrChecksumMismatch, name))
		default:
			fmt.Fprintf(w, "ok %s\n", name)
		}
	}
	return errors.Join(errs...)
}

func existingMatches(path, expected string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat existing file: %w", err)
	}
	if fi.IsDir() {
		return false, fmt.Errorf("expected file at %s, found directory", path)
	}
	actual, err := fileSHA256(path)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

func downloadWithProgress(ctx context.Context, client *http.Client, url, outPath string, stdout io.Writer) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", 0, fmt.Errorf("download failed for %s: %s", url, resp.Status)
	}

	tmp := outPath + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}

	h := sha256.New()
	pw := &progressWriter{w: stdout, total: resp.ContentLength, last: time.Now()}

	written, err := io.Copy(io.MultiWriter(fh, h, pw), resp.Body)
	if err != nil {
		_ = fh.Close()
		_ = os.Remove(tmp)
		return "", 0, fmt.Errorf("download read failed: %w", err)
	}

	if err := fh.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		_ = os.Remove(tmp)
		return "", 0, fmt.Errorf("move temp file into place: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), written, nil
}

// progressWriter prints download progress at most every 700ms.
type progressWriter struct {
	w       io.Writer
	total   int64
	written int64
	last    time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if time.Since(p.last) > 700*time.Millisecond {
		if p.total > 0 {
			pct := float64(p.written) * 100 / float64(p.total)
			fmt.Fprintf(p.w, "  progress: %.1f%% (%d/%d bytes)\n", pct, p.written, p.total)
		} else {
			fmt.Fprintf(p.w, "  progress: %d bytes\n", p.written)
		}
		p.last = time.Now()
	}
	return len(b), nil
}

func resolveURL(baseURL string, file ModelFile) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + file.Filename
}

func isSHA256Hex(v string) bool {
	return shaHexPattern.MatchString(v)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file for checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readLockManifest(path string) lockManifest {
	out := lockManifest{Files: map[string]lockRecord{}}

	b, err := os.ReadFile(path)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return lockManifest{Files: map[string]lockRecord{}}
	}
	if out.Files == nil {
		out.Files = map[string]lockRecord{}
	}
	return out
}

func writeLockManifest(path string, lock lockManifest) error {
	b, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lock manifest: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write lock manifest: %w", err)
	}
	return nil
}
