package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

// FingerprintBytes returns the hex SHA-256 of content.
func FingerprintBytes(content []byte) domain.Fingerprint {
	sum := sha256.Sum256(content)
	return domain.Fingerprint(hex.EncodeToString(sum[:]))
}

// Fingerprinter derives cache keys for documents on disk.
type Fingerprinter struct {
	mode domain.FingerprintMode
}

// NewFingerprinter creates a fingerprinter. An unknown mode falls back to content.
func NewFingerprinter(mode domain.FingerprintMode) *Fingerprinter {
	if !mode.IsValid() {
		mode = domain.FingerprintContent
	}
	return &Fingerprinter{mode: mode}
}

// Mode returns the active fingerprint mode.
func (f *Fingerprinter) Mode() domain.FingerprintMode {
	return f.mode
}

// FingerprintFile returns the fingerprint of the file at path.
// In content mode the file is streamed through SHA-256; in stat mode
// only its absolute path, size and modification time are hashed.
func (f *Fingerprinter) FingerprintFile(path string) (domain.Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", domain.ErrInvalidInput, path)
	}

	if f.mode == domain.FingerprintStat {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolve path: %w", err)
		}
		key := strings.Join([]string{
			abs,
			strconv.FormatInt(info.Size(), 10),
			strconv.FormatInt(info.ModTime().UnixNano(), 10),
		}, "\x00")
		return FingerprintBytes([]byte(key)), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return domain.Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

// Load fingerprints the file at path and describes it as a Document.
func (f *Fingerprinter) Load(path string) (domain.Document, error) {
	if strings.TrimSpace(path) == "" {
		return domain.Document{}, fmt.Errorf("%w: document path is required", domain.ErrInvalidInput)
	}
	fp, err := f.FingerprintFile(path)
	if err != nil {
		return domain.Document{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	base := filepath.Base(abs)
	return domain.Document{
		Path:        abs,
		Title:       strings.TrimSuffix(base, filepath.Ext(base)),
		Fingerprint: fp,
		Size:        info.Size(),
	}, nil
}
