package regulations

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
)

// DefaultMaxUploadBytes is the upload ceiling when none is configured.
const DefaultMaxUploadBytes int64 = 10 << 20

// AllowedExtensions lists accepted attachment types, lower case without dot.
var AllowedExtensions = []string{"pdf", "docx", "doc", "hwp", "hwpx"}

// Attachment is an uploaded document held in memory until it passes
// validation.
type Attachment struct {
	Filename string
	Data     []byte
}

// Ext returns the lower-cased extension without the dot.
func (a Attachment) Ext() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(a.Filename)), ".")
}

// ValidateAttachment enforces the extension allow-list and size ceiling.
func ValidateAttachment(a Attachment, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if !slices.Contains(AllowedExtensions, a.Ext()) {
		return httpx.Invalid("file", "허용되지 않는 파일 형식입니다. ("+strings.Join(AllowedExtensions, ", ")+")")
	}
	if int64(len(a.Data)) > maxBytes {
		return httpx.Invalid("file", fmt.Sprintf("파일 크기는 %dMB를 초과할 수 없습니다.", maxBytes>>20))
	}
	if len(a.Data) == 0 {
		return httpx.Invalid("file", "빈 파일은 업로드할 수 없습니다.")
	}
	return nil
}

// ReadAttachment reads at most maxBytes+1 bytes so oversized uploads are
// detected without buffering them whole.
func ReadAttachment(filename string, r io.Reader, maxBytes int64) (Attachment, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return Attachment{}, err
	}
	return Attachment{Filename: filepath.Base(filename), Data: data}, nil
}

// Storage persists attachment blobs under relative keys.
type Storage interface {
	Save(dir string, a Attachment) (string, error)
	Open(key string) (io.ReadCloser, error)
	Remove(key string) error
}

// LocalStorage writes files below Root.
type LocalStorage struct {
	Root string
}

// NewLocalStorage returns a LocalStorage rooted at root.
func NewLocalStorage(root string) *LocalStorage {
	return &LocalStorage{Root: root}
}

// Save writes a under dir with a random name and returns the key.
func (s *LocalStorage) Save(dir string, a Attachment) (string, error) {
	key := path.Join(dir, uuid.NewString()+"."+a.Ext())
	full, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("regulations: create upload dir: %w", err)
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("regulations: create upload: %w", err)
	}
	if _, err := io.Copy(f, bytes.NewReader(a.Data)); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", fmt.Errorf("regulations: write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(full)
		return "", fmt.Errorf("regulations: close upload: %w", err)
	}
	return key, nil
}

// Open returns a reader for key.
func (s *LocalStorage) Open(key string) (io.ReadCloser, error) {
	full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if os.IsNotExist(err) {
		return nil, ErrAttachmentMissing
	}
	return f, err
}

// Remove deletes key; a missing file is not an error.
func (s *LocalStorage) Remove(key string) error {
	if key == "" {
		return nil
	}
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *LocalStorage) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", ErrAttachmentMissing
	}
	return filepath.Join(s.Root, filepath.FromSlash(clean)), nil
}

// DownloadName builds the user-facing file name "<code>_v<version>.<ext>".
func DownloadName(code, version, key string) string {
	ext := path.Ext(key)
	return code + "_v" + version + ext
}
