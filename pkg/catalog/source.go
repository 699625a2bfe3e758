package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// Source provides template text and a cheap fingerprint that changes
// whenever the text does.
type Source interface {
	Fingerprint(ctx context.Context) (string, error)
	Read(ctx context.Context) ([]byte, error)
}

// FileSource reads a template from disk; its fingerprint is mtime plus size.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) Fingerprint(_ context.Context) (string, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return "", fmt.Errorf("failed to stat template %s: %w", s.Path, err)
	}

	return fmt.Sprintf("%d:%d", info.ModTime().UnixNano(), info.Size()), nil
}

func (s *FileSource) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", s.Path, err)
	}

	return data, nil
}

// BytesSource serves an in-memory template; its fingerprint is the content checksum.
type BytesSource struct {
	data        []byte
	fingerprint string
}

func NewBytesSource(data []byte) *BytesSource {
	sum := sha256.Sum256(data)

	return &BytesSource{data: data, fingerprint: hex.EncodeToString(sum[:])}
}

func (s *BytesSource) Fingerprint(_ context.Context) (string, error) {
	return s.fingerprint, nil
}

func (s *BytesSource) Read(_ context.Context) ([]byte, error) {
	return s.data, nil
}
