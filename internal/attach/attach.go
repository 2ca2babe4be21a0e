// Package attach turns remote file references produced by the assistant
// into local files for the lifetime of a display callback.
package attach

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/Ads2024/Demo-Assistant-API-AI/internal/assistant"
	cerrors "github.com/Ads2024/Demo-Assistant-API-AI/internal/errors"
)

// Fetcher downloads the bytes of a remote file.
type Fetcher interface {
	FileContent(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// Materializer writes remote attachments to scoped temporary files.
type Materializer struct {
	fetch Fetcher

	// TempDir is where scoped files are created; empty means os.TempDir.
	TempDir string
	// KeepDir, when set, receives a permanent copy of every attachment.
	KeepDir string
}

func New(fetch Fetcher, keepDir string) *Materializer {
	return &Materializer{fetch: fetch, KeepDir: keepDir}
}

// With downloads ref into a temporary file, calls fn with its path and
// removes the file when fn returns, whether or not fn failed.
// A download failure is a KindAttachmentFetch error and fn is not called.
// The error returned by fn is passed through unchanged.
func (m *Materializer) With(ctx context.Context, ref assistant.ContentRef, fn func(path string) error) error {
	const op cerrors.Op = "attach.With"

	path, err := m.download(ctx, ref)
	if err != nil {
		return cerrors.E(op, cerrors.KindAttachmentFetch, ref.FileID, err)
	}
	defer os.Remove(path)

	if m.KeepDir != "" {
		if err := keepCopy(path, filepath.Join(m.KeepDir, FileName(ref))); err != nil {
			return cerrors.E(op, cerrors.KindAttachmentFetch, "save "+ref.FileID, err)
		}
	}
	return fn(path)
}

func (m *Materializer) download(ctx context.Context, ref assistant.ContentRef) (string, error) {
	rc, err := m.fetch.FileContent(ctx, ref.FileID)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	f, err := os.CreateTemp(m.TempDir, "chatdesk-*"+extension(ref))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("read content: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func keepCopy(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// FileName is the local name used for a kept attachment. It starts with
// the file id so outputs of different runs with the same name never
// collide.
func FileName(ref assistant.ContentRef) string {
	base := filepath.Base(strings.TrimSpace(ref.Name))
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return ref.FileID + extension(ref)
	}
	return ref.FileID + "-" + base
}

func extension(ref assistant.ContentRef) string {
	if ext := filepath.Ext(ref.Name); ext != "" {
		return strings.ToLower(ext)
	}
	if ref.Kind == assistant.ContentImage {
		return ".png"
	}
	return ""
}

// Describe summarizes a materialized file for terminals that cannot show
// it, e.g. "image 640x480, 12 kB" or "file, 3.4 MB".
func Describe(path string, kind assistant.ContentKind) string {
	fi, err := os.Stat(path)
	if err != nil {
		return string(kind)
	}
	size := humanize.Bytes(uint64(fi.Size()))
	if kind != assistant.ContentImage {
		return fmt.Sprintf("file, %s", size)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Sprintf("image, %s", size)
	}
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Sprintf("image, %s", size)
	}
	return fmt.Sprintf("%s image %dx%d, %s", format, cfg.Width, cfg.Height, size)
}
