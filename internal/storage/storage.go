// Package storage keeps clip media and rendered outputs on the local disk.
//
// Clip media is copied into a per-project directory on import and deleted
// when the clip is replaced. Outputs are written atomically under a
// timestamped name so a new render never overwrites a previous result, and
// are addressed by file:// URLs.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store owns the clip and output directories.
type Store struct {
	clipsDir  string
	outputDir string
	now       func() time.Time
}

// New returns a store rooted at the given directories.
func New(clipsDir, outputDir string) *Store {
	return &Store{clipsDir: clipsDir, outputDir: outputDir, now: time.Now}
}

// ImportClip copies the recording at src into the project's clip directory
// and returns the stored path.
func (s *Store) ImportClip(projectID, slotID, src string) (string, error) {
	dir := filepath.Join(s.clipsDir, projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create clip dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(src))
	name := fmt.Sprintf("%s-%d%s", cleanName(slotID), s.now().UnixNano(), ext)
	dst := filepath.Join(dir, name)
	if _, err := copyFile(src, dst); err != nil {
		return "", fmt.Errorf("import clip: %w", err)
	}
	return dst, nil
}

// Release deletes clip media. Paths outside the clip directory are left alone
// since they were never imported by this store.
func (s *Store) Release(path string) error {
	if path == "" || !s.owns(path) {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release clip media: %w", err)
	}
	return nil
}

// ReleaseProject removes the whole clip directory of a project.
func (s *Store) ReleaseProject(projectID string) error {
	if projectID == "" {
		return nil
	}
	return os.RemoveAll(filepath.Join(s.clipsDir, projectID))
}

// WriteOutput stores a finished render and returns its URL.
func (s *Store) WriteOutput(title, ext string, data []byte) (string, error) {
	path, err := s.writeAtomic(s.outputPath(title, ext), bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	return FileURL(path)
}

// CopyOutput stores a verified copy of src as a finished render. The copy is
// compared with the source by size and SHA-256 before it is published.
// Cancelling ctx stops the copy between reads and leaves nothing behind.
func (s *Store) CopyOutput(ctx context.Context, title, src string) (string, error) {
	srcSum, srcSize, err := fileDigest(ctx, src)
	if err != nil {
		return "", fmt.Errorf("hash source: %w", err)
	}

	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	path, err := s.writeAtomic(s.outputPath(title, filepath.Ext(src)), &ctxReader{ctx: ctx, r: f})
	if err != nil {
		return "", err
	}

	dstSum, dstSize, err := fileDigest(ctx, path)
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("hash copy: %w", err)
	}
	if dstSize != srcSize || !bytes.Equal(dstSum, srcSum) {
		_ = os.Remove(path)
		return "", fmt.Errorf("copy verification failed for %s", src)
	}
	return FileURL(path)
}

// outputPath picks a fresh name so earlier outputs are never replaced.
func (s *Store) outputPath(title, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "bin"
	}
	now := s.now()
	base := fmt.Sprintf("%s_%s_%06d", cleanName(title), now.Format("2006-01-02_15-04-05"), now.Nanosecond()/1000)
	path := filepath.Join(s.outputDir, base+"."+ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); err != nil {
			return path
		}
		path = filepath.Join(s.outputDir, fmt.Sprintf("%s_%d.%s", base, i, ext))
	}
}

func (s *Store) writeAtomic(path string, r io.Reader) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".partial-*")
	if err != nil {
		return "", fmt.Errorf("create temp output: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("publish output: %w", err)
	}
	return path, nil
}

func (s *Store) owns(path string) bool {
	root, err := filepath.Abs(s.clipsDir)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, abs)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

// FileURL turns a local path into an absolute file:// URL.
func FileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// PathFromURL reverses FileURL. Plain paths are returned unchanged.
func PathFromURL(ref string) (string, error) {
	if !strings.HasPrefix(ref, "file://") {
		return ref, nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return filepath.FromSlash(u.Path), nil
}

func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "untitled"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_")
	return replacer.Replace(name)
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst)
	}
	return n, err
}

// ctxReader fails the next read once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func fileDigest(ctx context.Context, path string) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, &ctxReader{ctx: ctx, r: f})
	if err != nil {
		return nil, 0, err
	}
	return h.Sum(nil), n, nil
}
