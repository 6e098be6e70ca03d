// Package fs implements content.Store on a local directory.
//
// Binaries live under a two-level fan-out derived from their SHA-1:
//
//	<root>/2a/ae/2aae6c35c94fcfb415dbe95f408b9ce91ee846ed        (bytes)
//	<root>/2a/ae/2aae6c35c94fcfb415dbe95f408b9ce91ee846ed.json   (checksums)
//
// Uploads are spooled to <root>/_tmp while hashing, then renamed into place
// under a per-binary file lock so that concurrent processes sharing the
// directory never observe a partial binary.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fluxcd/pkg/lockedfile"
	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/content"
)

const tmpDir = "_tmp"

// Config configures a FSContentStore.
type Config struct {
	// Path is the root directory of the store
	Path string `mapstructure:"path" validate:"required"`

	// DirMode is the permission used for fan-out directories (default: 0755)
	DirMode os.FileMode `mapstructure:"dir_mode"`

	// FileMode is the permission used for binaries (default: 0644)
	FileMode os.FileMode `mapstructure:"file_mode"`
}

// FSContentStore stores binaries as files.
//
// Thread Safety:
// Safe for concurrent use within and across processes sharing Path.
type FSContentStore struct {
	root     string
	dirMode  os.FileMode
	fileMode os.FileMode
}

// NewFSContentStore creates the root and temp directories if needed.
func NewFSContentStore(ctx context.Context, cfg Config) (*FSContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("filesystem binary store: path is required")
	}

	dirMode := cfg.DirMode
	if dirMode == 0 {
		dirMode = 0755
	}
	fileMode := cfg.FileMode
	if fileMode == 0 {
		fileMode = 0644
	}

	if err := os.MkdirAll(filepath.Join(cfg.Path, tmpDir), dirMode); err != nil {
		return nil, fmt.Errorf("failed to create binary store directory %s: %w", cfg.Path, err)
	}

	return &FSContentStore{root: cfg.Path, dirMode: dirMode, fileMode: fileMode}, nil
}

func (s *FSContentStore) binaryPath(sha1 string) string {
	return filepath.Join(s.root, sha1[0:2], sha1[2:4], sha1)
}

func (s *FSContentStore) sidecarPath(sha1 string) string {
	return s.binaryPath(sha1) + ".json"
}

func (s *FSContentStore) lock(sha1 string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.binaryPath(sha1)), s.dirMode); err != nil {
		return nil, err
	}
	return lockedfile.MutexAt(s.binaryPath(sha1) + ".lock").Lock()
}

func (s *FSContentStore) Stat(ctx context.Context, sha1 string) (*content.BinaryInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !content.ValidSHA1(sha1) {
		return nil, fmt.Errorf("binary %q: %w", sha1, content.ErrInvalidChecksum)
	}

	data, err := os.ReadFile(s.sidecarPath(sha1))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("binary %s: %w", sha1, content.ErrBinaryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checksums of %s: %w", sha1, err)
	}

	var info content.BinaryInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("corrupt checksums of %s: %w", sha1, err)
	}
	return &info, nil
}

func (s *FSContentStore) Read(ctx context.Context, sha1 string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !content.ValidSHA1(sha1) {
		return nil, fmt.Errorf("binary %q: %w", sha1, content.ErrInvalidChecksum)
	}

	f, err := os.Open(s.binaryPath(sha1))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("binary %s: %w", sha1, content.ErrBinaryNotFound)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *FSContentStore) Write(ctx context.Context, r io.Reader) (info *content.BinaryInfo, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tf, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "upload-*")
	if err != nil {
		return nil, err
	}
	tfName := tf.Name()
	defer func() {
		// Removing after a successful rename fails harmlessly.
		_ = os.Remove(tfName)
	}()

	d := content.NewDigester()
	if _, err := io.Copy(io.MultiWriter(tf, d), r); err != nil {
		tf.Close()
		return nil, fmt.Errorf("failed to spool binary: %w", err)
	}
	if err := tf.Close(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info = d.Info()
	sha1 := info.Checksums.SHA1

	unlock, err := s.lock(sha1)
	if err != nil {
		return nil, fmt.Errorf("failed to lock binary %s: %w", sha1, err)
	}
	defer unlock()

	if existing, err := s.Stat(ctx, sha1); err == nil {
		return existing, nil
	}

	if err := os.Chmod(tfName, s.fileMode); err != nil {
		return nil, err
	}
	if err := os.Rename(tfName, s.binaryPath(sha1)); err != nil {
		return nil, fmt.Errorf("failed to store binary %s: %w", sha1, err)
	}
	if err := s.writeSidecar(info); err != nil {
		_ = os.Remove(s.binaryPath(sha1))
		return nil, err
	}

	logger.Debug("Stored binary %s (%d bytes)", sha1, info.Size)
	return info, nil
}

// writeSidecar publishes the checksum file last: a binary without a sidecar
// is treated as absent.
func (s *FSContentStore) writeSidecar(info *content.BinaryInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	tf, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "sidecar-*")
	if err != nil {
		return err
	}
	tfName := tf.Name()
	if _, err := tf.Write(data); err != nil {
		tf.Close()
		_ = os.Remove(tfName)
		return err
	}
	if err := tf.Close(); err != nil {
		_ = os.Remove(tfName)
		return err
	}
	if err := os.Rename(tfName, s.sidecarPath(info.Checksums.SHA1)); err != nil {
		_ = os.Remove(tfName)
		return fmt.Errorf("failed to store checksums of %s: %w", info.Checksums.SHA1, err)
	}
	return nil
}

func (s *FSContentStore) Delete(ctx context.Context, sha1 string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !content.ValidSHA1(sha1) {
		return fmt.Errorf("binary %q: %w", sha1, content.ErrInvalidChecksum)
	}

	unlock, err := s.lock(sha1)
	if err != nil {
		return fmt.Errorf("failed to lock binary %s: %w", sha1, err)
	}
	defer unlock()

	for _, p := range []string{s.sidecarPath(sha1), s.binaryPath(sha1)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete binary %s: %w", sha1, err)
		}
	}
	return nil
}

func (s *FSContentStore) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			if entry.Name() == tmpDir {
				return filepath.SkipDir
			}
			return nil
		}
		name := entry.Name()
		if !content.ValidSHA1(name) {
			return nil
		}
		if _, err := os.Stat(path + ".json"); err == nil {
			keys = append(keys, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *FSContentStore) Stats(ctx context.Context) (content.Stats, error) {
	keys, err := s.List(ctx)
	if err != nil {
		return content.Stats{}, err
	}

	stats := content.Stats{Binaries: len(keys)}
	for _, key := range keys {
		fi, err := os.Stat(s.binaryPath(key))
		if err != nil {
			continue
		}
		stats.TotalSize += fi.Size()
	}
	return stats, nil
}

// Verify re-reads a stored binary and checks it against its recorded SHA-256.
func (s *FSContentStore) Verify(ctx context.Context, sha1 string) error {
	info, err := s.Stat(ctx, sha1)
	if err != nil {
		return err
	}
	rc, err := s.Read(ctx, sha1)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := content.VerifySHA256(rc, info.Checksums.SHA256); err != nil {
		return fmt.Errorf("binary %s: %w", sha1, err)
	}
	return nil
}
