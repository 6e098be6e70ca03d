// Package memory implements content.Store in process memory.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/marmos91/dittorepo/pkg/content"
)

type binary struct {
	info content.BinaryInfo
	data []byte
}

// MemoryContentStore keeps binaries in a map keyed by SHA-1.
//
// Thread Safety:
// Safe for concurrent use; all access goes through mu.
type MemoryContentStore struct {
	mu       sync.RWMutex
	binaries map[string]*binary
	writes   int
}

// NewMemoryContentStore creates an empty store.
func NewMemoryContentStore() *MemoryContentStore {
	return &MemoryContentStore{binaries: make(map[string]*binary)}
}

func (s *MemoryContentStore) Stat(ctx context.Context, sha1 string) (*content.BinaryInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.binaries[sha1]
	if !ok {
		return nil, fmt.Errorf("binary %s: %w", sha1, content.ErrBinaryNotFound)
	}
	info := b.info
	return &info, nil
}

func (s *MemoryContentStore) Read(ctx context.Context, sha1 string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.binaries[sha1]
	if !ok {
		return nil, fmt.Errorf("binary %s: %w", sha1, content.ErrBinaryNotFound)
	}
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

func (s *MemoryContentStore) Write(ctx context.Context, r io.Reader) (*content.BinaryInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d := content.NewDigester()
	data, err := io.ReadAll(io.TeeReader(r, d))
	if err != nil {
		return nil, fmt.Errorf("failed to read binary: %w", err)
	}
	info := d.Info()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if existing, ok := s.binaries[info.Checksums.SHA1]; ok {
		out := existing.info
		return &out, nil
	}
	s.binaries[info.Checksums.SHA1] = &binary{info: *info, data: data}
	return info, nil
}

func (s *MemoryContentStore) Delete(ctx context.Context, sha1 string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.binaries, sha1)
	return nil
}

func (s *MemoryContentStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.binaries))
	for k := range s.binaries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *MemoryContentStore) Stats(ctx context.Context) (content.Stats, error) {
	if err := ctx.Err(); err != nil {
		return content.Stats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := content.Stats{Binaries: len(s.binaries)}
	for _, b := range s.binaries {
		stats.TotalSize += b.info.Size
	}
	return stats, nil
}

// Writes returns how many Write calls the store has served, including
// writes of already stored bytes.
func (s *MemoryContentStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
