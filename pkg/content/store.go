// Package content stores artifact binaries by content address.
//
// A binary is written once and identified by its SHA-1. Every file item in
// the item store references a binary through storage.Checksums.SHA1, so two
// files with identical bytes share one stored binary.
package content

import (
	"context"
	"io"

	"github.com/marmos91/dittorepo/pkg/storage"
)

// BinaryInfo describes a stored binary.
type BinaryInfo struct {
	Checksums storage.Checksums `json:"checksums"`
	Size      int64             `json:"size"`
}

// Stats summarizes a store's contents.
type Stats struct {
	Binaries  int   `json:"binaries"`
	TotalSize int64 `json:"total_size"`
}

// Store is a content-addressable binary provider.
//
// Thread Safety:
// Implementations must be safe for concurrent use. Concurrent writes of the
// same bytes are allowed and converge on one stored binary.
type Store interface {
	// Stat returns the stored binary's info, or ErrBinaryNotFound.
	Stat(ctx context.Context, sha1 string) (*BinaryInfo, error)

	// Read opens the binary for reading. The caller closes the reader.
	Read(ctx context.Context, sha1 string) (io.ReadCloser, error)

	// Write streams r into the store, computing SHA-1, MD5 and SHA-256 on
	// the way, and stores it under its SHA-1. Writing bytes that are already
	// stored is a no-op that returns the existing info.
	Write(ctx context.Context, r io.Reader) (*BinaryInfo, error)

	// Delete removes the binary. Deleting a missing binary is not an error.
	Delete(ctx context.Context, sha1 string) error

	// List returns the SHA-1 of every stored binary.
	List(ctx context.Context) ([]string, error)

	// Stats returns the number and total size of stored binaries.
	Stats(ctx context.Context) (Stats, error)
}

// Has reports whether sha1 is stored with the given md5 and size.
func Has(ctx context.Context, store Store, checksums storage.Checksums, size int64) (bool, error) {
	info, err := store.Stat(ctx, checksums.SHA1)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return info.Checksums.MD5 == checksums.MD5 && info.Size == size, nil
}
