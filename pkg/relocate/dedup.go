package relocate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittorepo/pkg/content"
	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/marmos91/dittorepo/pkg/repository"
	"github.com/marmos91/dittorepo/pkg/storage"
)

// ErrChecksumMismatch is returned by Place when the binary stored for the
// target does not carry the source file's checksums.
var ErrChecksumMismatch = errors.New("checksum mismatch after placement")

// Deduplicator places file items in target repositories, reusing stored
// binaries whenever the target's binary store already holds the content.
type Deduplicator struct {
	metrics metrics.RelocationMetrics
	now     func() time.Time
}

// NewDeduplicator creates a deduplicator. m may be nil.
func NewDeduplicator(m metrics.RelocationMetrics) *Deduplicator {
	if m == nil {
		m = metrics.NewNoopRelocationMetrics()
	}
	return &Deduplicator{
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Place writes src to target inside tx.
//
// When the target repository's binary store already has a binary with the
// source's SHA-1, MD5 and size, the new item references it (link).
// Otherwise the bytes are streamed from the source store into the target
// store and the resulting checksums are compared with the source's; a
// mismatch returns ErrChecksumMismatch before the item store is touched.
//
// Any item already stored at the target is replaced. The source's
// properties, plus the configured extra properties, are copied in both
// cases. Returns whether the binary was linked.
func (d *Deduplicator) Place(ctx context.Context, tx storage.Tx, src *storage.Item, srcRepo *repository.Repo,
	target Target, cfg MoveConfig, user string) (bool, error) {
	dst := target.Repo.Binaries()

	linked, err := content.Has(ctx, dst, src.Checksums, src.Size)
	if err != nil {
		return false, fmt.Errorf("failed to stat binary %s: %w", src.Checksums.SHA1, err)
	}

	if !linked {
		if err := d.stream(ctx, src, srcRepo.Binaries(), dst); err != nil {
			return false, err
		}
	}

	item := src.Clone()
	item.Path = target.Path
	item.ModifiedBy = user
	item.LastModified = d.now()
	if item.Properties == nil {
		item.Properties = storage.Properties{}
	}
	item.Properties.Merge(cfg.properties)

	if _, err := tx.Delete(target.Path); err != nil {
		return false, err
	}
	if err := tx.PutFile(item); err != nil {
		return false, err
	}

	d.metrics.RecordPlacement(linked, src.Size)
	return linked, nil
}

func (d *Deduplicator) stream(ctx context.Context, src *storage.Item, from, to content.Store) error {
	rc, err := from.Read(ctx, src.Checksums.SHA1)
	if err != nil {
		return fmt.Errorf("failed to read binary %s: %w", src.Checksums.SHA1, err)
	}
	defer func() { _ = rc.Close() }()

	info, err := to.Write(ctx, rc)
	if err != nil {
		return fmt.Errorf("failed to write binary %s: %w", src.Checksums.SHA1, err)
	}

	if !info.Checksums.Equal(src.Checksums) || info.Size != src.Size {
		return fmt.Errorf("%w: expected sha1=%s md5=%s size=%d, got sha1=%s md5=%s size=%d",
			ErrChecksumMismatch, src.Checksums.SHA1, src.Checksums.MD5, src.Size,
			info.Checksums.SHA1, info.Checksums.MD5, info.Size)
	}
	return nil
}
