package relocate

import "github.com/marmos91/dittorepo/pkg/storage"

// Strategy selects how a relocation is split into storage transactions.
type Strategy int

const (
	// SingleTransaction relocates the whole subtree inside one transaction.
	// The result is atomic, but every visited path stays locked until the
	// walk completes.
	SingleTransaction Strategy = iota

	// PerItem commits every folder creation and every file relocation in its
	// own transaction. Locks are held briefly; a failure leaves the items
	// committed before it in place.
	PerItem
)

func (s Strategy) String() string {
	switch s {
	case SingleTransaction:
		return "single_transaction"
	case PerItem:
		return "per_item"
	default:
		return "unknown"
	}
}

// MoveConfig describes one relocation request. It is built once with
// NewMoveConfig and never modified afterwards.
type MoveConfig struct {
	copy               bool
	dryRun             bool
	failFast           bool
	unixStyle          bool
	pruneEmptyFolders  bool
	recalcMetadataSync bool
	strategy           Strategy
	properties         storage.Properties
}

// Option configures a MoveConfig.
type Option func(*MoveConfig)

// NewMoveConfig builds a move (not a copy) configuration.
func NewMoveConfig(opts ...Option) MoveConfig {
	var cfg MoveConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// AsCopy keeps the source items in place.
func AsCopy() Option {
	return func(c *MoveConfig) { c.copy = true }
}

// DryRun evaluates every item without mutating storage.
func DryRun() Option {
	return func(c *MoveConfig) { c.dryRun = true }
}

// FailFast stops the walk at the first recorded error or warning.
func FailFast() Option {
	return func(c *MoveConfig) { c.failFast = true }
}

// UnixStyle nests the source under an existing target folder instead of
// replacing it, like mv(1).
func UnixStyle() Option {
	return func(c *MoveConfig) { c.unixStyle = true }
}

// PruneDeferred hands emptied source folders to the pruning service instead
// of deleting them inline.
func PruneDeferred() Option {
	return func(c *MoveConfig) { c.pruneEmptyFolders = true }
}

// SyncMetadata recalculates ancestor metadata before returning instead of
// only recording the candidates on the status.
func SyncMetadata() Option {
	return func(c *MoveConfig) { c.recalcMetadataSync = true }
}

// WithStrategy selects the transaction strategy.
func WithStrategy(s Strategy) Option {
	return func(c *MoveConfig) { c.strategy = s }
}

// WithProperties stamps props onto every relocated item.
func WithProperties(props storage.Properties) Option {
	return func(c *MoveConfig) { c.properties = props.Clone() }
}

// Copy reports whether the source items are kept.
func (c MoveConfig) Copy() bool { return c.copy }

// IsDryRun reports whether storage is left untouched.
func (c MoveConfig) IsDryRun() bool { return c.dryRun }

// IsFailFast reports whether the first warning or error stops the walk.
func (c MoveConfig) IsFailFast() bool { return c.failFast }

// IsUnixStyle reports whether an existing target folder receives the source
// as a child instead of its contents.
func (c MoveConfig) IsUnixStyle() bool { return c.unixStyle }

// PruneEmptyFolders reports whether emptied source folders are handed to the
// pruning service instead of being deleted during the walk.
func (c MoveConfig) PruneEmptyFolders() bool { return c.pruneEmptyFolders }

// RecalcMetadataSync reports whether ancestor metadata is recalculated
// before the request returns.
func (c MoveConfig) RecalcMetadataSync() bool { return c.recalcMetadataSync }

// Strategy returns the transaction strategy.
func (c MoveConfig) Strategy() Strategy { return c.strategy }

// Properties returns a copy of the properties stamped onto relocated items.
func (c MoveConfig) Properties() storage.Properties {
	return c.properties.Clone()
}

// Kind returns "copy" or "move".
func (c MoveConfig) Kind() string {
	if c.copy {
		return "copy"
	}
	return "move"
}

// with returns a copy of c with opts applied.
func (c MoveConfig) with(opts ...Option) MoveConfig {
	c.properties = c.properties.Clone()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
