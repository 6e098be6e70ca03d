package metrics

import "time"

// RelocationMetrics provides observability for the relocation engine.
//
// This interface is optional - if not provided to the engine, a no-op
// implementation is used with zero overhead.
type RelocationMetrics interface {
	// RecordRelocation records a completed relocation request.
	//
	// Parameters:
	//   - kind: "move" or "copy"
	//   - strategy: "single_transaction" or "per_item"
	//   - dryRun: Whether the request was a preview
	//   - duration: Time taken by the whole request
	//   - moved: Files and folders relocated
	//   - errors: Error entries recorded on the outcome
	RecordRelocation(kind, strategy string, dryRun bool, duration time.Duration, moved, errors int)

	// RecordItem records the decision taken for one visited item.
	//
	// Parameters:
	//   - itemType: "file" or "folder"
	//   - outcome: "relocated", "rejected", "failed" or "cancelled"
	RecordItem(itemType, outcome string)

	// RecordPlacement records how a file's binary reached the target store.
	//
	// Parameters:
	//   - linked: true when an existing binary was reused, false for a stream copy
	//   - bytes: Size of the file
	RecordPlacement(linked bool, bytes int64)
}

// NewNoopRelocationMetrics returns a RelocationMetrics that discards everything.
func NewNoopRelocationMetrics() RelocationMetrics {
	return noopRelocationMetrics{}
}

type noopRelocationMetrics struct{}

func (noopRelocationMetrics) RecordRelocation(string, string, bool, time.Duration, int, int) {}
func (noopRelocationMetrics) RecordItem(string, string)                                     {}
func (noopRelocationMetrics) RecordPlacement(bool, int64)                                   {}
