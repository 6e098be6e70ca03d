package relocate

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/marmos91/dittorepo/pkg/storage"
)

// Level is the severity of a status entry.
type Level int

const (
	LevelWarning Level = iota
	LevelError
)

func (l Level) String() string {
	if l == LevelError {
		return "error"
	}
	return "warning"
}

// Code classifies why an item was not relocated.
type Code int

const (
	// CodePolicyRejection: the target's release/snapshot policy refuses the path
	CodePolicyRejection Code = iota

	// CodeForbidden: the target's include/exclude patterns refuse the path
	CodeForbidden

	// CodePermissionDenied: the user lacks delete or deploy permission
	CodePermissionDenied

	// CodeConflict: folder/file clash at the target, overlapping source and
	// target, or a checksum mismatch after placing the binary
	CodeConflict

	// CodeValidationFailure: descriptor coordinates disagree with the target path
	CodeValidationFailure

	// CodeNotFound: the source vanished, or an ancestor to recalculate did
	CodeNotFound

	// CodeStorageFailure: the item store or a binary store failed
	CodeStorageFailure

	// CodeCancelled: an interceptor cancelled the item's subtree
	CodeCancelled
)

func (c Code) String() string {
	switch c {
	case CodePolicyRejection:
		return "policy_rejection"
	case CodeForbidden:
		return "forbidden"
	case CodePermissionDenied:
		return "permission_denied"
	case CodeConflict:
		return "conflict"
	case CodeValidationFailure:
		return "validation_failure"
	case CodeNotFound:
		return "not_found"
	case CodeStorageFailure:
		return "storage_failure"
	case CodeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// HTTPStatus maps the code to the status an HTTP surface would answer with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeForbidden, CodePermissionDenied:
		return http.StatusForbidden
	case CodePolicyRejection, CodeConflict, CodeValidationFailure:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeCancelled:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Entry is one warning or error recorded during a relocation.
type Entry struct {
	Level   Level
	Code    Code
	Message string
	Path    storage.RepoPath
	Cause   error
}

func (e Entry) String() string {
	s := fmt.Sprintf("[%s] %s: %s", e.Level, e.Code, e.Message)
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

// Status accumulates the outcome of one relocation request.
//
// Thread Safety: Not safe for concurrent use. A status belongs to the single
// walk that fills it and is read by the caller once the walk returns.
type Status struct {
	id           string
	movedFiles   int
	movedFolders int
	entries      []Entry
	cancelled    bool

	// candidates maps ancestors awaiting recalculation to whether the
	// recalculation must descend into subfolders.
	candidates map[storage.RepoPath]bool
}

func newStatus() *Status {
	return &Status{
		id:         uuid.NewString(),
		candidates: make(map[storage.RepoPath]bool),
	}
}

// ID identifies the relocation request in logs.
func (s *Status) ID() string { return s.id }

// MovedFiles returns the number of files relocated (or that would be, in a dry run).
func (s *Status) MovedFiles() int { return s.movedFiles }

// MovedFolders returns the number of folders relocated.
func (s *Status) MovedFolders() int { return s.movedFolders }

// Moved returns MovedFiles + MovedFolders.
func (s *Status) Moved() int { return s.movedFiles + s.movedFolders }

// Entries returns every recorded entry in order.
func (s *Status) Entries() []Entry { return slices.Clone(s.entries) }

// Errors returns the error entries in order.
func (s *Status) Errors() []Entry { return s.filter(LevelError) }

// Warnings returns the warning entries in order.
func (s *Status) Warnings() []Entry { return s.filter(LevelWarning) }

func (s *Status) filter(level Level) []Entry {
	var out []Entry
	for _, e := range s.entries {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// HasErrors reports whether any error was recorded.
func (s *Status) HasErrors() bool {
	return slices.ContainsFunc(s.entries, func(e Entry) bool { return e.Level == LevelError })
}

// HasWarnings reports whether any warning was recorded.
func (s *Status) HasWarnings() bool {
	return slices.ContainsFunc(s.entries, func(e Entry) bool { return e.Level == LevelWarning })
}

// Cancelled reports whether fail-fast stopped the walk early.
func (s *Status) Cancelled() bool { return s.cancelled }

// LastError returns the most recent error entry.
func (s *Status) LastError() (Entry, bool) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Level == LevelError {
			return s.entries[i], true
		}
	}
	return Entry{}, false
}

// MetadataCandidates returns the ancestors whose metadata is stale, sorted.
// Empty when metadata was recalculated synchronously.
func (s *Status) MetadataCandidates() []storage.RepoPath {
	out := make([]storage.RepoPath, 0, len(s.candidates))
	for p := range s.candidates {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b storage.RepoPath) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}

// Summary returns a one-line description for logs and CLI output.
func (s *Status) Summary() string {
	return fmt.Sprintf("files=%d folders=%d errors=%d warnings=%d cancelled=%v",
		s.movedFiles, s.movedFolders, len(s.Errors()), len(s.Warnings()), s.cancelled)
}

func (s *Status) fileMoved()   { s.movedFiles++ }
func (s *Status) folderMoved() { s.movedFolders++ }

func (s *Status) record(level Level, code Code, p storage.RepoPath, cause error, format string, args ...any) {
	s.entries = append(s.entries, Entry{
		Level:   level,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Path:    p,
		Cause:   cause,
	})
}

func (s *Status) errorf(code Code, p storage.RepoPath, cause error, format string, args ...any) {
	s.record(LevelError, code, p, cause, format, args...)
}

func (s *Status) warnf(code Code, p storage.RepoPath, cause error, format string, args ...any) {
	s.record(LevelWarning, code, p, cause, format, args...)
}

func (s *Status) addCandidate(p storage.RepoPath, recursive bool) {
	s.candidates[p] = s.candidates[p] || recursive
}

// shouldAbort reports whether fail-fast must stop the walk.
func (s *Status) shouldAbort(cfg MoveConfig) bool {
	return cfg.failFast && len(s.entries) > 0
}

func (s *Status) cancel() { s.cancelled = true }

// rollback discards the counts and candidates of a walk whose transaction
// was aborted. Recorded entries are kept.
func (s *Status) rollback() {
	s.movedFiles = 0
	s.movedFolders = 0
	clear(s.candidates)
}
