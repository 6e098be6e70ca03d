package content

import "errors"

// Standard binary store errors. Implementations wrap them with context:
//
//	return nil, fmt.Errorf("binary %s: %w", sha1, content.ErrBinaryNotFound)
var (
	// ErrBinaryNotFound indicates no binary is stored under the checksum.
	ErrBinaryNotFound = errors.New("binary not found")

	// ErrIntegrityCheckFailed indicates stored bytes do not match their checksums.
	ErrIntegrityCheckFailed = errors.New("integrity check failed")

	// ErrInvalidChecksum indicates a malformed SHA-1 key.
	ErrInvalidChecksum = errors.New("invalid checksum")
)
