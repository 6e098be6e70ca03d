package content

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"hash"
	"io"

	"github.com/marmos91/dittorepo/pkg/storage"
	"github.com/opencontainers/go-digest"
)

// Digester computes every checksum a binary carries in one pass.
type Digester struct {
	sha1   hash.Hash
	md5    hash.Hash
	sha256 digest.Digester
	size   int64
}

// NewDigester returns an empty Digester.
func NewDigester() *Digester {
	return &Digester{
		sha1:   sha1.New(),
		md5:    md5.New(),
		sha256: digest.SHA256.Digester(),
	}
}

// Write implements io.Writer.
func (d *Digester) Write(p []byte) (int, error) {
	d.sha1.Write(p)
	d.md5.Write(p)
	d.sha256.Hash().Write(p)
	d.size += int64(len(p))
	return len(p), nil
}

// Info returns the checksums and size of everything written so far.
func (d *Digester) Info() *BinaryInfo {
	return &BinaryInfo{
		Checksums: storage.Checksums{
			SHA1:   hex.EncodeToString(d.sha1.Sum(nil)),
			MD5:    hex.EncodeToString(d.md5.Sum(nil)),
			SHA256: d.sha256.Digest().Encoded(),
		},
		Size: d.size,
	}
}

// Digest reads r to EOF and returns its checksums.
func Digest(r io.Reader) (*BinaryInfo, error) {
	d := NewDigester()
	if _, err := io.Copy(d, r); err != nil {
		return nil, err
	}
	return d.Info(), nil
}

// VerifySHA256 checks data read from r against a hex SHA-256.
func VerifySHA256(r io.Reader, sha256Hex string) error {
	d, err := digest.Parse(string(digest.SHA256) + ":" + sha256Hex)
	if err != nil {
		return errors.Join(ErrInvalidChecksum, err)
	}
	verifier := d.Verifier()
	if _, err := io.Copy(verifier, r); err != nil {
		return err
	}
	if !verifier.Verified() {
		return ErrIntegrityCheckFailed
	}
	return nil
}

// ValidSHA1 reports whether s is a lowercase hex SHA-1.
func ValidSHA1(s string) bool {
	if len(s) != 2*sha1.Size {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// IsNotFound reports whether err wraps ErrBinaryNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBinaryNotFound)
}
