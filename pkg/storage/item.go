package storage

import (
	"maps"
	"slices"
	"time"
)

// ItemType discriminates files from folders.
type ItemType int

const (
	ItemFile ItemType = iota
	ItemFolder
)

func (t ItemType) String() string {
	switch t {
	case ItemFile:
		return "file"
	case ItemFolder:
		return "folder"
	default:
		return "unknown"
	}
}

// Checksums is the checksum set recorded for a file.
//
// SHA1 is the content address: binaries are stored in a content.Store keyed
// by their SHA-1. MD5 and SHA256 are carried for client verification.
type Checksums struct {
	SHA1   string `json:"sha1"`
	MD5    string `json:"md5"`
	SHA256 string `json:"sha256,omitempty"`
}

// Equal compares SHA1 and MD5. SHA256 is compared only when both sides carry it.
func (c Checksums) Equal(other Checksums) bool {
	if c.SHA1 != other.SHA1 || c.MD5 != other.MD5 {
		return false
	}
	if c.SHA256 != "" && other.SHA256 != "" {
		return c.SHA256 == other.SHA256
	}
	return true
}

// Properties is a key to multi-value property bag attached to items.
type Properties map[string][]string

// Clone returns a deep copy. A nil bag clones to nil.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = slices.Clone(v)
	}
	return out
}

// Get returns the first value of key.
func (p Properties) Get(key string) (string, bool) {
	values := p[key]
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Set replaces all values of key.
func (p Properties) Set(key string, values ...string) {
	p[key] = slices.Clone(values)
}

// Add appends a value to key unless it is already present.
func (p Properties) Add(key, value string) {
	if slices.Contains(p[key], value) {
		return
	}
	p[key] = append(p[key], value)
}

// Merge overlays other onto p, replacing keys that exist in both.
func (p Properties) Merge(other Properties) {
	for k, v := range other {
		p[k] = slices.Clone(v)
	}
}

// Keys returns the property keys in sorted order.
func (p Properties) Keys() []string {
	return slices.Sorted(maps.Keys(p))
}

// Item is a file or folder node as persisted by a Store.
//
// Items returned by a Tx are copies: mutating one has no effect until it is
// written back with Tx.PutFile or Tx.UpdateItem.
type Item struct {
	Path         RepoPath   `json:"path"`
	Type         ItemType   `json:"type"`
	Size         int64      `json:"size"`
	Created      time.Time  `json:"created"`
	LastModified time.Time  `json:"last_modified"`
	ModifiedBy   string     `json:"modified_by,omitempty"`
	Checksums    Checksums  `json:"checksums"`
	Properties   Properties `json:"properties,omitempty"`
}

// IsFolder reports whether the item is a folder.
func (i *Item) IsFolder() bool {
	return i.Type == ItemFolder
}

// Name returns the last segment of the item's path.
func (i *Item) Name() string {
	return i.Path.Name()
}

// Clone returns a deep copy of the item.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	out := *i
	out.Properties = i.Properties.Clone()
	return &out
}

// NewFolder returns a folder item stamped with the current time.
func NewFolder(path RepoPath, modifiedBy string) *Item {
	now := time.Now().UTC()
	return &Item{
		Path:         path,
		Type:         ItemFolder,
		Created:      now,
		LastModified: now,
		ModifiedBy:   modifiedBy,
	}
}
