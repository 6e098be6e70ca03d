package badger

import (
	"bytes"

	"github.com/marmos91/dittorepo/pkg/storage"
)

// Key layout:
//
//	i:<repo>:<path>               -> JSON encoded storage.Item
//	c:<repo>:<parent>\x00<name>   -> empty (child index)
//
// The child index sorts by name under a common parent prefix, so a prefix
// iteration returns children in name order. Repository roots have no item key.
const (
	prefixItem  = "i:"
	prefixChild = "c:"
	childSep    = 0x00
)

func itemKey(p storage.RepoPath) []byte {
	return []byte(prefixItem + p.RepoKey + ":" + p.Path)
}

func childPrefix(parent storage.RepoPath) []byte {
	key := []byte(prefixChild + parent.RepoKey + ":" + parent.Path)
	return append(key, childSep)
}

func childKey(parent storage.RepoPath, name string) []byte {
	return append(childPrefix(parent), name...)
}

func childNameFromKey(prefix, key []byte) string {
	return string(bytes.TrimPrefix(key, prefix))
}
