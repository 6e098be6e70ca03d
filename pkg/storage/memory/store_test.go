package memory

import (
	"testing"
	"time"

	"github.com/marmos91/dittorepo/pkg/storage"
	storetesting "github.com/marmos91/dittorepo/pkg/storage/testing"
)

func TestMemoryStore(t *testing.T) {
	suite := &storetesting.StoreTestSuite{
		NewStore: func(t *testing.T) storage.Store {
			return NewMemoryStore(Config{LockTimeout: 200 * time.Millisecond})
		},
	}
	suite.Run(t)
}
