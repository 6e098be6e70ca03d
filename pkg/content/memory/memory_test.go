package memory

import (
	"testing"

	"github.com/marmos91/dittorepo/pkg/content"
	contenttesting "github.com/marmos91/dittorepo/pkg/content/testing"
)

func TestMemoryContentStore(t *testing.T) {
	suite := &contenttesting.StoreTestSuite{
		NewStore: func(t *testing.T) content.Store {
			return NewMemoryContentStore()
		},
	}
	suite.Run(t)
}
