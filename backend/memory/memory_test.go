package memory

import (
	"testing"

	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/backend/test"
)

func Test_MemoryStore(t *testing.T) {
	test.StoreTest(t, func() backend.Store {
		return NewMemoryStore()
	}, nil)
}
