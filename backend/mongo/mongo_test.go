package mongo

import (
	"strings"
	"testing"

	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/backend/test"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testURI = "mongodb://localhost:27017"

func Test_MongoStore(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	test.StoreTest(t, func() backend.Store {
		dbName := "test_" + strings.Replace(uuid.NewString(), "-", "", -1)

		s, err := NewMongoStore(testURI, dbName)
		require.NoError(t, err)

		return s
	}, func(s backend.Store) {
		ms := s.(*mongoStore)

		require.NoError(t, ms.db.Drop(t.Context()))
		require.NoError(t, ms.Close())
	})
}
