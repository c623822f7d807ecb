package postgres

import (
	"testing"

	"github.com/fieldsync/fieldsync/database"
	"github.com/fieldsync/fieldsync/internal/record"
	"github.com/fieldsync/fieldsync/internal/storage/storetest"
)

func TestStore(t *testing.T) {
	t.Parallel()

	pool, cleanup := database.SetupTestDB(t)
	t.Cleanup(cleanup)

	storetest.Run(t, func(_ *testing.T, recordType string) record.Store {
		return New(pool, recordType)
	})
}
