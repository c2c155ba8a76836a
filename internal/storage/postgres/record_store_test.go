package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ctisec/ctihub/internal/intel"
)

func testRecord(id string) intel.Record {
	return intel.Record{
		SourceID:     id,
		Source:       intel.SourceCatalog,
		Title:        "Acme Widget RCE",
		URL:          "https://example.com/catalog",
		Content:      "Acme Widget contains a remote code execution vulnerability.",
		Timestamp:    time.Unix(1700000000, 0).UTC(),
		MinRole:      intel.RolePro,
		AllowedRoles: []intel.Role{intel.RolePro, intel.RoleAdmin},
		Origin:       "example.com",
		CVEs:         []string{"CVE-2024-1234"},
	}
}

func expectUpsert(mock pgxmock.PgxPoolIface, rec intel.Record, inserted bool) {
	mock.ExpectQuery("INSERT INTO intel_records").
		WithArgs(
			rec.SourceID,
			string(rec.Source),
			rec.Title,
			rec.URL,
			rec.Content,
			rec.Timestamp,
			string(rec.MinRole),
			[]string{"pro", "admin"},
			rec.Origin,
			rec.CVEs,
			[]byte(nil),
			[]string(nil),
			[]string(nil),
			rec.ListingID,
		).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(inserted))
}

func TestBulkUpsertCountsInsertsAndMatches(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewRecordStore(mock, zap.NewNop())

	a := testRecord("catalog:CVE-2024-1234")
	b := testRecord("catalog:CVE-2024-5678")
	expectUpsert(mock, a, true)
	expectUpsert(mock, b, false)

	inserted, matched, err := store.BulkUpsert(context.Background(), []intel.Record{a, b})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 1, matched)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsertSkipsFailingRecord(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewRecordStore(mock, zap.NewNop())

	bad := testRecord("catalog:CVE-2024-0000")
	good := testRecord("catalog:CVE-2024-1234")

	mock.ExpectQuery("INSERT INTO intel_records").
		WithArgs(
			bad.SourceID, string(bad.Source), bad.Title, bad.URL, bad.Content, bad.Timestamp,
			string(bad.MinRole), []string{"pro", "admin"}, bad.Origin, bad.CVEs,
			[]byte(nil), []string(nil), []string(nil), bad.ListingID,
		).
		WillReturnError(errors.New("value too long"))
	expectUpsert(mock, good, true)

	inserted, matched, err := store.BulkUpsert(context.Background(), []intel.Record{bad, good})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 0, matched)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsertSkipsMissingSourceID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewRecordStore(mock, zap.NewNop())

	inserted, matched, err := store.BulkUpsert(context.Background(), []intel.Record{{URL: "https://example.com"}})
	require.NoError(t, err)
	assert.Zero(t, inserted)
	assert.Zero(t, matched)
	require.NoError(t, mock.ExpectationsWereMet())
}
