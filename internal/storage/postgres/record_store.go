package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/ctisec/ctihub/internal/intel"
)

// upsertRecordSQL writes one canonical record. The xmax trick reports
// whether the row was freshly inserted: a brand new row has xmax 0.
// source_id and source are immutable, everything else refreshes.
const upsertRecordSQL = `
INSERT INTO intel_records (
	source_id, source, title, url, content, ts,
	min_role, allowed_roles, origin,
	cves, severity, weaknesses, refs, listing_id, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14, now()
)
ON CONFLICT (source_id) DO UPDATE SET
	title = EXCLUDED.title,
	url = EXCLUDED.url,
	content = EXCLUDED.content,
	ts = EXCLUDED.ts,
	min_role = EXCLUDED.min_role,
	allowed_roles = EXCLUDED.allowed_roles,
	origin = EXCLUDED.origin,
	cves = EXCLUDED.cves,
	severity = EXCLUDED.severity,
	weaknesses = EXCLUDED.weaknesses,
	refs = EXCLUDED.refs,
	listing_id = EXCLUDED.listing_id,
	updated_at = now()
RETURNING (xmax = 0) AS inserted`

// RecordStore persists canonical records.
type RecordStore struct {
	db     querier
	logger *zap.Logger
}

// NewRecordStore builds a RecordStore on an existing pool.
func NewRecordStore(db querier, logger *zap.Logger) *RecordStore {
	return &RecordStore{db: db, logger: logger.Named("record_store")}
}

// BulkUpsert writes records one by one, keyed on source_id. A failing
// record is logged and skipped so one malformed row never aborts a run.
func (s *RecordStore) BulkUpsert(ctx context.Context, records []intel.Record) (inserted, matched int, err error) {
	for _, rec := range records {
		if rec.SourceID == "" {
			s.logger.Warn("skipping record without source_id", zap.String("url", rec.URL))
			continue
		}
		wasInsert, upsertErr := s.upsert(ctx, rec)
		if upsertErr != nil {
			if ctx.Err() != nil {
				return inserted, matched, ctx.Err()
			}
			s.logger.Warn("record upsert failed",
				zap.String("source_id", rec.SourceID),
				zap.Error(upsertErr))
			continue
		}
		if wasInsert {
			inserted++
		} else {
			matched++
		}
	}
	return inserted, matched, nil
}

func (s *RecordStore) upsert(ctx context.Context, rec intel.Record) (bool, error) {
	var severity []byte
	if rec.Severity != nil {
		b, err := json.Marshal(rec.Severity)
		if err != nil {
			return false, fmt.Errorf("marshal severity: %w", err)
		}
		severity = b
	}

	roles := make([]string, len(rec.AllowedRoles))
	for i, r := range rec.AllowedRoles {
		roles[i] = string(r)
	}

	var wasInsert bool
	err := s.db.QueryRow(ctx, upsertRecordSQL,
		rec.SourceID,
		string(rec.Source),
		rec.Title,
		rec.URL,
		rec.Content,
		rec.Timestamp,
		string(rec.MinRole),
		roles,
		rec.Origin,
		rec.CVEs,
		severity,
		rec.Weaknesses,
		rec.References,
		rec.ListingID,
	).Scan(&wasInsert)
	if err != nil {
		return false, fmt.Errorf("upsert record: %w", err)
	}
	return wasInsert, nil
}
