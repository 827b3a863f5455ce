package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	id "nivaran/pkg/domain"
)

// PostgresStore appends entries to an insert-only table. No UPDATE or DELETE
// statements exist in this file on purpose.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Schema:
//
//	CREATE TABLE audit_log (
//	    id           UUID PRIMARY KEY,
//	    grievance_id UUID NOT NULL,
//	    action       TEXT NOT NULL,
//	    status       TEXT NOT NULL,
//	    metadata     JSONB,
//	    error        TEXT NOT NULL DEFAULT '',
//	    created_at   TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX audit_log_grievance_idx ON audit_log (grievance_id, created_at);

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	var metadata []byte
	if len(entry.Metadata) > 0 {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		metadata = b
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, grievance_id, action, status, metadata, error, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		entry.ID.String(), entry.GrievanceID.String(), string(entry.Action),
		string(entry.Status), metadata, entry.Error, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByGrievance(ctx context.Context, gid id.GrievanceID) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, grievance_id, action, status, metadata, error, created_at
		FROM audit_log WHERE grievance_id = $1 ORDER BY created_at`, gid.String())
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			rawID     string
			rawGID    string
			action    string
			status    string
			metadataB []byte
		)
		if err := rows.Scan(&rawID, &rawGID, &action, &status, &metadataB, &entry.Error, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entryID, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("stored audit id invalid: %w", err)
		}
		entry.ID = entryID
		gid, err := id.ParseGrievanceID(rawGID)
		if err != nil {
			return nil, fmt.Errorf("stored grievance id invalid: %w", err)
		}
		entry.GrievanceID = gid
		entry.Action = Action(action)
		entry.Status = EntryStatus(status)
		if len(metadataB) > 0 {
			if err := json.Unmarshal(metadataB, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
