package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"nivaran/internal/grievance"
	id "nivaran/pkg/domain"
	"nivaran/pkg/platform/sentinel"
)

// PostgresRecordStore persists records with optimistic concurrency: every
// UPDATE carries a WHERE version = $n guard, so a stale writer affects zero
// rows and gets ErrConflict instead of clobbering newer state.
type PostgresRecordStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresRecordStore {
	return &PostgresRecordStore{pool: pool}
}

// Schema documents the expected table; migrations live with the deployment.
//
//	CREATE TABLE grievances (
//	    id              UUID PRIMARY KEY,
//	    sender_hash     TEXT NOT NULL,
//	    reply_to        TEXT NOT NULL,
//	    district        TEXT NOT NULL,
//	    audio_ref       TEXT NOT NULL DEFAULT '',
//	    language_hint   TEXT NOT NULL DEFAULT '',
//	    transcript      TEXT NOT NULL DEFAULT '',
//	    language        TEXT NOT NULL DEFAULT '',
//	    translated_text TEXT NOT NULL DEFAULT '',
//	    clause          JSONB,
//	    rendered_ref    TEXT NOT NULL DEFAULT '',
//	    redacted_ref    TEXT NOT NULL DEFAULT '',
//	    status          TEXT NOT NULL,
//	    failure_reason  TEXT NOT NULL DEFAULT '',
//	    stage_attempts  JSONB NOT NULL DEFAULT '{}',
//	    created_at      TIMESTAMPTZ NOT NULL,
//	    updated_at      TIMESTAMPTZ NOT NULL,
//	    deadline_at     TIMESTAMPTZ NOT NULL,
//	    version         BIGINT NOT NULL
//	);

func (s *PostgresRecordStore) Create(ctx context.Context, rec *grievance.Record) error {
	rec.Version = 1
	clause, attempts, err := marshalJSONFields(rec)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO grievances (
			id, sender_hash, reply_to, district, audio_ref, language_hint,
			transcript, language, translated_text, clause, rendered_ref,
			redacted_ref, status, failure_reason, stage_attempts,
			created_at, updated_at, deadline_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		rec.ID.String(), rec.SenderHash, rec.ReplyTo, rec.District.String(),
		rec.AudioRef, rec.LanguageHint, rec.Transcript, rec.Language,
		rec.TranslatedText, clause, rec.RenderedRef, rec.RedactedRef,
		string(rec.Status), rec.FailureReason, attempts,
		rec.CreatedAt, rec.UpdatedAt, rec.DeadlineAt, rec.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert grievance: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) Get(ctx context.Context, gid id.GrievanceID) (*grievance.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, sender_hash, reply_to, district, audio_ref, language_hint,
		       transcript, language, translated_text, clause, rendered_ref,
		       redacted_ref, status, failure_reason, stage_attempts,
		       created_at, updated_at, deadline_at, version
		FROM grievances WHERE id = $1`, gid.String())
	return scanRecord(row)
}

func (s *PostgresRecordStore) Update(ctx context.Context, rec *grievance.Record) error {
	clause, attempts, err := marshalJSONFields(rec)
	if err != nil {
		return err
	}
	now := time.Now()

	tag, err := s.pool.Exec(ctx, `
		UPDATE grievances SET
			audio_ref = $1, transcript = $2, language = $3,
			translated_text = $4, clause = $5, rendered_ref = $6,
			redacted_ref = $7, status = $8, failure_reason = $9,
			stage_attempts = $10, updated_at = $11, version = version + 1
		WHERE id = $12 AND version = $13`,
		rec.AudioRef, rec.Transcript, rec.Language, rec.TranslatedText,
		clause, rec.RenderedRef, rec.RedactedRef, string(rec.Status),
		rec.FailureReason, attempts, now, rec.ID.String(), rec.Version,
	)
	if err != nil {
		return fmt.Errorf("update grievance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a lost race.
		if _, getErr := s.Get(ctx, rec.ID); errors.Is(getErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	rec.Version++
	rec.UpdatedAt = now
	return nil
}

func (s *PostgresRecordStore) ListUnfinished(ctx context.Context, updatedBefore time.Time, limit int) ([]id.GrievanceID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM grievances
		WHERE status NOT IN ('DELIVERED','NO_MATCH','FAILED','TIMEOUT')
		  AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list unfinished grievances: %w", err)
	}
	defer rows.Close()

	var ids []id.GrievanceID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan grievance id: %w", err)
		}
		gid, err := id.ParseGrievanceID(raw)
		if err != nil {
			return nil, fmt.Errorf("stored grievance id invalid: %w", err)
		}
		ids = append(ids, gid)
	}
	return ids, rows.Err()
}

func (s *PostgresRecordStore) PurgeEphemeral(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE grievances SET
			audio_ref = '', transcript = '',
			updated_at = now(), version = version + 1
		WHERE created_at <= $1 AND (audio_ref <> '' OR transcript <> '')`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge ephemeral fields: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func marshalJSONFields(rec *grievance.Record) ([]byte, []byte, error) {
	var clause []byte
	if rec.Clause != nil {
		b, err := json.Marshal(rec.Clause)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal clause: %w", err)
		}
		clause = b
	}
	attempts := rec.StageAttempts
	if attempts == nil {
		attempts = map[string]int{}
	}
	ab, err := json.Marshal(attempts)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal stage attempts: %w", err)
	}
	return clause, ab, nil
}

func scanRecord(row pgx.Row) (*grievance.Record, error) {
	var (
		rec       grievance.Record
		rawID     string
		district  string
		status    string
		clauseB   []byte
		attemptsB []byte
	)
	err := row.Scan(
		&rawID, &rec.SenderHash, &rec.ReplyTo, &district, &rec.AudioRef,
		&rec.LanguageHint, &rec.Transcript, &rec.Language,
		&rec.TranslatedText, &clauseB, &rec.RenderedRef, &rec.RedactedRef,
		&status, &rec.FailureReason, &attemptsB,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.DeadlineAt, &rec.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan grievance: %w", err)
	}

	gid, err := id.ParseGrievanceID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored grievance id invalid: %w", err)
	}
	rec.ID = gid
	rec.District = id.DistrictCode(district)
	rec.Status = grievance.Status(status)
	if len(clauseB) > 0 {
		rec.Clause = &grievance.ClauseMatch{}
		if err := json.Unmarshal(clauseB, rec.Clause); err != nil {
			return nil, fmt.Errorf("unmarshal clause: %w", err)
		}
	}
	if len(attemptsB) > 0 {
		if err := json.Unmarshal(attemptsB, &rec.StageAttempts); err != nil {
			return nil, fmt.Errorf("unmarshal stage attempts: %w", err)
		}
	}
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
