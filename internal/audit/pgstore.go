package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/finlegal/tenkdraft/models"
)

// PGStore persists audit records in Postgres.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(dsn string) (*PGStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PGStore{db: db}, nil
}

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) Record(ctx context.Context, rec models.AuditRecord) error {
	content, err := json.Marshal(rec.Content)
	if err != nil {
		return fmt.Errorf("marshalling audit content: %w", err)
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling audit metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_records (session_id, ts, event_type, ticker, fiscal_year, content_hash, content, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.SessionID, rec.Timestamp, rec.EventType, rec.Ticker, rec.FiscalYear, rec.ContentHash, content, metadata,
	)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}

func (s *PGStore) SessionRecords(ctx context.Context, sessionID string) ([]models.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, ts, event_type, ticker, fiscal_year, content_hash, content, metadata
		FROM audit_records WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	var records []models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var content, metadata []byte
		if err := rows.Scan(&rec.SessionID, &rec.Timestamp, &rec.EventType, &rec.Ticker,
			&rec.FiscalYear, &rec.ContentHash, &content, &metadata); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		if len(content) > 0 {
			if err := json.Unmarshal(content, &rec.Content); err != nil {
				return nil, fmt.Errorf("parsing audit content: %w", err)
			}
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("parsing audit metadata: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

var _ Recorder = (*PGStore)(nil)

// Migrate applies audit schema migrations from the given directory.
// dir example: file://migrations
func Migrate(dir, dsn, direction string, steps int) error {
	if dir == "" {
		dir = "file://migrations"
	}
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return fmt.Errorf("no DSN given and DATABASE_URL unset")
	}

	m, err := migrate.New(dir, dsn)
	if err != nil {
		return err
	}
	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		return fmt.Errorf("unknown direction: %s", direction)
	}
	// An up-to-date schema is not a failure.
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
