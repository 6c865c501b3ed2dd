package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"helixpass/internal/domain"
	id "helixpass/pkg/domain"
)

// PostgresStore persists audit entries in PostgreSQL. Append-only by
// contract: no update or delete statements exist in this package.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the audit table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS audit_entries (
	id           uuid PRIMARY KEY,
	subject_id   text NOT NULL,
	category     text NOT NULL,
	action       text NOT NULL,
	decision     text NOT NULL DEFAULT '',
	metadata     jsonb NOT NULL DEFAULT '{}',
	linked_tx_id text NOT NULL DEFAULT '',
	ts           timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_subject ON audit_entries (subject_id, ts DESC);`)
	if err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, entry *domain.AuditEntry) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO audit_entries (id, subject_id, category, action, decision, metadata, linked_tx_id, ts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.SubjectID.String(), string(entry.Category), entry.Action,
		entry.Decision, entry.Metadata, entry.LinkedTxID, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, subject_id, category, action, decision, metadata, linked_tx_id, ts
FROM audit_entries WHERE subject_id = $1 ORDER BY ts DESC`, subjectID.String())
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuditEntry
	for rows.Next() {
		var (
			entry    domain.AuditEntry
			subject  string
			category string
		)
		if err := rows.Scan(&entry.ID, &subject, &category, &entry.Action,
			&entry.Decision, &entry.Metadata, &entry.LinkedTxID, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.SubjectID = id.SubjectID(subject)
		entry.Category = domain.AuditCategory(category)
		out = append(out, &entry)
	}
	return out, rows.Err()
}
