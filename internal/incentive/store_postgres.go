package incentive

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"helixpass/internal/domain"
	id "helixpass/pkg/domain"
	"helixpass/pkg/platform/sentinel"
)

// PostgresStore persists award attempts with a uniqueness constraint on
// (subject_id, action_type, linked_consent_id) so a retried request can never
// record two awarded rows for the same tuple.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the award table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS incentive_awards (
	subject_id        text NOT NULL,
	action_type       text NOT NULL,
	linked_consent_id uuid NOT NULL,
	amount            bigint NOT NULL,
	status            text NOT NULL,
	tx_id             text NOT NULL DEFAULT '',
	created_at        timestamptz NOT NULL,
	PRIMARY KEY (subject_id, action_type, linked_consent_id)
);`)
	if err != nil {
		return fmt.Errorf("ensure incentive schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, award *domain.IncentiveAward) error {
	// The status guard keeps an awarded row immutable.
	tag, err := s.pool.Exec(ctx, `
INSERT INTO incentive_awards (subject_id, action_type, linked_consent_id, amount, status, tx_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (subject_id, action_type, linked_consent_id)
DO UPDATE SET amount = EXCLUDED.amount, status = EXCLUDED.status, tx_id = EXCLUDED.tx_id
WHERE incentive_awards.status <> $8`,
		award.SubjectID.String(), award.ActionType.String(), award.LinkedConsentID.UUID,
		award.Amount, string(award.Status), award.TxID, award.CreatedAt,
		string(domain.AwardGranted))
	if err != nil {
		return fmt.Errorf("save incentive award: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrDuplicate
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, subjectID id.SubjectID, actionType id.ActionType, linkedConsentID id.ConsentID) (*domain.IncentiveAward, error) {
	var (
		award   domain.IncentiveAward
		subject string
		action  string
		status  string
	)
	err := s.pool.QueryRow(ctx, `
SELECT subject_id, action_type, linked_consent_id, amount, status, tx_id, created_at
FROM incentive_awards
WHERE subject_id = $1 AND action_type = $2 AND linked_consent_id = $3`,
		subjectID.String(), actionType.String(), linkedConsentID.UUID).
		Scan(&subject, &action, &award.LinkedConsentID.UUID, &award.Amount, &status, &award.TxID, &award.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find incentive award: %w", err)
	}
	award.SubjectID = id.SubjectID(subject)
	award.ActionType = id.ActionType(action)
	award.Status = domain.AwardStatus(status)
	return &award, nil
}
