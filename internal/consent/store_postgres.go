package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"helixpass/internal/domain"
	id "helixpass/pkg/domain"
	"helixpass/pkg/platform/sentinel"
)

// PostgresStore persists consent records in PostgreSQL with a secondary index
// on (subject_id, consent_type, status).
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the consent tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS consent_records (
	consent_id        uuid PRIMARY KEY,
	subject_id        text NOT NULL,
	consent_type      text NOT NULL,
	data_types        text[] NOT NULL DEFAULT '{}',
	purposes          text[] NOT NULL DEFAULT '{}',
	valid_from        timestamptz NOT NULL,
	valid_until       timestamptz,
	status            text NOT NULL,
	collection_id     text,
	serial_number     bigint,
	issuance_tx_id    text,
	content_hash      text NOT NULL,
	revocation_reason text,
	revoked_by        text,
	revoked_at        timestamptz,
	revocation_tx_id  text,
	created_at        timestamptz NOT NULL,
	updated_at        timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_consent_subject_type_status
	ON consent_records (subject_id, consent_type, status);`)
	if err != nil {
		return fmt.Errorf("ensure consent schema: %w", err)
	}
	return nil
}

const consentColumns = `consent_id, subject_id, consent_type, data_types, purposes,
	valid_from, valid_until, status, collection_id, serial_number, issuance_tx_id,
	content_hash, revocation_reason, revoked_by, revoked_at, revocation_tx_id,
	created_at, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, record *domain.ConsentRecord) error {
	var (
		collectionID *string
		serial       *int64
		issuanceTx   *string
	)
	if record.Credential != nil {
		c := record.Credential.CollectionID.String()
		collectionID = &c
		serial = &record.Credential.SerialNumber
		issuanceTx = &record.Credential.IssuanceTxID
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO consent_records (`+consentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULL, NULL, NULL, NULL, $13, $14)`,
		record.ConsentID.UUID, record.SubjectID.String(), record.ConsentType.String(),
		record.DataTypes, record.Purposes,
		record.ValidFrom, record.ValidUntil, string(record.Status),
		collectionID, serial, issuanceTx,
		record.ContentHash, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert consent record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, consentID id.ConsentID) (*domain.ConsentRecord, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+consentColumns+` FROM consent_records WHERE consent_id = $1`, consentID.UUID)
	return scanConsent(row)
}

func (s *PostgresStore) FindActiveByTypeAndSubject(ctx context.Context, subjectID id.SubjectID, consentType id.ConsentType) (*domain.ConsentRecord, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+consentColumns+` FROM consent_records
WHERE subject_id = $1 AND consent_type = $2 AND status = $3
ORDER BY created_at DESC LIMIT 1`,
		subjectID.String(), consentType.String(), string(domain.ConsentGranted))
	return scanConsent(row)
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*domain.ConsentRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+consentColumns+` FROM consent_records
WHERE subject_id = $1 ORDER BY created_at DESC`, subjectID.String())
	if err != nil {
		return nil, fmt.Errorf("list consent records: %w", err)
	}
	defer rows.Close()

	var out []*domain.ConsentRecord
	for rows.Next() {
		record, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindByCredential(ctx context.Context, collectionID id.CollectionID, serial int64) (*domain.ConsentRecord, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+consentColumns+` FROM consent_records
WHERE collection_id = $1 AND serial_number = $2
ORDER BY created_at DESC LIMIT 1`,
		collectionID.String(), serial)
	return scanConsent(row)
}

func (s *PostgresStore) ListGranted(ctx context.Context) ([]*domain.ConsentRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+consentColumns+` FROM consent_records
WHERE status = $1 ORDER BY created_at DESC`, string(domain.ConsentGranted))
	if err != nil {
		return nil, fmt.Errorf("list granted consent records: %w", err)
	}
	defer rows.Close()

	var out []*domain.ConsentRecord
	for rows.Next() {
		record, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateStatusToRevoked(ctx context.Context, consentID id.ConsentID, revocation domain.Revocation, revokedAt time.Time) error {
	// The status guard in the WHERE clause makes concurrent revokes of the
	// same record lose cleanly instead of double-writing.
	tag, err := s.pool.Exec(ctx, `
UPDATE consent_records
SET status = $1, revocation_reason = $2, revoked_by = $3, revoked_at = $4, updated_at = $4
WHERE consent_id = $5 AND status <> $1`,
		string(domain.ConsentRevoked), revocation.Reason, revocation.RevokedBy.String(),
		revokedAt, consentID.UUID)
	if err != nil {
		return fmt.Errorf("revoke consent record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, findErr := s.FindByID(ctx, consentID)
		if findErr != nil {
			return sentinel.ErrNotFound
		}
		if existing.Status == domain.ConsentRevoked {
			return sentinel.ErrAlreadyRevoked
		}
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AttachRevocationTx(ctx context.Context, consentID id.ConsentID, txID string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE consent_records SET revocation_tx_id = $1
WHERE consent_id = $2 AND status = $3`,
		txID, consentID.UUID, string(domain.ConsentRevoked))
	if err != nil {
		return fmt.Errorf("attach revocation tx: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsent(row rowScanner) (*domain.ConsentRecord, error) {
	var (
		record       domain.ConsentRecord
		status       string
		consentType  string
		subjectID    string
		collectionID *string
		serial       *int64
		issuanceTx   *string
		revReason    *string
		revokedBy    *string
		revokedAt    *time.Time
		revTx        *string
	)
	err := row.Scan(&record.ConsentID.UUID, &subjectID, &consentType,
		&record.DataTypes, &record.Purposes,
		&record.ValidFrom, &record.ValidUntil, &status,
		&collectionID, &serial, &issuanceTx,
		&record.ContentHash, &revReason, &revokedBy, &revokedAt, &revTx,
		&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan consent record: %w", err)
	}
	record.SubjectID = id.SubjectID(subjectID)
	record.ConsentType = id.ConsentType(consentType)
	record.Status = domain.ConsentStatus(status)
	if collectionID != nil && serial != nil {
		record.Credential = &domain.CredentialRef{
			CollectionID: id.CollectionID(*collectionID),
			SerialNumber: *serial,
		}
		if issuanceTx != nil {
			record.Credential.IssuanceTxID = *issuanceTx
		}
	}
	if revokedAt != nil {
		record.Revocation = &domain.Revocation{RevokedAt: *revokedAt}
		if revReason != nil {
			record.Revocation.Reason = *revReason
		}
		if revokedBy != nil {
			record.Revocation.RevokedBy = id.SubjectID(*revokedBy)
		}
		if revTx != nil {
			record.Revocation.RevocationTxID = *revTx
		}
	}
	return &record, nil
}
