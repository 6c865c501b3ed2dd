// Package reconcile periodically compares the consent store against the
// ledger and reports divergence. It detects and reports only; no finding is
// ever auto-repaired, because every repair path touches either a subject's
// credential or an operator-signed transaction and needs a human decision.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"helixpass/internal/audit"
	"helixpass/internal/consent"
	"helixpass/internal/domain"
	"helixpass/internal/platform/config"
	id "helixpass/pkg/domain"
	"helixpass/pkg/platform/sentinel"
)

// Finding kinds reported by the sweeper.
const (
	FindingStrandedSerial    = "stranded_serial"    // minted, never left the treasury
	FindingOrphanedSerial    = "orphaned_serial"    // owned by a subject, no matching record
	FindingOwnershipMismatch = "ownership_mismatch" // record and ledger disagree on the owner
	FindingMissingSerial     = "missing_serial"     // granted record, serial absent from the ledger
)

// Gateway is the read-only slice of the ledger gateway the sweeper uses.
type Gateway interface {
	ListCollectionSerials(ctx context.Context, collectionID id.CollectionID) (map[int64]id.SubjectID, error)
}

// Finding is one detected divergence between store and ledger.
type Finding struct {
	Kind      string
	Serial    int64
	Owner     id.SubjectID
	ConsentID id.ConsentID
}

// Sweeper walks the credential collection and the granted records and reports
// every divergence as an audit entry.
type Sweeper struct {
	gateway  Gateway
	store    consent.Store
	audits   *audit.Service
	cfg      config.LedgerConfig
	interval time.Duration
	logger   *slog.Logger
	metrics  *Metrics
}

func NewSweeper(gateway Gateway, store consent.Store, audits *audit.Service, cfg config.Server, logger *slog.Logger, metrics *Metrics) *Sweeper {
	return &Sweeper{
		gateway:  gateway,
		store:    store,
		audits:   audits,
		cfg:      cfg.Ledger,
		interval: cfg.ReconcileInterval,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run sweeps once immediately, then on every interval tick until the context
// is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "reconciliation sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce compares every minted serial against the store and every granted
// record against the ledger, and returns the findings it reported.
func (s *Sweeper) SweepOnce(ctx context.Context) ([]Finding, error) {
	start := time.Now()
	serials, err := s.gateway.ListCollectionSerials(ctx, s.cfg.CollectionID)
	if err != nil {
		s.metrics.sweep(false, time.Since(start).Seconds())
		return nil, err
	}
	granted, err := s.store.ListGranted(ctx)
	if err != nil {
		s.metrics.sweep(false, time.Since(start).Seconds())
		return nil, err
	}

	var findings []Finding
	treasury := id.SubjectID(s.cfg.OperatorAccount)

	for serial, owner := range serials {
		if owner == treasury {
			findings = append(findings, Finding{Kind: FindingStrandedSerial, Serial: serial, Owner: owner})
			continue
		}
		record, err := s.store.FindByCredential(ctx, s.cfg.CollectionID, serial)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				findings = append(findings, Finding{Kind: FindingOrphanedSerial, Serial: serial, Owner: owner})
				continue
			}
			s.metrics.sweep(false, time.Since(start).Seconds())
			return nil, err
		}
		if record.Status == domain.ConsentGranted && record.SubjectID != owner {
			findings = append(findings, Finding{
				Kind:      FindingOwnershipMismatch,
				Serial:    serial,
				Owner:     owner,
				ConsentID: record.ConsentID,
			})
		}
	}

	for _, record := range granted {
		if record.Credential == nil {
			continue
		}
		if _, minted := serials[record.Credential.SerialNumber]; !minted {
			findings = append(findings, Finding{
				Kind:      FindingMissingSerial,
				Serial:    record.Credential.SerialNumber,
				Owner:     record.SubjectID,
				ConsentID: record.ConsentID,
			})
		}
	}

	for _, finding := range findings {
		s.report(ctx, finding)
	}
	s.metrics.sweep(true, time.Since(start).Seconds())
	s.logger.InfoContext(ctx, "reconciliation sweep complete",
		"serials", len(serials),
		"granted_records", len(granted),
		"findings", len(findings),
	)
	return findings, nil
}

func (s *Sweeper) report(ctx context.Context, finding Finding) {
	s.metrics.finding(finding.Kind)
	s.logger.WarnContext(ctx, "reconciliation finding",
		"kind", finding.Kind,
		"serial", finding.Serial,
		"owner", finding.Owner,
		"consent_id", finding.ConsentID,
	)

	entry := &domain.AuditEntry{
		SubjectID: finding.Owner,
		Category:  domain.AuditData,
		Action:    domain.AuditReconcileFinding,
		Decision:  finding.Kind,
		Metadata: map[string]string{
			"collection_id": s.cfg.CollectionID.String(),
			"serial":        strconv.FormatInt(finding.Serial, 10),
		},
	}
	if !finding.ConsentID.IsNil() {
		entry.Metadata["consent_id"] = finding.ConsentID.String()
	}
	if err := s.audits.Append(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "record reconciliation finding", "error", err)
	}
}
