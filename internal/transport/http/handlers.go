// Package http is the HTTP transport for the consent service. Handlers parse
// and validate at the boundary, delegate to services, and translate coded
// errors to statuses; no business rule lives here.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"helixpass/internal/audit"
	"helixpass/internal/consent"
	"helixpass/internal/domain"
	"helixpass/internal/lifecycle"
	"helixpass/internal/validity"
	id "helixpass/pkg/domain"
	dErrors "helixpass/pkg/domain-errors"
	"helixpass/pkg/requestcontext"
)

// Handler serves the consent, validity, and activity endpoints.
type Handler struct {
	lifecycle *lifecycle.Service
	resolver  *validity.Resolver
	audits    *audit.Service
	store     consent.Store
	logger    *slog.Logger
}

func NewHandler(lc *lifecycle.Service, resolver *validity.Resolver, audits *audit.Service, store consent.Store, logger *slog.Logger) *Handler {
	return &Handler{lifecycle: lc, resolver: resolver, audits: audits, store: store, logger: logger}
}

type grantRequest struct {
	ConsentType string     `json:"consentType"`
	DataTypes   []string   `json:"dataTypes"`
	Purposes    []string   `json:"purposes"`
	ValidFrom   time.Time  `json:"validFrom"`
	ValidUntil  *time.Time `json:"validUntil,omitempty"`
}

type credentialResponse struct {
	CollectionID string `json:"collectionId"`
	SerialNumber int64  `json:"serialNumber"`
	IssuanceTxID string `json:"issuanceTxId"`
}

type revocationResponse struct {
	Reason         string    `json:"reason"`
	RevokedBy      string    `json:"revokedBy"`
	RevokedAt      time.Time `json:"revokedAt"`
	RevocationTxID string    `json:"revocationTxId,omitempty"`
}

type consentResponse struct {
	ConsentID   string              `json:"consentId"`
	SubjectID   string              `json:"subjectId"`
	ConsentType string              `json:"consentType"`
	DataTypes   []string            `json:"dataTypes"`
	Purposes    []string            `json:"purposes"`
	ValidFrom   time.Time           `json:"validFrom"`
	ValidUntil  *time.Time          `json:"validUntil,omitempty"`
	Status      string              `json:"status"`
	Credential  *credentialResponse `json:"credential,omitempty"`
	ContentHash string              `json:"contentHash"`
	Revocation  *revocationResponse `json:"revocation,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

type incentiveResponse struct {
	ActionType string `json:"actionType"`
	Amount     int64  `json:"amount"`
	Status     string `json:"status"`
	TxID       string `json:"txId,omitempty"`
}

type grantResponse struct {
	Consent   consentResponse    `json:"consent"`
	Incentive *incentiveResponse `json:"incentive,omitempty"`
}

type validityChecks struct {
	DBActive     bool `json:"dbActive"`
	LedgerValid  bool `json:"ledgerValid"`
	WithinWindow bool `json:"withinWindow"`
}

type validityResponse struct {
	ConsentID string         `json:"consentId"`
	Valid     bool           `json:"valid"`
	Checks    validityChecks `json:"checks"`
}

type listedConsent struct {
	consentResponse
	Valid bool `json:"valid"`
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

type revokeResponse struct {
	ConsentID      string    `json:"consentId"`
	Status         string    `json:"status"`
	RevokedAt      time.Time `json:"revokedAt"`
	RevocationTxID string    `json:"revocationTxId,omitempty"`
}

type activityEntry struct {
	ID         string            `json:"id"`
	Category   string            `json:"category"`
	Action     string            `json:"action"`
	Decision   string            `json:"decision"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	LinkedTxID string            `json:"linkedTxId,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// GrantConsent handles POST /consents.
func (h *Handler) GrantConsent(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.lifecycle.Grant(r.Context(), lifecycle.GrantRequest{
		SubjectID:   requestcontext.SubjectID(r.Context()),
		ConsentType: id.ConsentType(req.ConsentType),
		DataTypes:   req.DataTypes,
		Purposes:    req.Purposes,
		ValidFrom:   req.ValidFrom,
		ValidUntil:  req.ValidUntil,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := grantResponse{Consent: toConsentResponse(result.Consent)}
	if result.Incentive != nil {
		resp.Incentive = &incentiveResponse{
			ActionType: result.Incentive.ActionType.String(),
			Amount:     result.Incentive.Amount,
			Status:     string(result.Incentive.Status),
			TxID:       result.Incentive.TxID,
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// RevokeConsent handles POST /consents/{consentID}/revoke.
func (h *Handler) RevokeConsent(w http.ResponseWriter, r *http.Request) {
	consentID, err := id.ParseConsentID(chi.URLParam(r, "consentID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req revokeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.lifecycle.Revoke(r.Context(), lifecycle.RevokeRequest{
		ConsentID: consentID,
		Reason:    req.Reason,
		RevokedBy: requestcontext.SubjectID(r.Context()),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, revokeResponse{
		ConsentID:      result.ConsentID.String(),
		Status:         string(result.Status),
		RevokedAt:      result.RevokedAt,
		RevocationTxID: result.RevocationTxID,
	})
}

// CheckValidity handles GET /consents/{consentID}/validity.
func (h *Handler) CheckValidity(w http.ResponseWriter, r *http.Request) {
	consentID, err := id.ParseConsentID(chi.URLParam(r, "consentID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.resolver.Resolve(r.Context(), consentID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toValidityResponse(res))
}

// ListConsents handles GET /consents: the authenticated subject's full
// lineage, each entry carrying its effective validity.
func (h *Handler) ListConsents(w http.ResponseWriter, r *http.Request) {
	subjectID := requestcontext.SubjectID(r.Context())
	records, err := h.store.ListBySubject(r.Context(), subjectID)
	if err != nil {
		writeError(w, r, h.logger, dErrors.Wrap(err, dErrors.CodePersistence, "list consent records"))
		return
	}
	resolutions, err := h.resolver.ResolveSubject(r.Context(), subjectID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	validByID := make(map[id.ConsentID]bool, len(resolutions))
	for _, res := range resolutions {
		validByID[res.ConsentID] = res.EffectiveValid
	}

	out := make([]listedConsent, len(records))
	for i, record := range records {
		out[i] = listedConsent{
			consentResponse: toConsentResponse(record),
			Valid:           validByID[record.ConsentID],
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"consents": out})
}

// ListActivity handles GET /activity.
func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audits.ListBySubject(r.Context(), requestcontext.SubjectID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]activityEntry, len(entries))
	for i, entry := range entries {
		out[i] = activityEntry{
			ID:         entry.ID.String(),
			Category:   string(entry.Category),
			Action:     entry.Action,
			Decision:   entry.Decision,
			Metadata:   entry.Metadata,
			LinkedTxID: entry.LinkedTxID,
			Timestamp:  entry.Timestamp,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": out})
}

func toConsentResponse(record *domain.ConsentRecord) consentResponse {
	resp := consentResponse{
		ConsentID:   record.ConsentID.String(),
		SubjectID:   record.SubjectID.String(),
		ConsentType: record.ConsentType.String(),
		DataTypes:   record.DataTypes,
		Purposes:    record.Purposes,
		ValidFrom:   record.ValidFrom,
		ValidUntil:  record.ValidUntil,
		Status:      string(record.Status),
		ContentHash: record.ContentHash,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
	if record.Credential != nil {
		resp.Credential = &credentialResponse{
			CollectionID: record.Credential.CollectionID.String(),
			SerialNumber: record.Credential.SerialNumber,
			IssuanceTxID: record.Credential.IssuanceTxID,
		}
	}
	if record.Revocation != nil {
		resp.Revocation = &revocationResponse{
			Reason:         record.Revocation.Reason,
			RevokedBy:      record.Revocation.RevokedBy.String(),
			RevokedAt:      record.Revocation.RevokedAt,
			RevocationTxID: record.Revocation.RevocationTxID,
		}
	}
	return resp
}

func toValidityResponse(res *validity.Resolution) validityResponse {
	return validityResponse{
		ConsentID: res.ConsentID.String(),
		Valid:     res.EffectiveValid,
		Checks: validityChecks{
			DBActive:     res.DBActive,
			LedgerValid:  res.LedgerValid,
			WithinWindow: res.WithinWindow,
		},
	}
}
