package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the ledger gateway
// return these (optionally wrapped) so services can translate them into coded
// domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store or on the ledger
// - ErrAlreadyRevoked: consent record is already in its terminal state
// - ErrDuplicate: uniqueness constraint hit (e.g. repeated incentive award)
// - ErrNotAssociated: account has not associated the token/collection
// - ErrUnavailable: service or resource temporarily unavailable
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyRevoked = errors.New("already revoked")
	ErrDuplicate      = errors.New("duplicate")
	ErrNotAssociated  = errors.New("not associated")
	ErrUnavailable    = errors.New("unavailable")
)
