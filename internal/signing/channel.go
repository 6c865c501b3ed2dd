// Package signing defines the channel to the subject's own ledger identity.
// Association with a token collection must be signed by the subject, not the
// operator, so it is requested through this channel and awaited
// asynchronously.
package signing

import (
	"context"
	"errors"

	id "helixpass/pkg/domain"
)

// ErrRejected is returned when the subject declines to sign the association.
var ErrRejected = errors.New("association rejected by subject")

// Channel requests signatures from the subject's wallet or signing agent.
type Channel interface {
	// RequestAssociation asks the subject to sign an association between their
	// account and the given collection. It blocks until the subject signs
	// (returning the transaction ID), rejects (ErrRejected), or ctx expires.
	RequestAssociation(ctx context.Context, subjectID id.SubjectID, collectionID id.CollectionID) (string, error)
}
