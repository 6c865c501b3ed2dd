package ledger

import (
	"context"

	id "helixpass/pkg/domain"
)

// Client is the raw ledger network client. It is an external collaborator:
// implementations sign and submit transactions and wait for receipts, but
// carry no policy. All errors must be classified via NewError so the gateway
// can apply its retry policy.
//
// Mutating calls are signed by the treasury/operator identity; the gateway
// serializes them. Read calls are safe to issue concurrently.
type Client interface {
	// SubmitMint mints the next serial of the collection to the treasury and
	// returns the serial number.
	SubmitMint(ctx context.Context, collection id.CollectionID, metadata []byte) (int64, error)

	// SubmitTransfer moves one credential serial from the treasury to the
	// subject and returns the transaction ID.
	SubmitTransfer(ctx context.Context, collection id.CollectionID, serial int64, to id.SubjectID) (string, error)

	// SubmitMessage appends a message to a consensus topic and returns the
	// transaction ID.
	SubmitMessage(ctx context.Context, topicID string, message []byte) (string, error)

	// SubmitFungibleTransfer moves incentive tokens from the treasury to the
	// subject and returns the transaction ID.
	SubmitFungibleTransfer(ctx context.Context, token id.TokenID, amount int64, to id.SubjectID) (string, error)

	// NFTOwner returns the current owner of a credential serial.
	NFTOwner(ctx context.Context, collection id.CollectionID, serial int64) (id.SubjectID, error)

	// TokenAssociated reports whether the subject has associated the token.
	TokenAssociated(ctx context.Context, subject id.SubjectID, token id.TokenID) (bool, error)

	// CollectionSerials lists every serial ever minted in the collection with
	// its current owner. Used by the reconciliation sweeper.
	CollectionSerials(ctx context.Context, collection id.CollectionID) (map[int64]id.SubjectID, error)
}
