package signing

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonathan/contract-signer/internal/document"
	"github.com/jonathan/contract-signer/internal/esign"
	"github.com/jonathan/contract-signer/internal/types"
)

// ContractStore reads and writes contracts. GetContract returns nil, nil when the contract
// does not exist. TransitionStatus reports whether the guarded write applied.
type ContractStore interface {
	GetContract(ctx context.Context, id uuid.UUID) (*types.Contract, error)
	TransitionStatus(ctx context.Context, t types.Transition) (bool, error)
	MergeCustomFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	AppendHistory(ctx context.Context, e *types.HistoryEntry) error
}

// DocumentRenderer produces the PDF and field positions for a contract.
type DocumentRenderer interface {
	Render(ctx context.Context, c *types.Contract) (*document.Document, error)
}

// Provider is the e-signature provider.
type Provider interface {
	CreateDocumentWithSignatures(ctx context.Context, pdf []byte, req esign.CreateRequest) (*esign.CreatedDocument, error)
	DownloadSignedDocument(ctx context.Context, documentID string) ([]byte, error)
}
