package webhook

import (
	"github.com/jonathan/contract-signer/internal/esign"
	"github.com/jonathan/contract-signer/internal/types"
)

// How a stage was resolved, recorded in history metadata.
const (
	stageFromReference  = "reference"
	stageFromDocumentID = "document_id"
	stageFromStatus     = "status"
	stageFromLayout     = "layout"
)

// resolveStage decides which signing stage an event belongs to. References written by this
// service always carry the stage; the remaining steps exist for older references without one.
// It returns "" when the stage cannot be determined.
func resolveStage(c *types.Contract, ref esign.Reference, documentID string) (types.Stage, string) {
	if ref.Stage != "" {
		return ref.Stage, stageFromReference
	}

	if documentID != "" {
		for _, s := range []types.Stage{types.StageSeller, types.StageBuyer, types.StageSingle} {
			if c.DocumentID(s) == documentID {
				return s, stageFromDocumentID
			}
		}
	}

	layout, err := types.ParseLayout(c.CustomString(types.FieldSignatureLayout))
	if err != nil || !layout.TwoStage() {
		return types.StageSingle, stageFromLayout
	}
	switch c.Status {
	case types.StatusSent, types.StatusViewed:
		if c.DocumentID(types.StageBuyer) == "" {
			return types.StageSeller, stageFromStatus
		}
	case types.StatusBuyerPending:
		return types.StageBuyer, stageFromStatus
	}
	return "", ""
}
