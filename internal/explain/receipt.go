package explain

import (
	"time"

	"github.com/jonathan/decision-letters/internal/signing"
	"github.com/jonathan/decision-letters/internal/types"
)

// receiptContent is the canonical document a receipt hashes
type receiptContent struct {
	Card            types.ExplainableCard `json:"card"`
	Letter          string                `json:"letter"`
	Reasons         []string              `json:"reasons"`
	TemplateVersion string                `json:"template_version"`
}

// ComputeHash returns the SHA-256 of the canonical JSON of card and payload
func ComputeHash(card types.ExplainableCard, payload types.DecisionPayload) (string, error) {
	reasons := payload.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	hash, err := signing.HashCanonical(receiptContent{
		Card:            card,
		Letter:          payload.Letter,
		Reasons:         reasons,
		TemplateVersion: payload.TemplateVersion,
	})
	if err != nil {
		return "", &Error{Message: "failed to hash receipt content", Cause: err}
	}
	return hash, nil
}

// CreateReceipt hashes and signs card and payload
func (g *Generator) CreateReceipt(card types.ExplainableCard, payload types.DecisionPayload) (types.ExplainableReceipt, error) {
	hash, err := ComputeHash(card, payload)
	if err != nil {
		return types.ExplainableReceipt{}, err
	}
	return types.ExplainableReceipt{
		DecisionID:      card.DecisionID,
		Hash:            hash,
		Signature:       g.signer.Sign(hash),
		Algorithm:       signing.Algorithm,
		CardVersion:     card.Version,
		TemplateVersion: payload.TemplateVersion,
		CreatedAt:       g.now().UTC().Truncate(time.Millisecond),
	}, nil
}

// VerifyReceipt reports whether the receipt signature is authentic for its
// stored hash. It does not recompute the hash from current data; use
// VerifyContents for that.
func (g *Generator) VerifyReceipt(receipt types.ExplainableReceipt) bool {
	if receipt.Algorithm != "" && receipt.Algorithm != signing.Algorithm {
		return false
	}
	return g.signer.Verify(receipt.Hash, receipt.Signature)
}

// VerifyContents recomputes the hash from card and payload, compares it with
// the receipt hash in constant time, then checks the signature.
func (g *Generator) VerifyContents(receipt types.ExplainableReceipt, card types.ExplainableCard, payload types.DecisionPayload) (bool, error) {
	hash, err := ComputeHash(card, payload)
	if err != nil {
		return false, err
	}
	if !signing.EqualHashes(hash, receipt.Hash) {
		return false, nil
	}
	return g.VerifyReceipt(receipt), nil
}
