package cosign

import (
	"encoding/hex"
	"encoding/json"

	"github.com/kollektive-hackathon/multichain/internal/pkg/model"
	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

type CreateProposalRequest struct {
	Chain    string                   `json:"chain" binding:"required"`
	Multisig json.RawMessage          `json:"multisig" binding:"required"`
	Actions  []map[string]any         `json:"actions" binding:"required,min=1"`
	Options  chain.TransactionOptions `json:"options"`
}

type SignaturesRequest struct {
	Signatures []string `json:"signatures" binding:"required,min=1,dive,required"`
}

type ProposalResponse struct {
	model.Proposal
	Raw               string                `json:"raw"`
	SignBuffer        string                `json:"signBuffer"`
	Owners            []string              `json:"owners"`
	Threshold         int                   `json:"threshold"`
	MissingSignatures []chain.Authorization `json:"missingSignatures"`
}

func newProposalResponse(p *model.Proposal, tx chain.Transaction) *ProposalResponse {
	resp := &ProposalResponse{
		Proposal:          *p,
		Raw:               hex.EncodeToString(p.Raw),
		MissingSignatures: tx.MissingSignatures(),
	}
	if buf, err := tx.SignBuffer(); err == nil {
		resp.SignBuffer = hex.EncodeToString(buf)
	}
	if ms := multisigOf(tx); ms != nil {
		resp.Owners = ms.Owners()
		resp.Threshold = ms.Threshold()
	}
	return resp
}
