package model

import (
	"time"
)

// Proposal is a multisig transaction collecting owner signatures. Raw is the
// unsigned body; the transaction is rebuilt from it on every request.
type Proposal struct {
	Id              string         `gorm:"primaryKey" json:"id"`
	Chain           string         `json:"chain"`
	Account         string         `json:"account"`
	MultisigOptions []byte         `json:"-"`
	Raw             []byte         `json:"-"`
	Signatures      []string       `gorm:"serializer:json" json:"signatures"`
	Status          ProposalStatus `json:"status"`
	TransactionId   string         `json:"transactionId,omitempty"`
	BlockNumber     uint64         `json:"blockNumber,omitempty"`
	FailureReason   string         `json:"failureReason,omitempty"`
	CreatedBy       string         `json:"createdBy"`
	TimeCreated     time.Time      `json:"timeCreated"`
	TimeUpdated     time.Time      `json:"timeUpdated"`

	// Version is bumped on every update; writers holding an older one lose.
	Version int64 `json:"-"`
}

func (Proposal) TableName() string {
	return "proposal"
}
