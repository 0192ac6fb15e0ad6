package model

import (
	"time"
)

type ProposalSignature struct {
	Id          uint64    `gorm:"primaryKey" json:"id"`
	ProposalId  string    `json:"proposalId"`
	SubmittedBy string    `json:"submittedBy"`
	Signature   string    `json:"signature"`
	TimeAdded   time.Time `json:"timeAdded"`
}

func (ProposalSignature) TableName() string {
	return "proposal_signature"
}
