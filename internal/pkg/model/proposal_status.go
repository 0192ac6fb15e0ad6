package model

type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "PENDING"
	ProposalSigned    ProposalStatus = "SIGNED"
	ProposalSending   ProposalStatus = "SENDING"
	ProposalSent      ProposalStatus = "SENT"
	ProposalConfirmed ProposalStatus = "CONFIRMED"
	ProposalFailed    ProposalStatus = "FAILED"
)
