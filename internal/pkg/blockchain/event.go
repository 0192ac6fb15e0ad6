package blockchain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	ProposalCreated      EventType = "PROPOSAL_CREATED"
	ProposalSigned       EventType = "PROPOSAL_SIGNED"
	TransactionSent      EventType = "TRANSACTION_SENT"
	TransactionConfirmed EventType = "TRANSACTION_CONFIRMED"
	TransactionFailed    EventType = "TRANSACTION_FAILED"
	AccountCreated       EventType = "ACCOUNT_CREATED"
)

const eventTopic = "multichain.transactions.events"

// Event is published for every step of a transaction's lifecycle.
type Event struct {
	Id            string    `json:"id"`
	Type          EventType `json:"type"`
	Chain         string    `json:"chain"`
	ProposalId    string    `json:"proposalId,omitempty"`
	Account       string    `json:"account,omitempty"`
	TransactionId string    `json:"transactionId,omitempty"`
	Payload       any       `json:"payload,omitempty"`
	Time          time.Time `json:"time"`
}

func (Event) GetEventTopicName() string {
	return eventTopic
}

func NewEvent(eventType EventType, chain string) Event {
	return Event{
		Id:    uuid.New().String(),
		Type:  eventType,
		Chain: chain,
		Time:  time.Now().UTC(),
	}
}

func (e Event) WithProposal(id, account string) Event {
	e.ProposalId = id
	e.Account = account
	return e
}

func (e Event) WithAccount(account string) Event {
	e.Account = account
	return e
}

func (e Event) WithTransaction(id string) Event {
	e.TransactionId = id
	return e
}

func (e Event) WithPayload(payload any) Event {
	e.Payload = payload
	return e
}
