package model

import (
	"time"
)

// CustodialWallet is an account created on behalf of a user. Generated keys
// are only stored encrypted, in the same order as PublicKeys.
type CustodialWallet struct {
	Id            uint64    `gorm:"primaryKey" json:"id"`
	OwnerId       string    `json:"-"`
	Chain         string    `json:"chain"`
	Address       string    `json:"address"`
	PublicKeys    []string  `gorm:"serializer:json" json:"publicKeys,omitempty"`
	EncryptedKeys []string  `gorm:"serializer:json" json:"-"`
	Multisig      bool      `json:"multisig"`
	TransactionId string    `json:"transactionId,omitempty"`
	TimeCreated   time.Time `json:"timeCreated"`
}

func (CustodialWallet) TableName() string {
	return "custodial_wallet"
}
