package chain

import (
	"time"
)

type ChainType string

const (
	EOS      ChainType = "eos"
	Ethereum ChainType = "ethereum"
	Algorand ChainType = "algorand"
)

func (t ChainType) Valid() bool {
	switch t {
	case EOS, Ethereum, Algorand:
		return true
	}
	return false
}

// Signature, PublicKey and PrivateKey hold the chain's canonical string form
// (SIG_K1_/PUB_K1_ for EOS, 0x-hex for Ethereum, base64/base32 for Algorand).
type (
	Signature  string
	PublicKey  string
	PrivateKey string
)

// Action is implemented by the chain-specific action types. Passing an action
// of one chain family to a transaction of another fails with InvalidActionShape.
type Action interface {
	ChainType() ChainType
}

// Authorization is an identity that must countersign a transaction. Ethereum and
// Algorand only use Account (the address).
type Authorization struct {
	Account    string    `json:"account"`
	Permission string    `json:"permission,omitempty"`
	PublicKey  PublicKey `json:"publicKey,omitempty"`
}

func (a Authorization) String() string {
	if a.Permission == "" {
		return a.Account
	}
	return a.Account + "@" + a.Permission
}

type ConfirmLevel int

const (
	ConfirmNone ConfirmLevel = iota
	ConfirmAfterFirstBlock
)

type ChainInfo struct {
	HeadBlockNumber uint64    `json:"headBlockNumber"`
	HeadBlockTime   time.Time `json:"headBlockTime"`
	Version         string    `json:"version,omitempty"`
	// NativeInfo carries the chain specific response and is not interpreted here.
	NativeInfo any `json:"nativeInfo,omitempty"`
}

type SendResult struct {
	TransactionID string `json:"transactionId"`
	// BlockNumber is only set when the send waited for confirmation.
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	Confirmed   bool   `json:"confirmed"`
}

type KeyPair struct {
	PublicKey  PublicKey  `json:"publicKey"`
	PrivateKey PrivateKey `json:"-"`
	// PrivateKeyEncrypted is set when a password was supplied at generation time.
	PrivateKeyEncrypted string `json:"privateKeyEncrypted,omitempty"`
}

// TransactionOptions are recognised by every chain. Fields a chain has no use
// for are ignored.
type TransactionOptions struct {
	ExpireSeconds  int    `json:"expireSeconds,omitempty"`
	BlocksBehind   int    `json:"blocksBehind,omitempty"`
	ValidityWindow uint64 `json:"validityWindow,omitempty"`
	Fee            uint64 `json:"fee,omitempty"`
	FlatFee        bool   `json:"flatFee,omitempty"`
	// SignerPublicKey overrides the key resolved for a single required authorization.
	SignerPublicKey PublicKey       `json:"signerPublicKey,omitempty"`
	Multisig        MultisigOptions `json:"-"`
}

// MultisigOptions is a sealed union: each chain package provides the only
// implementation it accepts.
type MultisigOptions interface {
	ChainType() ChainType
	multisigOptions()
}

// MultisigOptionsBase is embedded by chain specific multisig options to seal the union.
type MultisigOptionsBase struct{}

func (MultisigOptionsBase) multisigOptions() {}
