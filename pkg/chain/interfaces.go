package chain

import (
	"context"
)

// Chain is the entry point for one network. Implementations lazily create their
// client handles on Connect and reuse them afterwards.
type Chain interface {
	Type() ChainType
	Connect(ctx context.Context) error
	IsConnected() bool
	ChainInfo(ctx context.Context) (*ChainInfo, error)
	// NewTransaction may call the chain, e.g. to resolve a multisig address.
	NewTransaction(ctx context.Context, opts *TransactionOptions) (Transaction, error)
	NewCreateAccount(opts CreateAccountOptions) (CreateAccount, error)
	LoadAccount(ctx context.Context, name string) (Account, error)
	IsValidAccountName(name string) bool
	// DecodeAction converts any supported action representation into the
	// chain's raw action type.
	DecodeAction(ctx context.Context, input any) (Action, error)
}

// Transaction is the signature state machine shared by all chains:
//
//	unprepared -> prepared -> validated -> partially signed -> fully signed -> sent
//
// Once any signature is attached the actions, header and serialized body are
// frozen; every mutation attempt fails with MutationAfterSignature.
type Transaction interface {
	ChainType() ChainType
	Actions() []Action
	SetActions(actions ...Action) error
	// PrepareToBeSigned derives the header and serialized body. It is a no-op
	// when the body already exists.
	PrepareToBeSigned(ctx context.Context) error
	// SetFromRaw adopts a serialized body (and any signatures embedded in it) verbatim.
	SetFromRaw(ctx context.Context, raw []byte) error
	HasRaw() bool
	Raw() []byte
	SignBuffer() ([]byte, error)
	Validate(ctx context.Context) error
	IsValidated() bool
	RequiredAuthorizations() []Authorization
	Signatures() []Signature
	HasAnySignatures() bool
	AddSignatures(ctx context.Context, sigs ...Signature) error
	Sign(ctx context.Context, keys ...PrivateKey) error
	HasAllRequiredSignatures() bool
	// MissingSignatures returns nil once every requirement is met, and an empty
	// non-nil slice when nothing is required at all.
	MissingSignatures() []Authorization
	IsMultisig() bool
	TransactionID() (string, error)
	Send(ctx context.Context, level ConfirmLevel) (*SendResult, error)
}

// MultisigPlugin is the alternate signature policy a transaction delegates to
// when it carries multisig options.
type MultisigPlugin interface {
	Address() string
	Owners() []string
	Threshold() int
	SignBuffer() ([]byte, error)
	Signatures() []Signature
	MissingSignatures() []Authorization
	HasAllRequiredSignatures() bool
}

type Account interface {
	Name() string
	Exists() bool
	PublicKeys() []PublicKey
	SupportsRecycling() bool
	CanBeRecycled() bool
}

// CreateAccountOptions is a sealed union with one implementation per chain.
type CreateAccountOptions interface {
	ChainType() ChainType
	createAccountOptions()
}

type CreateAccountOptionsBase struct{}

func (CreateAccountOptionsBase) createAccountOptions() {}

type CreateAccount interface {
	// Compose resolves or generates the account name and keys and builds the
	// creation transaction when the chain needs one.
	Compose(ctx context.Context) error
	AccountName() string
	GeneratedKeys() []KeyPair
	RequiresTransaction() bool
	Transaction() Transaction
}
