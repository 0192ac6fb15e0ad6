package ethereum

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
	"github.com/kollektive-hackathon/multichain/pkg/keystore"
)

// CreateAccountOptions either generate a key pair, or with Multisig set,
// deploy a Safe proxy through the factory from Deployer.
type CreateAccountOptions struct {
	chain.CreateAccountOptionsBase
	Password string
	Salt     string
	Multisig *MultisigOptions
	Deployer string
}

func (CreateAccountOptions) ChainType() chain.ChainType { return chain.Ethereum }

type CreateAccount struct {
	state *ChainState
	opts  CreateAccountOptions

	address   common.Address
	generated []chain.KeyPair
	tx        *Transaction
}

var _ chain.CreateAccount = (*CreateAccount)(nil)

func NewCreateAccount(state *ChainState, opts CreateAccountOptions) (*CreateAccount, error) {
	if opts.Multisig != nil && !common.IsHexAddress(opts.Deployer) {
		return nil, chain.NewError(chain.ErrInvalidOptions, "deploying a safe needs a deployer address, got %q", opts.Deployer)
	}
	return &CreateAccount{state: state, opts: opts}, nil
}

func (ca *CreateAccount) Compose(ctx context.Context) error {
	if ca.opts.Multisig != nil {
		return ca.composeSafe(ctx)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return errors.Wrap(err, "generate key")
	}
	kp := chain.KeyPair{PublicKey: EncodePublicKey(&key.PublicKey), PrivateKey: EncodePrivateKey(key)}
	if ca.opts.Password != "" {
		enc, err := keystore.Encrypt(string(kp.PrivateKey), ca.opts.Password, ca.opts.Salt)
		if err != nil {
			return errors.Wrap(err, "encrypt private key")
		}
		kp.PrivateKeyEncrypted = enc
	}
	ca.address = crypto.PubkeyToAddress(key.PublicKey)
	ca.generated = []chain.KeyPair{kp}
	log.Debug().Str("address", ca.address.Hex()).Msg("ethereum key pair generated")
	return nil
}

func (ca *CreateAccount) composeSafe(ctx context.Context) error {
	opts := *ca.opts.Multisig
	owners, err := opts.ownerAddresses()
	if err != nil {
		return err
	}
	deployment := ca.state.SafeDeployment()
	addr, err := ResolveSafeAddress(ctx, ca.state, MultisigOptions{Threshold: opts.Threshold, Owners: opts.Owners, SaltNonce: opts.SaltNonce})
	if err != nil {
		return err
	}
	code, err := ca.state.Code(ctx, addr)
	if err != nil {
		return err
	}
	if len(code) > 0 {
		return chain.NewError(chain.ErrAccountAlreadyExists, "safe %s is already deployed", addr.Hex())
	}

	initializer, err := safeInitializer(owners, opts.Threshold, deployment.FallbackHandler)
	if err != nil {
		return chain.WrapError(chain.ErrInvalidOptions, err, "safe initializer")
	}
	data, err := createProxyData(deployment.Singleton, initializer, new(big.Int).SetUint64(opts.SaltNonce))
	if err != nil {
		return chain.WrapError(chain.ErrInvalidOptions, err, "encode createProxyWithNonce")
	}
	tx, err := NewTransaction(ctx, ca.state, nil)
	if err != nil {
		return err
	}
	if err := tx.SetActions(Action{From: common.HexToAddress(ca.opts.Deployer), To: &deployment.Factory, Data: data}); err != nil {
		return err
	}
	ca.address = addr
	ca.tx = tx
	log.Debug().Str("safe", addr.Hex()).Int("owners", len(owners)).Msg("safe deployment composed")
	return nil
}

func (ca *CreateAccount) AccountName() string {
	if ca.address == (common.Address{}) {
		return ""
	}
	return ca.address.Hex()
}

func (ca *CreateAccount) GeneratedKeys() []chain.KeyPair {
	return ca.generated
}

// RequiresTransaction is true only when a Safe proxy has to be deployed.
func (ca *CreateAccount) RequiresTransaction() bool {
	return ca.opts.Multisig != nil
}

func (ca *CreateAccount) Transaction() chain.Transaction {
	if ca.tx == nil {
		return nil
	}
	return ca.tx
}
