package algorand

import (
	"context"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
	"github.com/kollektive-hackathon/multichain/pkg/keystore"
)

// CreateAccountOptions either generate a key pair, or with Multisig set,
// derive the multisig address. Neither needs a transaction.
type CreateAccountOptions struct {
	chain.CreateAccountOptionsBase
	Password string
	Salt     string
	Multisig *MultisigOptions
}

func (CreateAccountOptions) ChainType() chain.ChainType { return chain.Algorand }

type CreateAccount struct {
	opts CreateAccountOptions

	address   types.Address
	generated []chain.KeyPair
}

var _ chain.CreateAccount = (*CreateAccount)(nil)

func NewCreateAccount(opts CreateAccountOptions) (*CreateAccount, error) {
	if opts.Multisig != nil {
		if _, _, err := opts.Multisig.account(); err != nil {
			return nil, err
		}
	}
	return &CreateAccount{opts: opts}, nil
}

func (ca *CreateAccount) Compose(_ context.Context) error {
	if ca.opts.Multisig != nil {
		addr, err := DeriveMultisigAddress(*ca.opts.Multisig)
		if err != nil {
			return err
		}
		ca.address = addr
		log.Debug().Str("address", addr.String()).Int("owners", len(ca.opts.Multisig.Addrs)).Msg("algorand multisig address derived")
		return nil
	}

	acc := crypto.GenerateAccount()
	kp := chain.KeyPair{PublicKey: chain.PublicKey(acc.Address.String()), PrivateKey: EncodePrivateKey(acc.PrivateKey)}
	if ca.opts.Password != "" {
		enc, err := keystore.Encrypt(string(kp.PrivateKey), ca.opts.Password, ca.opts.Salt)
		if err != nil {
			return errors.Wrap(err, "encrypt private key")
		}
		kp.PrivateKeyEncrypted = enc
	}
	ca.address = acc.Address
	ca.generated = []chain.KeyPair{kp}
	log.Debug().Str("address", acc.Address.String()).Msg("algorand key pair generated")
	return nil
}

func (ca *CreateAccount) AccountName() string {
	if ca.address == (types.Address{}) {
		return ""
	}
	return ca.address.String()
}

func (ca *CreateAccount) GeneratedKeys() []chain.KeyPair {
	return ca.generated
}

func (ca *CreateAccount) RequiresTransaction() bool {
	return false
}

func (ca *CreateAccount) Transaction() chain.Transaction {
	return nil
}
