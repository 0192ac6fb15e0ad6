package algorand

import (
	"context"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

// Account is any address. It exists on chain once it holds algos.
type Account struct {
	address types.Address
	info    models.Account
}

var _ chain.Account = (*Account)(nil)

func LoadAccount(ctx context.Context, state *ChainState, address string) (*Account, error) {
	addr, err := types.DecodeAddress(address)
	if err != nil {
		return nil, chain.WrapError(chain.ErrInvalidOptions, err, "invalid address %q", address)
	}
	info, err := state.Account(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &Account{address: addr, info: *info}, nil
}

func (a *Account) Name() string {
	return a.address.String()
}

func (a *Account) Exists() bool {
	return a.info.Amount > 0
}

func (a *Account) Balance() uint64 {
	return a.info.Amount
}

func (a *Account) MinBalance() uint64 {
	return a.info.MinBalance
}

// PublicKeys is the key that signs for the account: its own, or the auth
// address of a rekeyed account.
func (a *Account) PublicKeys() []chain.PublicKey {
	if a.info.AuthAddr != "" {
		return []chain.PublicKey{chain.PublicKey(a.info.AuthAddr)}
	}
	return []chain.PublicKey{chain.PublicKey(a.address.String())}
}

func (a *Account) SupportsRecycling() bool {
	return false
}

func (a *Account) CanBeRecycled() bool {
	return false
}
