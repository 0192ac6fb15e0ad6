package ethereum

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

// Account is an externally owned account or a contract. Addresses need no
// registration, so an account exists once it holds ether, has sent a
// transaction or carries code.
type Account struct {
	address common.Address
	balance *big.Int
	nonce   uint64
	code    []byte
}

var _ chain.Account = (*Account)(nil)

func LoadAccount(ctx context.Context, state *ChainState, address string) (*Account, error) {
	if !common.IsHexAddress(address) {
		return nil, chain.NewError(chain.ErrInvalidOptions, "invalid address %q", address)
	}
	addr := common.HexToAddress(address)
	balance, err := state.Balance(ctx, addr)
	if err != nil {
		return nil, err
	}
	nonce, err := state.Nonce(ctx, addr)
	if err != nil {
		return nil, err
	}
	code, err := state.Code(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &Account{address: addr, balance: balance, nonce: nonce, code: code}, nil
}

func (a *Account) Name() string {
	return a.address.Hex()
}

func (a *Account) Exists() bool {
	return a.nonce > 0 || len(a.code) > 0 || (a.balance != nil && a.balance.Sign() > 0)
}

func (a *Account) IsContract() bool {
	return len(a.code) > 0
}

func (a *Account) Balance() *big.Int {
	if a.balance == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.balance)
}

// PublicKeys is empty: an address does not reveal its key until it signs.
func (a *Account) PublicKeys() []chain.PublicKey {
	return nil
}

func (a *Account) SupportsRecycling() bool {
	return false
}

func (a *Account) CanBeRecycled() bool {
	return false
}
