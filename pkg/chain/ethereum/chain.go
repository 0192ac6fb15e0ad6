package ethereum

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

// Chain is the Ethereum implementation of chain.Chain.
type Chain struct {
	state   *ChainState
	actions ActionHelper
}

var _ chain.Chain = (*Chain)(nil)

func New(settings Settings) *Chain {
	return &Chain{state: NewChainState(settings)}
}

func (c *Chain) Type() chain.ChainType { return chain.Ethereum }

func (c *Chain) State() *ChainState {
	return c.state
}

func (c *Chain) ActionHelper() ActionHelper {
	return c.actions
}

func (c *Chain) Connect(ctx context.Context) error {
	return c.state.Connect(ctx)
}

func (c *Chain) IsConnected() bool {
	return c.state.IsConnected()
}

func (c *Chain) ChainInfo(ctx context.Context) (*chain.ChainInfo, error) {
	head, err := c.state.Head(ctx)
	if err != nil {
		return nil, err
	}
	return &chain.ChainInfo{
		HeadBlockNumber: head.Number.Uint64(),
		HeadBlockTime:   time.Unix(int64(head.Time), 0).UTC(),
		Version:         "chain " + c.state.ChainID().String(),
		NativeInfo:      head,
	}, nil
}

func (c *Chain) NewTransaction(ctx context.Context, opts *chain.TransactionOptions) (chain.Transaction, error) {
	return NewTransaction(ctx, c.state, opts)
}

func (c *Chain) NewCreateAccount(opts chain.CreateAccountOptions) (chain.CreateAccount, error) {
	switch o := opts.(type) {
	case CreateAccountOptions:
		return NewCreateAccount(c.state, o)
	case *CreateAccountOptions:
		return NewCreateAccount(c.state, *o)
	}
	return nil, chain.NewError(chain.ErrInvalidOptions, "create account options for %s given to ethereum", opts.ChainType())
}

func (c *Chain) LoadAccount(ctx context.Context, name string) (chain.Account, error) {
	return LoadAccount(ctx, c.state, name)
}

func (c *Chain) IsValidAccountName(name string) bool {
	return common.IsHexAddress(name)
}

func (c *Chain) DecodeAction(_ context.Context, input any) (chain.Action, error) {
	a, err := c.actions.FromInput(input)
	if err != nil {
		return nil, err
	}
	return *a, nil
}
