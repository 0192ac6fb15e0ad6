package eos

import (
	"context"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

// Chain is the EOS implementation of chain.Chain.
type Chain struct {
	state   *ChainState
	actions *ActionHelper
}

var _ chain.Chain = (*Chain)(nil)

func New(settings Settings) *Chain {
	state := NewChainState(settings)
	return &Chain{state: state, actions: NewActionHelper(state)}
}

func (c *Chain) Type() chain.ChainType { return chain.EOS }

func (c *Chain) State() *ChainState {
	return c.state
}

func (c *Chain) ActionHelper() *ActionHelper {
	return c.actions
}

func (c *Chain) Connect(ctx context.Context) error {
	return c.state.Connect(ctx)
}

func (c *Chain) IsConnected() bool {
	return c.state.IsConnected()
}

func (c *Chain) ChainInfo(ctx context.Context) (*chain.ChainInfo, error) {
	info, err := c.state.Info(ctx)
	if err != nil {
		return nil, err
	}
	headTime, err := info.HeadTime()
	if err != nil {
		return nil, chain.WrapError(chain.ErrUnknown, err, "head block time %q", info.HeadBlockTime)
	}
	return &chain.ChainInfo{
		HeadBlockNumber: info.HeadBlockNum,
		HeadBlockTime:   headTime,
		Version:         info.ServerVersion,
		NativeInfo:      info,
	}, nil
}

func (c *Chain) NewTransaction(_ context.Context, opts *chain.TransactionOptions) (chain.Transaction, error) {
	return NewTransaction(c.state, opts)
}

func (c *Chain) NewCreateAccount(opts chain.CreateAccountOptions) (chain.CreateAccount, error) {
	switch o := opts.(type) {
	case CreateAccountOptions:
		return NewCreateAccount(c.state, o)
	case *CreateAccountOptions:
		return NewCreateAccount(c.state, *o)
	}
	return nil, chain.NewError(chain.ErrInvalidOptions, "create account options for %s given to eos", opts.ChainType())
}

func (c *Chain) LoadAccount(ctx context.Context, name string) (chain.Account, error) {
	return LoadAccount(ctx, c.state, name)
}

func (c *Chain) IsValidAccountName(name string) bool {
	return IsValidName(name)
}

func (c *Chain) DecodeAction(ctx context.Context, input any) (chain.Action, error) {
	a, err := c.actions.FromInput(ctx, input)
	if err != nil {
		return nil, err
	}
	return *a, nil
}
