package algorand

import (
	"context"

	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

// Chain is the Algorand implementation of chain.Chain.
type Chain struct {
	state   *ChainState
	actions ActionHelper
}

var _ chain.Chain = (*Chain)(nil)

func New(settings Settings) *Chain {
	return &Chain{state: NewChainState(settings)}
}

func (c *Chain) Type() chain.ChainType { return chain.Algorand }

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
	st, err := c.state.Status(ctx)
	if err != nil {
		return nil, err
	}
	ts, err := c.state.BlockTime(ctx, st.LastRound)
	if err != nil {
		return nil, err
	}
	return &chain.ChainInfo{
		HeadBlockNumber: st.LastRound,
		HeadBlockTime:   ts,
		Version:         st.LastVersion,
		NativeInfo:      st,
	}, nil
}

func (c *Chain) NewTransaction(_ context.Context, opts *chain.TransactionOptions) (chain.Transaction, error) {
	return NewTransaction(c.state, opts)
}

func (c *Chain) NewCreateAccount(opts chain.CreateAccountOptions) (chain.CreateAccount, error) {
	switch o := opts.(type) {
	case CreateAccountOptions:
		return NewCreateAccount(o)
	case *CreateAccountOptions:
		return NewCreateAccount(*o)
	}
	return nil, chain.NewError(chain.ErrInvalidOptions, "create account options for %s given to algorand", opts.ChainType())
}

func (c *Chain) LoadAccount(ctx context.Context, name string) (chain.Account, error) {
	return LoadAccount(ctx, c.state, name)
}

func (c *Chain) IsValidAccountName(name string) bool {
	_, err := types.DecodeAddress(name)
	return err == nil
}

func (c *Chain) DecodeAction(_ context.Context, input any) (chain.Action, error) {
	a, err := c.actions.FromInput(input)
	if err != nil {
		return nil, err
	}
	return *a, nil
}
