package eos

import (
	"context"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

// UnusedAccountPublicKey is the null key. An account whose active permission
// holds only this key has been given up and can be recycled.
const UnusedAccountPublicKey = "EOS1111111111111111111111111111111114T1Anm"

type Account struct {
	name        string
	exists      bool
	permissions []AccountPermission
}

var _ chain.Account = (*Account)(nil)

func LoadAccount(ctx context.Context, state *ChainState, name string) (*Account, error) {
	if !IsValidName(name) {
		return nil, chain.NewError(chain.ErrInvalidOptions, "invalid account name %q", name)
	}
	res, err := state.Account(ctx, name)
	if chain.IsKind(err, chain.ErrAccountNotFound) {
		return &Account{name: name}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Account{name: name, exists: true, permissions: res.Permissions}, nil
}

func (a *Account) Name() string {
	return a.name
}

func (a *Account) Exists() bool {
	return a.exists
}

func (a *Account) PublicKeys() []chain.PublicKey {
	var out []chain.PublicKey
	seen := map[string]bool{}
	for _, p := range a.permissions {
		for _, k := range p.RequiredAuth.Keys {
			key, err := ParsePublicKey(k.Key)
			if err != nil || key.IsZero() || seen[key.String()] {
				continue
			}
			seen[key.String()] = true
			out = append(out, chain.PublicKey(key.String()))
		}
	}
	return out
}

func (a *Account) SupportsRecycling() bool {
	return true
}

func (a *Account) CanBeRecycled() bool {
	if !a.exists {
		return false
	}
	for _, p := range a.permissions {
		if p.PermName != "active" {
			continue
		}
		if len(p.RequiredAuth.Keys) == 0 {
			return false
		}
		for _, k := range p.RequiredAuth.Keys {
			key, err := ParsePublicKey(k.Key)
			if err != nil || !key.IsZero() {
				return false
			}
		}
		return true
	}
	return false
}
