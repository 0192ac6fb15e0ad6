package eos

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

func TestActionHelper_RoundTrip(t *testing.T) {
	ctx := context.Background()
	helper := NewActionHelper(newTestState(t, newFakeAPI()))
	k := newTestKey(t)

	actions := []*CanonicalAction{
		{
			Account:       TokenAccount,
			Name:          "transfer",
			Authorization: []PermissionLevel{{Actor: "alice", Permission: "active"}},
			Data:          map[string]any{"from": "alice", "to": "bob", "quantity": "12.3400 EOS", "memo": ""},
		},
		{
			Account:       SystemAccount,
			Name:          "updateauth",
			Authorization: []PermissionLevel{{Actor: "alice", Permission: "owner"}},
			Data: map[string]any{
				"account":    "alice",
				"permission": "active",
				"parent":     "owner",
				"auth":       Authority(1, k.pub.String()),
			},
		},
	}

	for _, a := range actions {
		t.Run(a.Name, func(t *testing.T) {
			raw, err := helper.FromInput(ctx, a)
			require.NoError(t, err)
			canonical, err := helper.ToCanonical(ctx, raw)
			require.NoError(t, err)

			inputs := map[string]any{
				"canonical": canonical,
				"raw":       *raw,
				"sdk":       helper.ToSdkEncoded(raw),
			}
			for shape, input := range inputs {
				again, err := helper.FromInput(ctx, input)
				require.NoError(t, err, shape)
				back, err := helper.ToCanonical(ctx, again)
				require.NoError(t, err, shape)
				require.Equal(t, canonical, back, shape)
			}

			// generic JSON objects are sniffed by the type of their data field
			for _, input := range []any{canonical, helper.ToSdkEncoded(raw)} {
				data, err := json.Marshal(input)
				require.NoError(t, err)
				again, err := helper.FromInput(ctx, data)
				require.NoError(t, err)
				require.Equal(t, raw.Data, again.Data)
			}
		})
	}
}

func TestActionHelper_InvalidShapes(t *testing.T) {
	ctx := context.Background()
	helper := NewActionHelper(newTestState(t, newFakeAPI()))

	inputs := []any{
		42,
		map[string]any{"name": "transfer"},
		map[string]any{"account": "eosio.token", "name": "transfer", "data": "zz"},
		map[string]any{"account": "eosio.token", "name": "transfer", "data": 7},
		map[string]any{"account": "eosio.token", "name": "transfer", "authorization": "alice"},
		[]byte("not json"),
		Action{Account: "Bad Name", Name: "transfer"},
	}
	for _, in := range inputs {
		_, err := helper.FromInput(ctx, in)
		requireKind(t, err, chain.ErrInvalidActionShape)
	}
}

func TestActionHelper_CanonicalStripsEmptyData(t *testing.T) {
	ctx := context.Background()
	helper := NewActionHelper(newTestState(t, newFakeAPI()))

	canonical, err := helper.ToCanonical(ctx, &Action{Account: TokenAccount, Name: "transfer"})
	require.Error(t, err)
	require.Nil(t, canonical)

	data, err := json.Marshal(&CanonicalAction{Account: "eosio", Name: "noop"})
	require.NoError(t, err)
	require.NotContains(t, string(data), "data")
}
