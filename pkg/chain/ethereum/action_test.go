package ethereum

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

func TestActionHelper_RoundTrip(t *testing.T) {
	helper := ActionHelper{}
	gas := uint64(50000)
	to := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	actions := []Action{
		{From: common.HexToAddress("0x00000000000000000000000000000000000000a1"), To: &to, Value: big.NewInt(1_000_000)},
		{From: common.HexToAddress("0x00000000000000000000000000000000000000a1"), To: &to, Data: []byte{0xa9, 0x05, 0x9c, 0xbb}, Gas: &gas, GasPrice: big.NewInt(7)},
		{From: common.HexToAddress("0x00000000000000000000000000000000000000a1"), Data: []byte{0x60, 0x80}},
	}
	for _, a := range actions {
		canonical := helper.ToCanonical(&a)

		fromCanonical, err := helper.FromInput(*canonical)
		require.NoError(t, err)
		require.Equal(t, a, *fromCanonical)

		fromSdk, err := helper.FromInput(helper.ToSdkEncoded(&a))
		require.NoError(t, err)
		require.Equal(t, a, *fromSdk)

		encoded, err := json.Marshal(canonical)
		require.NoError(t, err)
		fromJSON, err := helper.FromInput(encoded)
		require.NoError(t, err)
		require.Equal(t, canonical, helper.ToCanonical(fromJSON))
	}
}

func TestActionHelper_WireForm(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	unsigned := types.NewTx(&types.LegacyTx{Nonce: 3, GasPrice: big.NewInt(9), Gas: 21000, To: &to, Value: big.NewInt(5)})
	raw, err := unsigned.MarshalBinary()
	require.NoError(t, err)

	a, err := ActionHelper{}.FromInput(map[string]any{
		"from": "0x00000000000000000000000000000000000000a1",
		"txn":  hexutil.Encode(raw),
	})
	require.NoError(t, err)
	require.Equal(t, to, *a.To)
	require.Equal(t, big.NewInt(5), a.Value)
	require.Equal(t, uint64(21000), *a.Gas)
	require.Equal(t, big.NewInt(9), a.GasPrice)

	_, err = ActionHelper{}.FromInput(map[string]any{"txn": hexutil.Encode(raw)})
	requireKind(t, err, chain.ErrInvalidActionShape)
	_, err = ActionHelper{}.FromInput(map[string]any{"from": "0x00000000000000000000000000000000000000a1", "txn": "0x01"})
	requireKind(t, err, chain.ErrInvalidActionShape)
}

func TestActionHelper_Invalid(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	bad := []any{
		Action{To: &to},
		Action{From: to},
		Action{From: to, To: &to, Value: big.NewInt(-1)},
		CanonicalAction{From: "alice"},
		CanonicalAction{From: to.Hex(), To: "0x12"},
		CanonicalAction{From: to.Hex(), To: to.Hex(), Value: "ten"},
		CanonicalAction{From: to.Hex(), To: to.Hex(), Data: "zz"},
		ethereum.CallMsg{To: &to},
		[]byte("not json"),
		map[string]any{"from": to.Hex(), "to": to.Hex(), "value": true},
		42,
	}
	for _, input := range bad {
		_, err := ActionHelper{}.FromInput(input)
		requireKind(t, err, chain.ErrInvalidActionShape)
	}
}

func TestActionHelper_NormalizesEmptyFields(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	a, err := ActionHelper{}.FromInput(map[string]any{
		"from":  "0x00000000000000000000000000000000000000a1",
		"to":    to.Hex(),
		"value": "0x0",
		"gas":   float64(30000),
	})
	require.NoError(t, err)
	require.Nil(t, a.Value)
	require.Nil(t, a.Data)
	require.Equal(t, uint64(30000), *a.Gas)
	require.Equal(t, CanonicalAction{From: a.From.Hex(), To: to.Hex(), Gas: "30000"}, *ActionHelper{}.ToCanonical(a))
}
