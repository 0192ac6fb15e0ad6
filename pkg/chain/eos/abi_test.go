package eos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsset(t *testing.T) {
	tests := []struct {
		in     string
		amount int64
		symbol Symbol
	}{
		{"1.0000 EOS", 10000, Symbol{Precision: 4, Code: "EOS"}},
		{"0.0001 EOS", 1, Symbol{Precision: 4, Code: "EOS"}},
		{"-2.50 USD", -250, Symbol{Precision: 2, Code: "USD"}},
		{"7 TKN", 7, Symbol{Precision: 0, Code: "TKN"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			a, err := ParseAsset(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.amount, a.Amount)
			assert.Equal(t, tt.symbol, a.Symbol)
			assert.Equal(t, tt.in, a.String())
		})
	}

	for _, bad := range []string{"", "1.0 eos", "1.0", "abc EOS", "1.0 TOOLONGSYM"} {
		_, err := ParseAsset(bad)
		assert.Error(t, err, bad)
	}
}

func TestSymbolValue(t *testing.T) {
	sym, err := ParseSymbol("4,EOS")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x534f4504), sym.value())
	assert.Equal(t, sym, symbolFromValue(sym.value()))
}

func TestABI_TransferRoundTrip(t *testing.T) {
	data := map[string]any{
		"from":     "alice",
		"to":       "bob",
		"quantity": "1.0000 EOS",
		"memo":     "lunch",
	}
	packed, err := tokenABI.EncodeAction("transfer", data)
	require.NoError(t, err)
	// from + to + amount + symbol + memo length + memo
	require.Len(t, packed, 8+8+8+8+1+5)

	decoded, err := tokenABI.DecodeAction("transfer", packed)
	require.NoError(t, err)
	require.Equal(t, data, decoded)
}

func TestABI_NestedStructs(t *testing.T) {
	k := newTestKey(t)
	data := map[string]any{
		"creator": "eosio",
		"name":    "alice",
		"owner":   Authority(1, k.pub.String()),
		"active":  Authority(1, k.pub.String()),
	}
	packed, err := systemABI.EncodeAction("newaccount", data)
	require.NoError(t, err)

	decoded, err := systemABI.DecodeAction("newaccount", packed)
	require.NoError(t, err)
	require.Equal(t, data, decoded)
}

func TestABI_Errors(t *testing.T) {
	_, err := tokenABI.EncodeAction("issue", map[string]any{})
	require.Error(t, err)

	_, err = tokenABI.EncodeAction("transfer", map[string]any{"from": "alice"})
	require.ErrorContains(t, err, "missing field")

	packed, err := tokenABI.EncodeAction("transfer", map[string]any{"from": "a", "to": "b", "quantity": "1 X", "memo": ""})
	require.NoError(t, err)
	_, err = tokenABI.DecodeAction("transfer", append(packed, 0))
	require.Error(t, err)
}

func TestABI_OptionalAndTypedefs(t *testing.T) {
	abi, err := ParseABI([]byte(`{
		"version": "eosio::abi/1.1",
		"types": [{"new_type_name": "account", "type": "name"}],
		"structs": [
			{"name": "base", "base": "", "fields": [{"name": "owner", "type": "account"}]},
			{"name": "setnote", "base": "base", "fields": [
				{"name": "note", "type": "string?"},
				{"name": "tags", "type": "uint8[]"}
			]}
		],
		"actions": [{"name": "setnote", "type": "setnote"}]
	}`))
	require.NoError(t, err)

	withoutNote := map[string]any{"owner": "alice", "tags": []any{uint64(1), uint64(2)}}
	packed, err := abi.EncodeAction("setnote", withoutNote)
	require.NoError(t, err)
	decoded, err := abi.DecodeAction("setnote", packed)
	require.NoError(t, err)
	require.Equal(t, withoutNote, decoded)
	require.NotContains(t, decoded, "note")

	withNote := map[string]any{"owner": "alice", "note": "hi", "tags": []any{}}
	packed, err = abi.EncodeAction("setnote", withNote)
	require.NoError(t, err)
	decoded, err = abi.DecodeAction("setnote", packed)
	require.NoError(t, err)
	require.Equal(t, withNote, decoded)
}
