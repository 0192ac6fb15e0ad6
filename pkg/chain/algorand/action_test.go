package algorand

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/require"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

func TestActionHelper_RoundTrip(t *testing.T) {
	helper := ActionHelper{}
	from := newTestKey().addr()
	actions := []Action{
		{Type: types.PaymentTx, From: from, To: receiver, Amount: 1_000_000, Note: []byte("rent")},
		{Type: types.PaymentTx, From: from, To: receiver, CloseTo: receiver},
		{Type: types.AssetTransferTx, From: from, To: receiver, Amount: 5, AssetID: 31566704},
		{Type: types.ApplicationCallTx, From: from, AppID: 77, AppArgs: [][]byte{[]byte("vote"), {1}}},
		{Type: types.PaymentTx, From: from, To: receiver, Amount: 1, Note: []byte{0xff, 0x00, 0xfe}},
	}
	for _, a := range actions {
		canonical := helper.ToCanonical(&a)

		fromCanonical, err := helper.FromInput(*canonical)
		require.NoError(t, err)
		require.Equal(t, a, *fromCanonical)

		fromSdk, err := helper.FromInput(helper.ToSdkEncoded(&a))
		require.NoError(t, err)
		require.Equal(t, a, *fromSdk)

		fromWire, err := helper.FromInput(helper.ToWire(&a))
		require.NoError(t, err)
		require.Equal(t, a, *fromWire)

		fromWireObject, err := helper.FromInput(map[string]any{"txn": base64.StdEncoding.EncodeToString(helper.ToWire(&a))})
		require.NoError(t, err)
		require.Equal(t, a, *fromWireObject)

		encoded, err := json.Marshal(canonical)
		require.NoError(t, err)
		fromJSON, err := helper.FromInput(encoded)
		require.NoError(t, err)
		require.Equal(t, a, *fromJSON)
	}
}

func TestActionHelper_NoteEncoding(t *testing.T) {
	helper := ActionHelper{}
	from := newTestKey().addr()

	text := helper.ToCanonical(&Action{Type: types.PaymentTx, From: from, To: receiver, Note: []byte("rent")})
	require.Equal(t, "rent", text.Note)
	require.Empty(t, text.NoteEncoding)

	binary := helper.ToCanonical(&Action{Type: types.PaymentTx, From: from, To: receiver, Note: []byte{0xff, 0x00, 0xfe}})
	require.Equal(t, "/wD+", binary.Note)
	require.Equal(t, NoteBase64, binary.NoteEncoding)

	binary.NoteEncoding = "hex"
	_, err := helper.FromInput(*binary)
	requireKind(t, err, chain.ErrInvalidActionShape)
	binary.NoteEncoding = NoteBase64
	binary.Note = "not base64!"
	_, err = helper.FromInput(*binary)
	requireKind(t, err, chain.ErrInvalidActionShape)
}

func TestActionHelper_CanonicalDefaultsToPayment(t *testing.T) {
	from := newTestKey().addr()
	a, err := ActionHelper{}.FromInput(map[string]any{
		"from":   from.String(),
		"to":     receiver.String(),
		"amount": float64(42),
	})
	require.NoError(t, err)
	require.Equal(t, types.PaymentTx, a.Type)
	require.Equal(t, uint64(42), a.Amount)
	require.Nil(t, a.Note)
}

func TestActionHelper_Invalid(t *testing.T) {
	from := newTestKey().addr().String()
	bad := []any{
		Action{Type: types.PaymentTx, To: receiver},
		Action{Type: types.PaymentTx, From: receiver},
		Action{Type: types.AssetTransferTx, From: receiver, To: receiver},
		Action{Type: types.ApplicationCallTx, From: receiver},
		Action{Type: types.ApplicationCallTx, From: receiver, AppID: 1, Amount: 3},
		Action{Type: types.KeyRegistrationTx, From: receiver},
		CanonicalAction{From: "alice", To: receiver.String()},
		CanonicalAction{From: from, To: "bob"},
		CanonicalAction{Type: "appl", From: from, AppIndex: 1, AppArgs: []string{"%%"}},
		map[string]any{"from": from, "to": receiver.String(), "amount": "ten"},
		map[string]any{"txn": "not base64!"},
		[]byte{0x01, 0x02},
		[]byte("{not json"),
		42,
	}
	for _, input := range bad {
		_, err := ActionHelper{}.FromInput(input)
		requireKind(t, err, chain.ErrInvalidActionShape)
	}
}
