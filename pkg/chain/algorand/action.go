package algorand

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"unicode/utf8"

	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

// Action is a payment, an asset transfer or an application call from one
// account. The header fields (fee, rounds, genesis) belong to the transaction.
type Action struct {
	Type    types.TxType
	From    types.Address
	To      types.Address
	Amount  uint64
	AssetID uint64
	CloseTo types.Address
	AppID   uint64
	AppArgs [][]byte
	Note    []byte
}

func (Action) ChainType() chain.ChainType { return chain.Algorand }

// NoteBase64 marks a canonical note that is not UTF-8 text.
const NoteBase64 = "base64"

// CanonicalAction is the JSON form: base32 addresses, base64 application
// arguments and a plain text note. A note that is not UTF-8 is base64 with
// NoteEncoding set to NoteBase64.
type CanonicalAction struct {
	Type         string   `json:"type"`
	From         string   `json:"from"`
	To           string   `json:"to,omitempty"`
	Amount       uint64   `json:"amount,omitempty"`
	AssetIndex   uint64   `json:"assetIndex,omitempty"`
	CloseTo      string   `json:"closeRemainderTo,omitempty"`
	AppIndex     uint64   `json:"appIndex,omitempty"`
	AppArgs      []string `json:"appArgs,omitempty"`
	Note         string   `json:"note,omitempty"`
	NoteEncoding string   `json:"noteEncoding,omitempty"`
}

func (CanonicalAction) ChainType() chain.ChainType { return chain.Algorand }

// ActionHelper converts between the raw, canonical, SDK and msgpack wire
// forms of an action.
type ActionHelper struct{}

// FromInput accepts an Action, a CanonicalAction, an SDK transaction, JSON,
// msgpack wire bytes or a decoded JSON object. The object form
// {"txn": "<base64 msgpack>"} carries the compressed wire encoding.
func (ActionHelper) FromInput(input any) (*Action, error) {
	switch a := input.(type) {
	case Action:
		return validateRaw(&a)
	case *Action:
		cp := *a
		return validateRaw(&cp)
	case CanonicalAction:
		return fromCanonical(&a)
	case *CanonicalAction:
		return fromCanonical(a)
	case types.Transaction:
		return fromSdk(&a)
	case *types.Transaction:
		return fromSdk(a)
	case json.RawMessage:
		return fromBytes(a)
	case []byte:
		return fromBytes(a)
	case map[string]any:
		return fromMap(a)
	}
	return nil, chain.NewError(chain.ErrInvalidActionShape, "unsupported algorand action type %T", input)
}

func fromBytes(data []byte) (*Action, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var m map[string]any
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return nil, chain.WrapError(chain.ErrInvalidActionShape, err, "algorand action is not valid json")
		}
		return fromMap(m)
	}
	return fromWire(data)
}

func fromMap(m map[string]any) (*Action, error) {
	if txn, ok := m["txn"].(string); ok {
		data, err := base64.StdEncoding.DecodeString(txn)
		if err != nil {
			return nil, chain.WrapError(chain.ErrInvalidActionShape, err, "txn is not base64")
		}
		return fromWire(data)
	}
	encoded, err := json.Marshal(m)
	if err != nil {
		return nil, chain.WrapError(chain.ErrInvalidActionShape, err, "encode action object")
	}
	var c CanonicalAction
	if err := json.Unmarshal(encoded, &c); err != nil {
		return nil, chain.WrapError(chain.ErrInvalidActionShape, err, "algorand action object")
	}
	return fromCanonical(&c)
}

// fromWire decodes the msgpack encoding algod uses for transactions.
func fromWire(data []byte) (*Action, error) {
	var txn types.Transaction
	if err := msgpack.Decode(data, &txn); err != nil {
		return nil, chain.WrapError(chain.ErrInvalidActionShape, err, "decode msgpack transaction")
	}
	return fromSdk(&txn)
}

func decodeAddress(field, s string, required bool) (types.Address, error) {
	if s == "" {
		if required {
			return types.Address{}, chain.NewError(chain.ErrInvalidActionShape, "field %s is required", field)
		}
		return types.Address{}, nil
	}
	addr, err := types.DecodeAddress(s)
	if err != nil {
		return types.Address{}, chain.WrapError(chain.ErrInvalidActionShape, err, "field %s", field)
	}
	return addr, nil
}

func fromCanonical(c *CanonicalAction) (*Action, error) {
	a := &Action{
		Type:    types.TxType(c.Type),
		Amount:  c.Amount,
		AssetID: c.AssetIndex,
		AppID:   c.AppIndex,
	}
	if a.Type == "" {
		a.Type = types.PaymentTx
	}
	var err error
	if a.From, err = decodeAddress("from", c.From, true); err != nil {
		return nil, err
	}
	if a.To, err = decodeAddress("to", c.To, false); err != nil {
		return nil, err
	}
	if a.CloseTo, err = decodeAddress("closeRemainderTo", c.CloseTo, false); err != nil {
		return nil, err
	}
	for i, arg := range c.AppArgs {
		b, err := base64.StdEncoding.DecodeString(arg)
		if err != nil {
			return nil, chain.WrapError(chain.ErrInvalidActionShape, err, "appArgs[%d]", i)
		}
		a.AppArgs = append(a.AppArgs, b)
	}
	switch c.NoteEncoding {
	case "":
		a.Note = []byte(c.Note)
	case NoteBase64:
		if a.Note, err = base64.StdEncoding.DecodeString(c.Note); err != nil {
			return nil, chain.WrapError(chain.ErrInvalidActionShape, err, "note is not base64")
		}
	default:
		return nil, chain.NewError(chain.ErrInvalidActionShape, "unknown note encoding %q", c.NoteEncoding)
	}
	return validateRaw(a)
}

func fromSdk(txn *types.Transaction) (*Action, error) {
	a := &Action{Type: txn.Type, From: txn.Sender, Note: txn.Note}
	switch txn.Type {
	case types.PaymentTx:
		a.To = txn.Receiver
		a.Amount = uint64(txn.Amount)
		a.CloseTo = txn.CloseRemainderTo
	case types.AssetTransferTx:
		a.To = txn.AssetReceiver
		a.Amount = txn.AssetAmount
		a.AssetID = uint64(txn.XferAsset)
		a.CloseTo = txn.AssetCloseTo
	case types.ApplicationCallTx:
		a.AppID = uint64(txn.ApplicationID)
		a.AppArgs = txn.ApplicationArgs
	default:
		return nil, chain.NewError(chain.ErrInvalidActionShape, "unsupported algorand transaction type %q", txn.Type)
	}
	return validateRaw(a)
}

func validateRaw(a *Action) (*Action, error) {
	if a.From == (types.Address{}) {
		return nil, chain.NewError(chain.ErrInvalidActionShape, "algorand action needs a from address")
	}
	switch a.Type {
	case types.PaymentTx:
		if a.To == (types.Address{}) {
			return nil, chain.NewError(chain.ErrInvalidActionShape, "payment needs a receiver")
		}
		if a.AssetID != 0 || a.AppID != 0 || len(a.AppArgs) > 0 {
			return nil, chain.NewError(chain.ErrInvalidActionShape, "payment cannot name an asset or application")
		}
	case types.AssetTransferTx:
		if a.AssetID == 0 {
			return nil, chain.NewError(chain.ErrInvalidActionShape, "asset transfer needs an asset index")
		}
		if a.To == (types.Address{}) {
			return nil, chain.NewError(chain.ErrInvalidActionShape, "asset transfer needs a receiver")
		}
	case types.ApplicationCallTx:
		if a.AppID == 0 {
			return nil, chain.NewError(chain.ErrInvalidActionShape, "application creation is not supported, appIndex is required")
		}
		if a.Amount != 0 || a.To != (types.Address{}) {
			return nil, chain.NewError(chain.ErrInvalidActionShape, "application call cannot carry an amount or receiver")
		}
	default:
		return nil, chain.NewError(chain.ErrInvalidActionShape, "unsupported algorand transaction type %q", a.Type)
	}
	if len(a.Note) == 0 {
		a.Note = nil
	}
	if len(a.AppArgs) == 0 {
		a.AppArgs = nil
	}
	return a, nil
}

func (ActionHelper) ToCanonical(a *Action) *CanonicalAction {
	c := &CanonicalAction{
		Type:       string(a.Type),
		From:       a.From.String(),
		Amount:     a.Amount,
		AssetIndex: a.AssetID,
		AppIndex:   a.AppID,
	}
	if utf8.Valid(a.Note) {
		c.Note = string(a.Note)
	} else {
		c.Note = base64.StdEncoding.EncodeToString(a.Note)
		c.NoteEncoding = NoteBase64
	}
	if a.To != (types.Address{}) {
		c.To = a.To.String()
	}
	if a.CloseTo != (types.Address{}) {
		c.CloseTo = a.CloseTo.String()
	}
	for _, arg := range a.AppArgs {
		c.AppArgs = append(c.AppArgs, base64.StdEncoding.EncodeToString(arg))
	}
	return c
}

// ToSdkEncoded returns the SDK transaction with only the action fields set.
func (ActionHelper) ToSdkEncoded(a *Action) types.Transaction {
	txn := types.Transaction{Type: a.Type}
	txn.Sender = a.From
	txn.Note = a.Note
	switch a.Type {
	case types.PaymentTx:
		txn.Receiver = a.To
		txn.Amount = types.MicroAlgos(a.Amount)
		txn.CloseRemainderTo = a.CloseTo
	case types.AssetTransferTx:
		txn.AssetReceiver = a.To
		txn.AssetAmount = a.Amount
		txn.XferAsset = types.AssetIndex(a.AssetID)
		txn.AssetCloseTo = a.CloseTo
	case types.ApplicationCallTx:
		txn.ApplicationID = types.AppIndex(a.AppID)
		txn.OnCompletion = types.NoOpOC
		txn.ApplicationArgs = a.AppArgs
	}
	return txn
}

// ToWire is the compressed msgpack form accepted back by FromInput.
func (h ActionHelper) ToWire(a *Action) []byte {
	return msgpack.Encode(h.ToSdkEncoded(a))
}
