package ethereum

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

// Action is a value transfer or contract call from one account. Gas and gas
// price are filled from the chain when nil; the nonce belongs to the transaction.
type Action struct {
	From     common.Address
	To       *common.Address
	Value    *big.Int
	Data     []byte
	Gas      *uint64
	GasPrice *big.Int
}

func (Action) ChainType() chain.ChainType { return chain.Ethereum }

// CanonicalAction is the JSON form: hex addresses and data, decimal amounts.
type CanonicalAction struct {
	From     string `json:"from"`
	To       string `json:"to,omitempty"`
	Value    string `json:"value,omitempty"`
	Data     string `json:"data,omitempty"`
	Gas      string `json:"gas,omitempty"`
	GasPrice string `json:"gasPrice,omitempty"`
}

func (CanonicalAction) ChainType() chain.ChainType { return chain.Ethereum }

// ActionHelper converts between the raw, canonical and go-ethereum call
// message forms of an action.
type ActionHelper struct{}

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
	case ethereum.CallMsg:
		return fromCallMsg(&a)
	case *ethereum.CallMsg:
		return fromCallMsg(a)
	case json.RawMessage:
		return fromJSON(a)
	case []byte:
		return fromJSON(a)
	case map[string]any:
		return fromMap(a)
	}
	return nil, chain.NewError(chain.ErrInvalidActionShape, "unsupported ethereum action type %T", input)
}

func fromJSON(data []byte) (*Action, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, chain.WrapError(chain.ErrInvalidActionShape, err, "ethereum action is not a json object")
	}
	return fromMap(m)
}

// fromMap accepts the canonical JSON object and the compressed wire form
// {"from": ..., "txn": "0x<rlp>"}.
func fromMap(m map[string]any) (*Action, error) {
	from, _ := m["from"].(string)
	if txn, ok := m["txn"].(string); ok {
		return fromWire(from, txn)
	}
	var c CanonicalAction
	fields := map[string]*string{
		"from": &c.From, "to": &c.To, "value": &c.Value, "data": &c.Data,
		"gas": &c.Gas, "gasPrice": &c.GasPrice,
	}
	for key, dst := range fields {
		switch v := m[key].(type) {
		case nil:
		case string:
			*dst = v
		case float64:
			*dst = new(big.Float).SetFloat64(v).Text('f', 0)
		default:
			return nil, chain.NewError(chain.ErrInvalidActionShape, "field %s has unsupported type %T", key, v)
		}
	}
	return fromCanonical(&c)
}

func fromWire(from, txn string) (*Action, error) {
	data, err := hexutil.Decode(txn)
	if err != nil {
		return nil, chain.WrapError(chain.ErrInvalidActionShape, err, "txn is not hex")
	}
	var tx types.Transaction
	if err := tx.UnmarshalBinary(data); err != nil {
		return nil, chain.WrapError(chain.ErrInvalidActionShape, err, "decode txn")
	}
	if !common.IsHexAddress(from) {
		return nil, chain.NewError(chain.ErrInvalidActionShape, "wire action needs a from address")
	}
	gas := tx.Gas()
	return validateRaw(&Action{
		From:     common.HexToAddress(from),
		To:       tx.To(),
		Value:    tx.Value(),
		Data:     tx.Data(),
		Gas:      &gas,
		GasPrice: tx.GasPrice(),
	})
}

func parseBig(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "0x") {
		n, err := hexutil.DecodeBig(s)
		if err != nil {
			return nil, chain.WrapError(chain.ErrInvalidActionShape, err, "field %s", field)
		}
		return n, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, chain.NewError(chain.ErrInvalidActionShape, "field %s is not a number: %q", field, s)
	}
	return n, nil
}

func parseUint(field, s string) (*uint64, error) {
	n, err := parseBig(field, s)
	if err != nil || n == nil {
		return nil, err
	}
	if !n.IsUint64() {
		return nil, chain.NewError(chain.ErrInvalidActionShape, "field %s out of range", field)
	}
	v := n.Uint64()
	return &v, nil
}

func fromCanonical(c *CanonicalAction) (*Action, error) {
	if !common.IsHexAddress(c.From) {
		return nil, chain.NewError(chain.ErrInvalidActionShape, "from %q is not an address", c.From)
	}
	a := &Action{From: common.HexToAddress(c.From)}
	if c.To != "" {
		if !common.IsHexAddress(c.To) {
			return nil, chain.NewError(chain.ErrInvalidActionShape, "to %q is not an address", c.To)
		}
		to := common.HexToAddress(c.To)
		a.To = &to
	}
	var err error
	if a.Value, err = parseBig("value", c.Value); err != nil {
		return nil, err
	}
	if c.Data != "" {
		if a.Data, err = hexutil.Decode(c.Data); err != nil {
			return nil, chain.WrapError(chain.ErrInvalidActionShape, err, "data")
		}
	}
	if a.Gas, err = parseUint("gas", c.Gas); err != nil {
		return nil, err
	}
	if a.GasPrice, err = parseBig("gasPrice", c.GasPrice); err != nil {
		return nil, err
	}
	return validateRaw(a)
}

func fromCallMsg(m *ethereum.CallMsg) (*Action, error) {
	a := &Action{From: m.From, To: m.To, Value: m.Value, Data: m.Data, GasPrice: m.GasPrice}
	if m.Gas != 0 {
		gas := m.Gas
		a.Gas = &gas
	}
	return validateRaw(a)
}

func validateRaw(a *Action) (*Action, error) {
	if a.From == (common.Address{}) {
		return nil, chain.NewError(chain.ErrInvalidActionShape, "ethereum action needs a from address")
	}
	if a.To == nil && len(a.Data) == 0 {
		return nil, chain.NewError(chain.ErrInvalidActionShape, "contract creation needs code")
	}
	if a.Value != nil && a.Value.Sign() < 0 {
		return nil, chain.NewError(chain.ErrInvalidActionShape, "negative value")
	}
	if a.Value != nil && a.Value.Sign() == 0 {
		a.Value = nil
	}
	if len(a.Data) == 0 {
		a.Data = nil
	}
	return a, nil
}

// ToCanonical leaves out every unset field.
func (ActionHelper) ToCanonical(a *Action) *CanonicalAction {
	c := &CanonicalAction{From: a.From.Hex()}
	if a.To != nil {
		c.To = a.To.Hex()
	}
	if a.Value != nil && a.Value.Sign() != 0 {
		c.Value = a.Value.String()
	}
	if len(a.Data) > 0 {
		c.Data = hexutil.Encode(a.Data)
	}
	if a.Gas != nil {
		c.Gas = new(big.Int).SetUint64(*a.Gas).String()
	}
	if a.GasPrice != nil {
		c.GasPrice = a.GasPrice.String()
	}
	return c
}

// ToSdkEncoded returns the go-ethereum call message for the action.
func (ActionHelper) ToSdkEncoded(a *Action) ethereum.CallMsg {
	msg := ethereum.CallMsg{From: a.From, To: a.To, Value: a.Value, Data: a.Data, GasPrice: a.GasPrice}
	if a.Gas != nil {
		msg.Gas = *a.Gas
	}
	return msg
}
