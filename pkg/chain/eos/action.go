package eos

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

type PermissionLevel struct {
	Actor      string `json:"actor"`
	Permission string `json:"permission"`
}

// Action is the raw form: data is ABI serialized.
type Action struct {
	Account       string            `json:"account"`
	Name          string            `json:"name"`
	Authorization []PermissionLevel `json:"authorization"`
	Data          []byte            `json:"data"`
}

func (Action) ChainType() chain.ChainType { return chain.EOS }

// CanonicalAction is the human readable form with decoded data.
type CanonicalAction struct {
	Account       string            `json:"account"`
	Name          string            `json:"name"`
	Authorization []PermissionLevel `json:"authorization"`
	Data          map[string]any    `json:"data,omitempty"`
}

func (CanonicalAction) ChainType() chain.ChainType { return chain.EOS }

// SdkAction is the form the nodeos JSON API uses: data as a hex string.
type SdkAction struct {
	Account       string            `json:"account"`
	Name          string            `json:"name"`
	Authorization []PermissionLevel `json:"authorization"`
	Data          string            `json:"data"`
}

func (SdkAction) ChainType() chain.ChainType { return chain.EOS }

// ABIProvider resolves the ABI of a contract account.
type ABIProvider interface {
	ABI(ctx context.Context, account string) (*ABI, error)
}

// ActionHelper converts between the raw, canonical and SDK forms of an action.
type ActionHelper struct {
	abis ABIProvider
}

func NewActionHelper(abis ABIProvider) *ActionHelper {
	return &ActionHelper{abis: abis}
}

// FromInput accepts any supported action shape, including generic JSON maps,
// and returns the raw action.
func (h *ActionHelper) FromInput(ctx context.Context, input any) (*Action, error) {
	switch a := input.(type) {
	case Action:
		return validateRaw(&a)
	case *Action:
		cp := *a
		return validateRaw(&cp)
	case CanonicalAction:
		return h.fromCanonical(ctx, &a)
	case *CanonicalAction:
		return h.fromCanonical(ctx, a)
	case SdkAction:
		return fromSdk(&a)
	case *SdkAction:
		return fromSdk(a)
	case json.RawMessage:
		return h.fromJSON(ctx, a)
	case []byte:
		return h.fromJSON(ctx, a)
	case map[string]any:
		return h.fromMap(ctx, a)
	}
	return nil, chain.NewError(chain.ErrInvalidActionShape, "unsupported eos action type %T", input)
}

func (h *ActionHelper) fromJSON(ctx context.Context, data []byte) (*Action, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, chain.WrapError(chain.ErrInvalidActionShape, err, "eos action is not a json object")
	}
	return h.fromMap(ctx, m)
}

// fromMap sniffs the shape of a decoded JSON object by its data field: an
// object is canonical, a string is hex encoded and a byte slice is raw.
func (h *ActionHelper) fromMap(ctx context.Context, m map[string]any) (*Action, error) {
	account, _ := m["account"].(string)
	name, _ := m["name"].(string)
	if account == "" || name == "" {
		return nil, chain.NewError(chain.ErrInvalidActionShape, "eos action needs account and name")
	}
	auth, err := authorizationFromAny(m["authorization"])
	if err != nil {
		return nil, err
	}
	switch data := m["data"].(type) {
	case map[string]any:
		return h.fromCanonical(ctx, &CanonicalAction{Account: account, Name: name, Authorization: auth, Data: data})
	case string:
		return fromSdk(&SdkAction{Account: account, Name: name, Authorization: auth, Data: data})
	case []byte:
		return validateRaw(&Action{Account: account, Name: name, Authorization: auth, Data: data})
	case nil:
		if hexData, ok := m["hex_data"].(string); ok {
			return fromSdk(&SdkAction{Account: account, Name: name, Authorization: auth, Data: hexData})
		}
		return h.fromCanonical(ctx, &CanonicalAction{Account: account, Name: name, Authorization: auth})
	}
	return nil, chain.NewError(chain.ErrInvalidActionShape, "unsupported data of eos action %s::%s", account, name)
}

func authorizationFromAny(v any) ([]PermissionLevel, error) {
	if v == nil {
		return nil, nil
	}
	if levels, ok := v.([]PermissionLevel); ok {
		return levels, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, chain.NewError(chain.ErrInvalidActionShape, "authorization must be a list")
	}
	out := make([]PermissionLevel, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, chain.NewError(chain.ErrInvalidActionShape, "authorization entries must be objects")
		}
		actor, _ := m["actor"].(string)
		perm, _ := m["permission"].(string)
		out = append(out, PermissionLevel{Actor: actor, Permission: perm})
	}
	return out, nil
}

func validateRaw(a *Action) (*Action, error) {
	if !IsValidName(a.Account) || !IsValidName(a.Name) {
		return nil, chain.NewError(chain.ErrInvalidActionShape, "invalid eos action %s::%s", a.Account, a.Name)
	}
	for _, p := range a.Authorization {
		if !IsValidName(p.Actor) || !IsValidName(p.Permission) {
			return nil, chain.NewError(chain.ErrInvalidActionShape, "invalid authorization %s@%s", p.Actor, p.Permission)
		}
	}
	if a.Data == nil {
		a.Data = []byte{}
	}
	return a, nil
}

func fromSdk(a *SdkAction) (*Action, error) {
	data, err := hex.DecodeString(a.Data)
	if err != nil {
		return nil, chain.WrapError(chain.ErrInvalidActionShape, err, "data of %s::%s is not hex", a.Account, a.Name)
	}
	return validateRaw(&Action{Account: a.Account, Name: a.Name, Authorization: a.Authorization, Data: data})
}

func (h *ActionHelper) fromCanonical(ctx context.Context, a *CanonicalAction) (*Action, error) {
	abi, err := h.abis.ABI(ctx, a.Account)
	if err != nil {
		return nil, err
	}
	data := a.Data
	if data == nil {
		data = map[string]any{}
	}
	packed, err := abi.EncodeAction(a.Name, data)
	if err != nil {
		return nil, chain.WrapError(chain.ErrInvalidActionShape, err, "serialize %s::%s", a.Account, a.Name)
	}
	return validateRaw(&Action{Account: a.Account, Name: a.Name, Authorization: a.Authorization, Data: packed})
}

// ToCanonical decodes the action data with the contract ABI.
func (h *ActionHelper) ToCanonical(ctx context.Context, a *Action) (*CanonicalAction, error) {
	abi, err := h.abis.ABI(ctx, a.Account)
	if err != nil {
		return nil, err
	}
	data, err := abi.DecodeAction(a.Name, a.Data)
	if err != nil {
		return nil, chain.WrapError(chain.ErrInvalidActionShape, err, "deserialize %s::%s", a.Account, a.Name)
	}
	out := &CanonicalAction{Account: a.Account, Name: a.Name, Authorization: a.Authorization}
	if len(data) > 0 {
		out.Data = data
	}
	return out, nil
}

func (h *ActionHelper) ToSdkEncoded(a *Action) *SdkAction {
	return &SdkAction{
		Account:       a.Account,
		Name:          a.Name,
		Authorization: a.Authorization,
		Data:          hex.EncodeToString(a.Data),
	}
}

func (a *Action) authorizations() []chain.Authorization {
	out := make([]chain.Authorization, 0, len(a.Authorization))
	for _, p := range a.Authorization {
		out = append(out, chain.Authorization{Account: p.Actor, Permission: p.Permission})
	}
	return out
}

func (a *Action) String() string {
	return fmt.Sprintf("%s::%s", a.Account, a.Name)
}
