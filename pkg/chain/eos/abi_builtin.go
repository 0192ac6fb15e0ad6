package eos

const (
	SystemAccount = "eosio"
	TokenAccount  = "eosio.token"
)

func fields(pairs ...string) []ABIField {
	out := make([]ABIField, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, ABIField{Name: pairs[i], Type: pairs[i+1]})
	}
	return out
}

var systemABI = &ABI{
	Version: "eosio::abi/1.1",
	Structs: []ABIStruct{
		{Name: "permission_level", Fields: fields("actor", "name", "permission", "name")},
		{Name: "key_weight", Fields: fields("key", "public_key", "weight", "uint16")},
		{Name: "permission_level_weight", Fields: fields("permission", "permission_level", "weight", "uint16")},
		{Name: "wait_weight", Fields: fields("wait_sec", "uint32", "weight", "uint16")},
		{Name: "authority", Fields: fields(
			"threshold", "uint32",
			"keys", "key_weight[]",
			"accounts", "permission_level_weight[]",
			"waits", "wait_weight[]",
		)},
		{Name: "newaccount", Fields: fields("creator", "name", "name", "name", "owner", "authority", "active", "authority")},
		{Name: "updateauth", Fields: fields("account", "name", "permission", "name", "parent", "name", "auth", "authority")},
		{Name: "buyrambytes", Fields: fields("payer", "name", "receiver", "name", "bytes", "uint32")},
		{Name: "delegatebw", Fields: fields(
			"from", "name",
			"receiver", "name",
			"stake_net_quantity", "asset",
			"stake_cpu_quantity", "asset",
			"transfer", "bool",
		)},
	},
	Actions: []ABIAction{
		{Name: "newaccount", Type: "newaccount"},
		{Name: "updateauth", Type: "updateauth"},
		{Name: "buyrambytes", Type: "buyrambytes"},
		{Name: "delegatebw", Type: "delegatebw"},
	},
}

var tokenABI = &ABI{
	Version: "eosio::abi/1.1",
	Structs: []ABIStruct{
		{Name: "transfer", Fields: fields("from", "name", "to", "name", "quantity", "asset", "memo", "string")},
	},
	Actions: []ABIAction{
		{Name: "transfer", Type: "transfer"},
	},
}

// builtinABI returns the ABI compiled into this package for well known
// contracts. Custom contracts are fetched from the chain.
func builtinABI(account string) (*ABI, bool) {
	switch account {
	case SystemAccount:
		return systemABI, true
	case TokenAccount:
		return tokenABI, true
	}
	return nil, false
}

// Authority is the canonical shape of an eosio authority.
func Authority(threshold uint32, keys ...string) map[string]any {
	kw := make([]any, 0, len(keys))
	for _, k := range keys {
		kw = append(kw, map[string]any{"key": k, "weight": uint64(1)})
	}
	return map[string]any{
		"threshold": uint64(threshold),
		"keys":      kw,
		"accounts":  []any{},
		"waits":     []any{},
	}
}
