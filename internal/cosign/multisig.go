package cosign

import (
	"encoding/json"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
	"github.com/kollektive-hackathon/multichain/pkg/chain/algorand"
	"github.com/kollektive-hackathon/multichain/pkg/chain/eos"
	"github.com/kollektive-hackathon/multichain/pkg/chain/ethereum"
)

func decodeMultisigOptions(t chain.ChainType, data []byte) (chain.MultisigOptions, error) {
	var (
		opts chain.MultisigOptions
		err  error
	)
	switch t {
	case chain.EOS:
		var o eos.MultisigOptions
		err = json.Unmarshal(data, &o)
		opts = o
	case chain.Ethereum:
		var o ethereum.MultisigOptions
		err = json.Unmarshal(data, &o)
		opts = o
	case chain.Algorand:
		var o algorand.MultisigOptions
		err = json.Unmarshal(data, &o)
		opts = o
	default:
		return nil, chain.NewError(chain.ErrInvalidOptions, "unknown chain type %q", t)
	}
	if err != nil {
		return nil, chain.WrapError(chain.ErrInvalidOptions, err, "decode %s multisig options", t)
	}
	return opts, nil
}

func multisigOf(tx chain.Transaction) chain.MultisigPlugin {
	switch t := tx.(type) {
	case *eos.Transaction:
		if ms := t.Multisig(); ms != nil {
			return ms
		}
	case *ethereum.Transaction:
		if ms := t.Multisig(); ms != nil {
			return ms
		}
	case *algorand.Transaction:
		if ms := t.Multisig(); ms != nil {
			return ms
		}
	}
	return nil
}
