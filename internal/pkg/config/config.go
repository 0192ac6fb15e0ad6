// Package config reads the service settings from viper.
package config

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
	"github.com/kollektive-hackathon/multichain/pkg/chain/algorand"
	"github.com/kollektive-hackathon/multichain/pkg/chain/eos"
	"github.com/kollektive-hackathon/multichain/pkg/chain/ethereum"
	"github.com/kollektive-hackathon/multichain/pkg/multichain"
)

// Confirm reads the confirmation polling overrides. Unset keys keep the
// library defaults.
func Confirm() chain.ConfirmOptions {
	return chain.ConfirmOptions{
		PollInterval:         time.Duration(viper.GetInt64("CONFIRM_POLL_INTERVAL_MS")) * time.Millisecond,
		BlocksToCheck:        viper.GetInt("CONFIRM_BLOCKS_TO_CHECK"),
		MaxBlockReadAttempts: viper.GetInt("CONFIRM_MAX_BLOCK_READ_ATTEMPTS"),
	}
}

// Chains returns settings for every chain whose endpoint is configured.
func Chains() (multichain.Config, error) {
	var cfg multichain.Config
	confirm := Confirm()

	if endpoint := viper.GetString("EOS_ENDPOINT"); endpoint != "" {
		cfg.EOS = &eos.Settings{
			Endpoint: endpoint,
			ChainID:  viper.GetString("EOS_CHAIN_ID"),
			Confirm:  confirm,
		}
	}

	if endpoint := viper.GetString("ETHEREUM_ENDPOINT"); endpoint != "" {
		settings := &ethereum.Settings{Endpoint: endpoint, Confirm: confirm}
		if id := viper.GetString("ETHEREUM_CHAIN_ID"); id != "" {
			chainID, ok := new(big.Int).SetString(id, 10)
			if !ok {
				return cfg, errors.Errorf("ETHEREUM_CHAIN_ID %q is not a number", id)
			}
			settings.ChainID = chainID
		}
		if factory := viper.GetString("ETHEREUM_SAFE_FACTORY"); factory != "" {
			safe, err := safeDeployment(factory)
			if err != nil {
				return cfg, err
			}
			settings.Safe = safe
		}
		cfg.Ethereum = settings
	}

	if address := viper.GetString("ALGOD_ADDRESS"); address != "" {
		algodConfirm := confirm
		// algod blocks are slower than the shared poll interval
		algodConfirm.PollInterval = time.Duration(viper.GetInt64("ALGOD_POLL_INTERVAL_MS")) * time.Millisecond
		cfg.Algorand = &algorand.Settings{
			Address:   address,
			Token:     viper.GetString("ALGOD_TOKEN"),
			GenesisID: viper.GetString("ALGOD_GENESIS_ID"),
			Confirm:   algodConfirm,
		}
	}

	if len(cfg.Configured()) == 0 {
		return cfg, errors.New("no chain endpoint configured")
	}
	return cfg, nil
}

func safeDeployment(factory string) (*ethereum.SafeDeployment, error) {
	keys := map[string]string{
		"ETHEREUM_SAFE_FACTORY":          factory,
		"ETHEREUM_SAFE_SINGLETON":        viper.GetString("ETHEREUM_SAFE_SINGLETON"),
		"ETHEREUM_SAFE_FALLBACK_HANDLER": viper.GetString("ETHEREUM_SAFE_FALLBACK_HANDLER"),
	}
	for key, value := range keys {
		if !common.IsHexAddress(value) {
			return nil, errors.Errorf("%s %q is not an address", key, value)
		}
	}
	return &ethereum.SafeDeployment{
		Factory:         common.HexToAddress(factory),
		Singleton:       common.HexToAddress(keys["ETHEREUM_SAFE_SINGLETON"]),
		FallbackHandler: common.HexToAddress(keys["ETHEREUM_SAFE_FALLBACK_HANDLER"]),
	}, nil
}
