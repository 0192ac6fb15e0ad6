// Package multichain builds connected chain.Chain values from endpoint settings.
package multichain

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
	"github.com/kollektive-hackathon/multichain/pkg/chain/algorand"
	"github.com/kollektive-hackathon/multichain/pkg/chain/eos"
	"github.com/kollektive-hackathon/multichain/pkg/chain/ethereum"
)

// Config has one entry per network the process talks to. A nil entry means
// the chain is not configured.
type Config struct {
	EOS      *eos.Settings
	Ethereum *ethereum.Settings
	Algorand *algorand.Settings
}

func (c Config) Configured() []chain.ChainType {
	var out []chain.ChainType
	if c.EOS != nil {
		out = append(out, chain.EOS)
	}
	if c.Ethereum != nil {
		out = append(out, chain.Ethereum)
	}
	if c.Algorand != nil {
		out = append(out, chain.Algorand)
	}
	return out
}

// New builds the chain without connecting it.
func New(t chain.ChainType, cfg Config) (chain.Chain, error) {
	switch t {
	case chain.EOS:
		if cfg.EOS != nil {
			return eos.New(*cfg.EOS), nil
		}
	case chain.Ethereum:
		if cfg.Ethereum != nil {
			return ethereum.New(*cfg.Ethereum), nil
		}
	case chain.Algorand:
		if cfg.Algorand != nil {
			return algorand.New(*cfg.Algorand), nil
		}
	default:
		return nil, chain.NewError(chain.ErrInvalidOptions, "unknown chain type %q", t)
	}
	return nil, chain.NewError(chain.ErrInvalidOptions, "chain %s is not configured", t)
}

func Connect(ctx context.Context, t chain.ChainType, cfg Config) (chain.Chain, error) {
	c, err := New(t, cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Registry connects each configured chain on first use and hands out the
// same instance afterwards. A failed connect is retried on the next Get.
type Registry struct {
	cfg Config

	mu     sync.Mutex
	chains map[chain.ChainType]chain.Chain
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, chains: map[chain.ChainType]chain.Chain{}}
}

func (r *Registry) Config() Config {
	return r.cfg
}

func (r *Registry) Get(ctx context.Context, t chain.ChainType) (chain.Chain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.chains[t]; ok {
		return c, nil
	}
	c, err := Connect(ctx, t, r.cfg)
	if err != nil {
		log.Warn().Err(err).Str("chain", string(t)).Msg("chain connect failed")
		return nil, err
	}
	r.chains[t] = c
	return c, nil
}
