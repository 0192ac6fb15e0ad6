package ethereum

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

var errorMapper = chain.NewErrorMapper(
	chain.Pattern(chain.ErrBlockDoesNotExist, `^not found$|block not found|header not found`),
	chain.Pattern(chain.ErrDuplicateTransaction, `already known|known transaction|nonce too low`),
	chain.Pattern(chain.ErrInsufficientResources, `insufficient funds|intrinsic gas too low|exceeds block gas limit|underpriced`),
	chain.Pattern(chain.ErrInvalidSignature, `invalid sender|invalid signature|invalid chain id`),
	chain.Pattern(chain.ErrMissingAuthorization, `GS0(2[0-9]|1[0-9])`),
)

// Client is the subset of ethclient.Client the package uses.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

var _ Client = (*ethclient.Client)(nil)

type Settings struct {
	Endpoint string
	// ChainID is checked against the node on connect when set.
	ChainID   *big.Int
	Confirm   chain.ConfirmOptions
	Scheduler chain.Scheduler
	// Safe overrides the Gnosis Safe contracts used for multisig accounts.
	Safe *SafeDeployment
	// Client replaces the RPC client, mostly for tests.
	Client Client
}

// ChainState owns the RPC connection to one Ethereum network.
type ChainState struct {
	settings Settings

	mu        sync.Mutex
	client    Client
	chainID   *big.Int
	connected bool

	proxyCode *chain.Cache[common.Address, []byte]
	confirmer *chain.Confirmer
}

func NewChainState(settings Settings) *ChainState {
	settings.Confirm = settings.Confirm.WithDefaults()
	if settings.Scheduler == nil {
		settings.Scheduler = chain.TimerScheduler{}
	}
	if settings.Safe == nil {
		d := DefaultSafeDeployment()
		settings.Safe = &d
	}
	cs := &ChainState{
		settings:  settings,
		proxyCode: chain.NewCache[common.Address, []byte](chain.DefaultCacheSize, chain.DefaultCacheTTL),
	}
	cs.confirmer = chain.NewConfirmer(cs, settings.Scheduler, settings.Confirm)
	return cs
}

// Connect dials the node on first use and reads its chain id. Calling it
// again reuses the existing client.
func (cs *ChainState) Connect(ctx context.Context) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.connected {
		return nil
	}
	if cs.client == nil {
		cs.client = cs.settings.Client
		if cs.client == nil {
			c, err := ethclient.DialContext(ctx, cs.settings.Endpoint)
			if err != nil {
				return chain.WrapError(chain.ErrChainConnectFailed, err, "dial %s", cs.settings.Endpoint)
			}
			cs.client = c
		}
	}
	id, err := cs.client.ChainID(ctx)
	if err != nil {
		return chain.WrapError(chain.ErrChainConnectFailed, err, "connect to %s", cs.settings.Endpoint)
	}
	if cs.settings.ChainID != nil && cs.settings.ChainID.Cmp(id) != 0 {
		return chain.NewError(chain.ErrChainConnectFailed, "node serves chain %s, expected %s", id, cs.settings.ChainID)
	}
	cs.chainID = id
	cs.connected = true
	log.Debug().Str("endpoint", cs.settings.Endpoint).Str("chainId", id.String()).Msg("connected to ethereum node")
	return nil
}

func (cs *ChainState) IsConnected() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.connected
}

func (cs *ChainState) rpc() (Client, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if !cs.connected {
		return nil, chain.NewError(chain.ErrNotConnected, "ethereum chain is not connected")
	}
	return cs.client, nil
}

// RawClient exposes the underlying client. Calls made through it bypass every
// transaction invariant.
func (cs *ChainState) RawClient() (Client, error) {
	return cs.rpc()
}

func (cs *ChainState) ChainID() *big.Int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.chainID != nil {
		return new(big.Int).Set(cs.chainID)
	}
	if cs.settings.ChainID != nil {
		return new(big.Int).Set(cs.settings.ChainID)
	}
	return nil
}

func (cs *ChainState) SafeDeployment() SafeDeployment {
	return *cs.settings.Safe
}

func (cs *ChainState) Confirmer() *chain.Confirmer {
	return cs.confirmer
}

func (cs *ChainState) Head(ctx context.Context) (*types.Header, error) {
	c, err := cs.rpc()
	if err != nil {
		return nil, err
	}
	h, err := c.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, errorMapper.Map(err)
	}
	return h, nil
}

// BlockTransactionIDs lets the chain state act as the confirmer's block reader.
func (cs *ChainState) BlockTransactionIDs(ctx context.Context, num uint64) ([]string, error) {
	c, err := cs.rpc()
	if err != nil {
		return nil, err
	}
	block, err := c.BlockByNumber(ctx, new(big.Int).SetUint64(num))
	if errors.Is(err, ethereum.NotFound) {
		return nil, chain.WrapError(chain.ErrBlockDoesNotExist, err, "block %d", num)
	}
	if err != nil {
		return nil, errorMapper.Map(err)
	}
	ids := make([]string, 0, len(block.Transactions()))
	for _, tx := range block.Transactions() {
		ids = append(ids, tx.Hash().Hex())
	}
	return ids, nil
}

func (cs *ChainState) Nonce(ctx context.Context, addr common.Address) (uint64, error) {
	c, err := cs.rpc()
	if err != nil {
		return 0, err
	}
	n, err := c.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, errorMapper.Map(err)
	}
	return n, nil
}

func (cs *ChainState) GasPrice(ctx context.Context) (*big.Int, error) {
	c, err := cs.rpc()
	if err != nil {
		return nil, err
	}
	p, err := c.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errorMapper.Map(err)
	}
	return p, nil
}

func (cs *ChainState) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	c, err := cs.rpc()
	if err != nil {
		return 0, err
	}
	g, err := c.EstimateGas(ctx, msg)
	if err != nil {
		return 0, errorMapper.Map(err)
	}
	return g, nil
}

func (cs *ChainState) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	c, err := cs.rpc()
	if err != nil {
		return nil, err
	}
	code, err := c.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, errorMapper.Map(err)
	}
	return code, nil
}

func (cs *ChainState) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	c, err := cs.rpc()
	if err != nil {
		return nil, err
	}
	b, err := c.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, errorMapper.Map(err)
	}
	return b, nil
}

// call runs a read only contract method and unpacks its outputs.
func (cs *ChainState) call(ctx context.Context, contract common.Address, abiDef abi.ABI, method string, args ...any) ([]any, error) {
	c, err := cs.rpc()
	if err != nil {
		return nil, err
	}
	input, err := abiDef.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}
	out, err := c.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return nil, errorMapper.Map(err)
	}
	res, err := abiDef.Unpack(method, out)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", method)
	}
	return res, nil
}

// ProxyCreationCode reads the Safe proxy bytecode from the factory. It never
// changes for a factory, so it is cached.
func (cs *ChainState) ProxyCreationCode(ctx context.Context, factory common.Address) ([]byte, error) {
	if code, ok := cs.proxyCode.Get(factory); ok {
		return code, nil
	}
	res, err := cs.call(ctx, factory, proxyFactoryABI, "proxyCreationCode")
	if err != nil {
		return nil, err
	}
	code, ok := res[0].([]byte)
	if !ok || len(code) == 0 {
		return nil, chain.NewError(chain.ErrInvalidOptions, "factory %s returned no proxy creation code", factory.Hex())
	}
	cs.proxyCode.Set(factory, code)
	return code, nil
}

func (cs *ChainState) SafeNonce(ctx context.Context, safe common.Address) (*big.Int, error) {
	res, err := cs.call(ctx, safe, safeABI, "nonce")
	if err != nil {
		return nil, err
	}
	return res[0].(*big.Int), nil
}

// SafeOwners reads the owners and threshold of a deployed Safe.
func (cs *ChainState) SafeOwners(ctx context.Context, safe common.Address) ([]common.Address, int, error) {
	owners, err := cs.call(ctx, safe, safeABI, "getOwners")
	if err != nil {
		return nil, 0, err
	}
	threshold, err := cs.call(ctx, safe, safeABI, "getThreshold")
	if err != nil {
		return nil, 0, err
	}
	return owners[0].([]common.Address), int(threshold[0].(*big.Int).Int64()), nil
}

// IsHashApproved reports whether owner called approveHash(hash) on the Safe.
func (cs *ChainState) IsHashApproved(ctx context.Context, safe, owner common.Address, hash common.Hash) (bool, error) {
	res, err := cs.call(ctx, safe, safeABI, "approvedHashes", owner, [32]byte(hash))
	if err != nil {
		return false, err
	}
	return res[0].(*big.Int).Sign() != 0, nil
}

// SendTransaction broadcasts a signed transaction and, when asked, waits for
// a block that includes it.
func (cs *ChainState) SendTransaction(ctx context.Context, tx *types.Transaction, level chain.ConfirmLevel) (*chain.SendResult, error) {
	c, err := cs.rpc()
	if err != nil {
		return nil, err
	}
	var start uint64
	if level == chain.ConfirmAfterFirstBlock {
		head, err := cs.Head(ctx)
		if err != nil {
			return nil, err
		}
		start = head.Number.Uint64() + 1
	}
	if err := c.SendTransaction(ctx, tx); err != nil {
		return nil, errorMapper.Map(err)
	}
	id := tx.Hash().Hex()
	log.Debug().Str("txId", id).Msg("ethereum transaction sent")

	res := &chain.SendResult{TransactionID: id}
	if level == chain.ConfirmNone {
		return res, nil
	}
	block, err := cs.confirmer.AwaitTransaction(ctx, id, start)
	if err != nil {
		return res, err
	}
	res.BlockNumber = block
	res.Confirmed = true
	return res, nil
}
