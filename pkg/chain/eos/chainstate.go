package eos

import (
	"context"
	"encoding/hex"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

var errorMapper = chain.NewErrorMapper(
	chain.Pattern(chain.ErrBlockDoesNotExist, `unknown_block_exception|Could not find block`),
	chain.Pattern(chain.ErrAccountAlreadyExists, `account_name_exists_exception|name is already taken`),
	chain.Pattern(chain.ErrAccountNotFound, `unknown key|Unknown account|account_query_exception|does not exist`),
	chain.Pattern(chain.ErrTxExpired, `expired_tx_exception|expired transaction`),
	chain.Pattern(chain.ErrDuplicateTransaction, `tx_duplicate|[Dd]uplicate transaction`),
	chain.Pattern(chain.ErrMissingAuthorization, `missing_auth_exception|unsatisfied_authorization|does not have signatures for it`),
	chain.Pattern(chain.ErrInsufficientResources, `ram_usage_exceeded|tx_cpu_usage_exceeded|tx_net_usage_exceeded|leeway_deadline_exception|insufficient`),
	chain.Pattern(chain.ErrInvalidSignature, `invalid signature|unlinkable|signature`),
)

type Settings struct {
	Endpoint string
	// ChainID is checked against the node on connect when set.
	ChainID    string
	Confirm    chain.ConfirmOptions
	Scheduler  chain.Scheduler
	HTTPClient *http.Client
	// API replaces the HTTP client, mostly for tests.
	API API
}

// ChainState owns the connection to one EOS network.
type ChainState struct {
	settings Settings

	mu        sync.Mutex
	api       API
	info      *InfoResponse
	connected bool

	abis      *chain.Cache[string, *ABI]
	keys      *chain.Cache[string, PublicKey]
	confirmer *chain.Confirmer
}

func NewChainState(settings Settings) *ChainState {
	settings.Confirm = settings.Confirm.WithDefaults()
	if settings.Scheduler == nil {
		settings.Scheduler = chain.TimerScheduler{}
	}
	cs := &ChainState{
		settings: settings,
		abis:     chain.NewCache[string, *ABI](chain.DefaultCacheSize, chain.DefaultCacheTTL),
		keys:     chain.NewCache[string, PublicKey](chain.DefaultCacheSize, chain.DefaultCacheTTL),
	}
	cs.confirmer = chain.NewConfirmer(cs, settings.Scheduler, settings.Confirm)
	return cs
}

// Connect creates the client on first use and loads chain info. Calling it
// again reuses the existing client.
func (cs *ChainState) Connect(ctx context.Context) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.connected {
		return nil
	}
	if cs.api == nil {
		cs.api = cs.settings.API
		if cs.api == nil {
			cs.api = NewHTTPAPI(cs.settings.Endpoint, cs.settings.HTTPClient)
		}
	}
	info, err := cs.api.GetInfo(ctx)
	if err != nil {
		return chain.WrapError(chain.ErrChainConnectFailed, err, "connect to %s", cs.settings.Endpoint)
	}
	if cs.settings.ChainID != "" && cs.settings.ChainID != info.ChainID {
		return chain.NewError(chain.ErrChainConnectFailed, "node serves chain %s, expected %s", info.ChainID, cs.settings.ChainID)
	}
	cs.info = info
	cs.connected = true
	log.Debug().Str("endpoint", cs.settings.Endpoint).Str("chainId", info.ChainID).Msg("connected to eos node")
	return nil
}

func (cs *ChainState) IsConnected() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.connected
}

func (cs *ChainState) client() (API, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if !cs.connected {
		return nil, chain.NewError(chain.ErrNotConnected, "eos chain is not connected")
	}
	return cs.api, nil
}

// RawAPI exposes the underlying client. Calls made through it bypass every
// transaction invariant and are not used by this package.
func (cs *ChainState) RawAPI() (API, error) {
	return cs.client()
}

func (cs *ChainState) ChainID() string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.info != nil {
		return cs.info.ChainID
	}
	return cs.settings.ChainID
}

func (cs *ChainState) Confirmer() *chain.Confirmer {
	return cs.confirmer
}

// Info fetches fresh chain info.
func (cs *ChainState) Info(ctx context.Context) (*InfoResponse, error) {
	api, err := cs.client()
	if err != nil {
		return nil, err
	}
	info, err := api.GetInfo(ctx)
	if err != nil {
		return nil, errorMapper.Map(err)
	}
	cs.mu.Lock()
	cs.info = info
	cs.mu.Unlock()
	return info, nil
}

func (cs *ChainState) Block(ctx context.Context, num uint64) (*BlockResponse, error) {
	api, err := cs.client()
	if err != nil {
		return nil, err
	}
	block, err := api.GetBlock(ctx, num)
	if err != nil {
		return nil, errorMapper.Map(err)
	}
	return block, nil
}

// BlockTransactionIDs lets the chain state act as the confirmer's block reader.
func (cs *ChainState) BlockTransactionIDs(ctx context.Context, num uint64) ([]string, error) {
	block, err := cs.Block(ctx, num)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(block.Transactions))
	for _, trx := range block.Transactions {
		ids = append(ids, trx.ID())
	}
	return ids, nil
}

func (cs *ChainState) Account(ctx context.Context, name string) (*AccountResponse, error) {
	api, err := cs.client()
	if err != nil {
		return nil, err
	}
	acc, err := api.GetAccount(ctx, name)
	if err != nil {
		return nil, errorMapper.Map(err)
	}
	return acc, nil
}

// ABI returns the contract ABI, preferring the built-in ones.
func (cs *ChainState) ABI(ctx context.Context, account string) (*ABI, error) {
	if abi, ok := builtinABI(account); ok {
		return abi, nil
	}
	if abi, ok := cs.abis.Get(account); ok {
		return abi, nil
	}
	api, err := cs.client()
	if err != nil {
		return nil, err
	}
	abi, err := api.GetABI(ctx, account)
	if err != nil {
		return nil, errorMapper.Map(err)
	}
	cs.abis.Set(account, abi)
	return abi, nil
}

// PermissionKey resolves account@permission to the key that signs for it.
// Only the first key of the permission is used: every key counts with weight 1.
func (cs *ChainState) PermissionKey(ctx context.Context, account, permission string) (PublicKey, error) {
	cacheKey := account + "@" + permission
	if key, ok := cs.keys.Get(cacheKey); ok {
		return key, nil
	}
	acc, err := cs.Account(ctx, account)
	if err != nil {
		return PublicKey{}, err
	}
	perm, ok := acc.Permission(permission)
	if !ok || len(perm.RequiredAuth.Keys) == 0 {
		return PublicKey{}, chain.NewError(chain.ErrMissingAuthorization, "%s has no key for permission %s", account, permission)
	}
	key, err := ParsePublicKey(perm.RequiredAuth.Keys[0].Key)
	if err != nil {
		return PublicKey{}, errors.Wrapf(err, "permission %s@%s", account, permission)
	}
	cs.keys.Set(cacheKey, key)
	return key, nil
}

// SendTransaction broadcasts a packed transaction and, unless level is
// ConfirmNone, waits for it to show up in a block.
func (cs *ChainState) SendTransaction(ctx context.Context, packed []byte, sigs []chain.Signature, level chain.ConfirmLevel) (*chain.SendResult, error) {
	api, err := cs.client()
	if err != nil {
		return nil, err
	}
	req := &PushTransactionRequest{
		Signatures: make([]string, 0, len(sigs)),
		PackedTrx:  hex.EncodeToString(packed),
	}
	for _, sig := range sigs {
		req.Signatures = append(req.Signatures, string(sig))
	}
	res, err := api.PushTransaction(ctx, req)
	if err != nil {
		return nil, errorMapper.Map(err)
	}
	log.Debug().Str("txId", res.TransactionID).Uint64("block", res.Processed.BlockNum).Msg("eos transaction pushed")

	result := &chain.SendResult{TransactionID: res.TransactionID}
	if level == chain.ConfirmNone {
		return result, nil
	}
	start := res.Processed.BlockNum
	if start == 0 {
		info, err := cs.Info(ctx)
		if err != nil {
			return nil, err
		}
		start = info.HeadBlockNum
	}
	block, err := cs.confirmer.AwaitTransaction(ctx, res.TransactionID, start)
	if err != nil {
		return nil, err
	}
	result.BlockNumber = block
	result.Confirmed = true
	return result, nil
}
