package algorand

import (
	"context"
	"sync"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

const (
	// DefaultValidityWindow is also the largest window algod accepts.
	DefaultValidityWindow uint64 = 1000
	BlockFrequency               = 4500 * time.Millisecond
	minTxnFee             uint64 = 1000
)

var errorMapper = chain.NewErrorMapper(
	chain.Pattern(chain.ErrBlockDoesNotExist, `ledger does not have entry|failed to retrieve information from the ledger|round \d+ is not available`),
	chain.Pattern(chain.ErrDuplicateTransaction, `transaction already in ledger|already in the pool`),
	chain.Pattern(chain.ErrTxExpired, `txn dead|round \d+ outside of \d+--\d+`),
	chain.Pattern(chain.ErrInsufficientResources, `overspend|below min|fee too small|insufficient`),
	chain.Pattern(chain.ErrMissingAuthorization, `should have been authorized by`),
	chain.Pattern(chain.ErrInvalidSignature, `signature validation failed|multisig validation failed|signature didn't pass|invalid signature`),
)

// Client is the algod surface the package uses. NewAlgodClient adapts the
// SDK client to it.
type Client interface {
	Status(ctx context.Context) (models.NodeStatus, error)
	SuggestedParams(ctx context.Context) (types.SuggestedParams, error)
	Block(ctx context.Context, round uint64) (types.Block, error)
	SendRawTransaction(ctx context.Context, stx []byte) (string, error)
	AccountInformation(ctx context.Context, address string) (models.Account, error)
}

type algodClient struct {
	c *algod.Client
}

func NewAlgodClient(address, token string) (Client, error) {
	c, err := algod.MakeClient(address, token)
	if err != nil {
		return nil, err
	}
	return &algodClient{c: c}, nil
}

func (a *algodClient) Status(ctx context.Context) (models.NodeStatus, error) {
	return a.c.Status().Do(ctx)
}

func (a *algodClient) SuggestedParams(ctx context.Context) (types.SuggestedParams, error) {
	return a.c.SuggestedParams().Do(ctx)
}

func (a *algodClient) Block(ctx context.Context, round uint64) (types.Block, error) {
	return a.c.Block(round).Do(ctx)
}

func (a *algodClient) SendRawTransaction(ctx context.Context, stx []byte) (string, error) {
	return a.c.SendRawTransaction(stx).Do(ctx)
}

func (a *algodClient) AccountInformation(ctx context.Context, address string) (models.Account, error) {
	return a.c.AccountInformation(address).Do(ctx)
}

type Settings struct {
	Address string
	Token   string
	// GenesisID is checked against the node on connect when set.
	GenesisID string
	// Confirm polls once per block unless PollInterval is set.
	Confirm   chain.ConfirmOptions
	Scheduler chain.Scheduler
	// Client replaces the algod client, mostly for tests.
	Client Client
}

// ChainState owns the algod connection to one Algorand network.
type ChainState struct {
	settings Settings

	mu          sync.Mutex
	client      Client
	genesisID   string
	genesisHash types.Digest
	connected   bool

	confirmer *chain.Confirmer
}

func NewChainState(settings Settings) *ChainState {
	if settings.Confirm.PollInterval == 0 {
		settings.Confirm.PollInterval = BlockFrequency
	}
	settings.Confirm = settings.Confirm.WithDefaults()
	if settings.Scheduler == nil {
		settings.Scheduler = chain.TimerScheduler{}
	}
	cs := &ChainState{settings: settings}
	cs.confirmer = chain.NewConfirmer(cs, settings.Scheduler, settings.Confirm)
	return cs
}

// Connect creates the algod client on first use and reads the network's
// genesis. Calling it again reuses the existing client.
func (cs *ChainState) Connect(ctx context.Context) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.connected {
		return nil
	}
	if cs.client == nil {
		cs.client = cs.settings.Client
		if cs.client == nil {
			c, err := NewAlgodClient(cs.settings.Address, cs.settings.Token)
			if err != nil {
				return chain.WrapError(chain.ErrChainConnectFailed, err, "algod client for %s", cs.settings.Address)
			}
			cs.client = c
		}
	}
	params, err := cs.client.SuggestedParams(ctx)
	if err != nil {
		return chain.WrapError(chain.ErrChainConnectFailed, err, "connect to %s", cs.settings.Address)
	}
	if cs.settings.GenesisID != "" && cs.settings.GenesisID != params.GenesisID {
		return chain.NewError(chain.ErrChainConnectFailed, "node serves %s, expected %s", params.GenesisID, cs.settings.GenesisID)
	}
	if len(params.GenesisHash) != len(cs.genesisHash) {
		return chain.NewError(chain.ErrChainConnectFailed, "node returned a %d byte genesis hash", len(params.GenesisHash))
	}
	cs.genesisID = params.GenesisID
	copy(cs.genesisHash[:], params.GenesisHash)
	cs.connected = true
	log.Debug().Str("address", cs.settings.Address).Str("genesisId", params.GenesisID).Msg("connected to algod")
	return nil
}

func (cs *ChainState) IsConnected() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.connected
}

func (cs *ChainState) algod() (Client, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if !cs.connected {
		return nil, chain.NewError(chain.ErrNotConnected, "algorand chain is not connected")
	}
	return cs.client, nil
}

// RawClient exposes the algod client. Calls made through it bypass every
// transaction invariant.
func (cs *ChainState) RawClient() (Client, error) {
	return cs.algod()
}

func (cs *ChainState) GenesisID() string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.genesisID
}

func (cs *ChainState) Confirmer() *chain.Confirmer {
	return cs.confirmer
}

func (cs *ChainState) Status(ctx context.Context) (*models.NodeStatus, error) {
	c, err := cs.algod()
	if err != nil {
		return nil, err
	}
	st, err := c.Status(ctx)
	if err != nil {
		return nil, errorMapper.Map(err)
	}
	return &st, nil
}

func (cs *ChainState) SuggestedParams(ctx context.Context) (types.SuggestedParams, error) {
	c, err := cs.algod()
	if err != nil {
		return types.SuggestedParams{}, err
	}
	params, err := c.SuggestedParams(ctx)
	if err != nil {
		return types.SuggestedParams{}, errorMapper.Map(err)
	}
	return params, nil
}

func (cs *ChainState) block(ctx context.Context, round uint64) (*types.Block, error) {
	c, err := cs.algod()
	if err != nil {
		return nil, err
	}
	st, err := c.Status(ctx)
	if err != nil {
		return nil, errorMapper.Map(err)
	}
	if round > st.LastRound {
		return nil, chain.NewError(chain.ErrBlockDoesNotExist, "round %d is past the last round %d", round, st.LastRound)
	}
	b, err := c.Block(ctx, round)
	if err != nil {
		return nil, errorMapper.Map(err)
	}
	return &b, nil
}

// BlockTransactionIDs lets the chain state act as the confirmer's block reader.
// Blocks store transactions without their genesis fields, so they are put
// back before hashing.
func (cs *ChainState) BlockTransactionIDs(ctx context.Context, round uint64) ([]string, error) {
	b, err := cs.block(ctx, round)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(b.Payset))
	for _, stib := range b.Payset {
		txn := stib.SignedTxn.Txn
		if stib.HasGenesisID {
			txn.GenesisID = b.GenesisID
		}
		if txn.GenesisHash == (types.Digest{}) {
			txn.GenesisHash = b.GenesisHash
		}
		ids = append(ids, crypto.GetTxID(txn))
	}
	return ids, nil
}

func (cs *ChainState) BlockTime(ctx context.Context, round uint64) (time.Time, error) {
	b, err := cs.block(ctx, round)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(b.TimeStamp, 0).UTC(), nil
}

func (cs *ChainState) Account(ctx context.Context, addr types.Address) (*models.Account, error) {
	c, err := cs.algod()
	if err != nil {
		return nil, err
	}
	info, err := c.AccountInformation(ctx, addr.String())
	if err != nil {
		return nil, errorMapper.Map(err)
	}
	return &info, nil
}

// SendTransaction broadcasts a signed transaction. An expired transaction is
// refused before it reaches the node.
func (cs *ChainState) SendTransaction(ctx context.Context, stx []byte, lastValid uint64, level chain.ConfirmLevel) (*chain.SendResult, error) {
	c, err := cs.algod()
	if err != nil {
		return nil, err
	}
	st, err := c.Status(ctx)
	if err != nil {
		return nil, errorMapper.Map(err)
	}
	if st.LastRound >= lastValid {
		return nil, chain.NewError(chain.ErrTxExpired, "transaction was valid until round %d, chain is at %d", lastValid, st.LastRound)
	}
	id, err := c.SendRawTransaction(ctx, stx)
	if err != nil {
		return nil, errorMapper.Map(err)
	}
	log.Debug().Str("txId", id).Msg("algorand transaction sent")

	res := &chain.SendResult{TransactionID: id}
	if level == chain.ConfirmNone {
		return res, nil
	}
	round, err := cs.confirmer.AwaitTransaction(ctx, id, st.LastRound+1)
	if err != nil {
		return res, err
	}
	res.BlockNumber = round
	res.Confirmed = true
	return res, nil
}
