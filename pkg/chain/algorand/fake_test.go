package algorand

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/require"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

const testGenesisID = "testnet-v1.0"

var testGenesisHash = sha256.Sum256([]byte(testGenesisID))

// fakeClient is an in-memory algod. Every sent transaction lands in the next round.
type fakeClient struct {
	mu sync.Mutex

	lastRound  uint64
	feePerByte uint64
	flatFee    bool
	paramsErr  error
	blocks     map[uint64][]types.SignedTxn
	accounts   map[types.Address]models.Account
	sent       []types.SignedTxn
	sendErr    error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		lastRound: 100,
		blocks:    map[uint64][]types.SignedTxn{},
		accounts:  map[types.Address]models.Account{},
	}
}

func (f *fakeClient) Status(context.Context) (models.NodeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.NodeStatus{LastRound: f.lastRound, LastVersion: "future"}, nil
}

func (f *fakeClient) SuggestedParams(context.Context) (types.SuggestedParams, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paramsErr != nil {
		return types.SuggestedParams{}, f.paramsErr
	}
	return types.SuggestedParams{
		Fee:             types.MicroAlgos(f.feePerByte),
		GenesisID:       testGenesisID,
		GenesisHash:     testGenesisHash[:],
		FirstRoundValid: types.Round(f.lastRound),
		LastRoundValid:  types.Round(f.lastRound + 1000),
		FlatFee:         f.flatFee,
		MinFee:          1000,
	}, nil
}

// Block strips the genesis fields from each transaction the way algod stores them.
func (f *fakeClient) Block(_ context.Context, round uint64) (types.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if round > f.lastRound {
		return types.Block{}, fmt.Errorf("ledger does not have entry %d", round)
	}
	var b types.Block
	b.Round = types.Round(round)
	b.TimeStamp = 1_700_000_000 + int64(round)*4
	b.GenesisID = testGenesisID
	b.GenesisHash = testGenesisHash
	for _, stx := range f.blocks[round] {
		var stib types.SignedTxnInBlock
		stib.SignedTxn = stx
		stib.Txn.GenesisID = ""
		stib.Txn.GenesisHash = types.Digest{}
		stib.HasGenesisID = true
		b.Payset = append(b.Payset, stib)
	}
	return b, nil
}

func (f *fakeClient) SendRawTransaction(_ context.Context, raw []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	var stx types.SignedTxn
	if err := msgpack.Decode(raw, &stx); err != nil {
		return "", err
	}
	f.lastRound++
	f.blocks[f.lastRound] = append(f.blocks[f.lastRound], stx)
	f.sent = append(f.sent, stx)
	return crypto.GetTxID(stx.Txn), nil
}

func (f *fakeClient) AccountInformation(_ context.Context, address string) (models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	addr, err := types.DecodeAddress(address)
	if err != nil {
		return models.Account{}, err
	}
	acc := f.accounts[addr]
	acc.Address = address
	return acc, nil
}

func (f *fakeClient) sentTransactions() []types.SignedTxn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.SignedTxn(nil), f.sent...)
}

type noSleep struct{}

func (noSleep) Sleep(context.Context, time.Duration) error { return nil }

func newTestState(t *testing.T, client *fakeClient) *ChainState {
	t.Helper()
	state := NewChainState(Settings{Address: "http://fake", Client: client, Scheduler: noSleep{}})
	require.NoError(t, state.Connect(context.Background()))
	return state
}

type testKey struct {
	account crypto.Account
}

func newTestKey() testKey {
	return testKey{account: crypto.GenerateAccount()}
}

func (k testKey) addr() types.Address {
	return k.account.Address
}

func (k testKey) private() chain.PrivateKey {
	return EncodePrivateKey(k.account.PrivateKey)
}

var receiver = crypto.GenerateAccount().Address

func payment(from types.Address, amount uint64) Action {
	return Action{Type: types.PaymentTx, From: from, To: receiver, Amount: amount}
}

func requireKind(t *testing.T, err error, kind chain.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, chain.KindOf(err), "error: %v", err)
}
