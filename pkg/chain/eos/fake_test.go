package eos

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

const testChainID = "aca376f206b8fc25a6ed44dbdc66547c36c6c33e3a119ffbeaef943642f0e906"

type fakeAPI struct {
	mu       sync.Mutex
	info     InfoResponse
	blocks   map[uint64]*BlockResponse
	accounts map[string]*AccountResponse
	pushed   []*PushTransactionRequest
	infoErr  error
	pushErr  error

	accountCalls int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		info: InfoResponse{
			ChainID:       testChainID,
			HeadBlockNum:  1000,
			HeadBlockTime: "2024-01-02T03:04:05.000",
			ServerVersion: "v3.2.0",
		},
		blocks:   map[uint64]*BlockResponse{},
		accounts: map[string]*AccountResponse{},
	}
}

func (f *fakeAPI) addAccount(name string, active, owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[name] = &AccountResponse{
		AccountName: name,
		Permissions: []AccountPermission{
			{PermName: "active", Parent: "owner", RequiredAuth: RequiredAuth{Threshold: 1, Keys: []KeyWeight{{Key: active, Weight: 1}}}},
			{PermName: "owner", RequiredAuth: RequiredAuth{Threshold: 1, Keys: []KeyWeight{{Key: owner, Weight: 1}}}},
		},
	}
}

func (f *fakeAPI) GetInfo(context.Context) (*InfoResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	info := f.info
	return &info, nil
}

func (f *fakeAPI) GetBlock(_ context.Context, num uint64) (*BlockResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.blocks[num]; ok {
		return b, nil
	}
	if num > f.info.HeadBlockNum {
		return nil, &APIError{StatusCode: 500, Message: "Internal Service Error", Detail: APIErrorDetail{
			Name: "unknown_block_exception",
			What: "Unknown block",
			Details: []APIErrorMessage{{Message: fmt.Sprintf("Could not find block: %d", num)}},
		}}
	}
	return &BlockResponse{BlockNum: num, RefBlockPrefix: uint32(num * 7)}, nil
}

func (f *fakeAPI) GetAccount(_ context.Context, name string) (*AccountResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountCalls++
	if acc, ok := f.accounts[name]; ok {
		return acc, nil
	}
	return nil, &APIError{StatusCode: 500, Message: "Internal Service Error", Detail: APIErrorDetail{
		Name:    "exception",
		What:    "unspecified",
		Details: []APIErrorMessage{{Message: fmt.Sprintf("unknown key (eosio::chain::name): (0 %s)", name)}},
	}}
}

func (f *fakeAPI) GetABI(_ context.Context, account string) (*ABI, error) {
	return nil, &APIError{StatusCode: 500, Message: fmt.Sprintf("no abi for %s", account)}
}

// PushTransaction includes the transaction in the block after head.
func (f *fakeAPI) PushTransaction(_ context.Context, req *PushTransactionRequest) (*PushTransactionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	f.pushed = append(f.pushed, req)
	packed, err := hex.DecodeString(req.PackedTrx)
	if err != nil {
		return nil, err
	}
	id := transactionID(packed)
	num := f.info.HeadBlockNum + 1
	trx, _ := json.Marshal(map[string]string{"id": id})
	f.blocks[num] = &BlockResponse{BlockNum: num, Transactions: []BlockTransaction{{Status: "executed", Trx: trx}}}
	res := &PushTransactionResponse{TransactionID: id}
	res.Processed.BlockNum = num
	return res, nil
}

type noSleep struct{}

func (noSleep) Sleep(context.Context, time.Duration) error { return nil }

func newTestState(t *testing.T, api *fakeAPI) *ChainState {
	t.Helper()
	state := NewChainState(Settings{Endpoint: "http://fake", API: api, Scheduler: noSleep{}})
	require.NoError(t, state.Connect(context.Background()))
	return state
}

type testKey struct {
	priv *PrivateKey
	pub  PublicKey
}

func newTestKey(t *testing.T) testKey {
	t.Helper()
	k, err := GeneratePrivateKey()
	require.NoError(t, err)
	return testKey{priv: k, pub: k.PublicKey()}
}

func transferAction(t *testing.T, from string) Action {
	t.Helper()
	data, err := tokenABI.EncodeAction("transfer", map[string]any{
		"from":     from,
		"to":       "bob",
		"quantity": "1.0000 EOS",
		"memo":     "lunch",
	})
	require.NoError(t, err)
	return Action{
		Account:       TokenAccount,
		Name:          "transfer",
		Authorization: []PermissionLevel{{Actor: from, Permission: "active"}},
		Data:          data,
	}
}

func requireKind(t *testing.T, err error, kind chain.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, chain.KindOf(err), err.Error())
}
