package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

var testChainID = big.NewInt(1337)

// fakeClient is an in-memory node. Every sent transaction lands in the next block.
type fakeClient struct {
	mu sync.Mutex

	chainID   *big.Int
	chainErr  error
	head      uint64
	blocks    map[uint64][]*types.Transaction
	nonces    map[common.Address]uint64
	balances  map[common.Address]*big.Int
	code      map[common.Address][]byte
	gasPrice  *big.Int
	gas       uint64
	sent      []*types.Transaction
	sendErr   error
	safeNonce *big.Int
	owners    []common.Address
	threshold int64
	approved  map[common.Hash]map[common.Address]bool
	proxyCode []byte
	codeCalls int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		chainID:   testChainID,
		head:      100,
		blocks:    map[uint64][]*types.Transaction{},
		nonces:    map[common.Address]uint64{},
		balances:  map[common.Address]*big.Int{},
		code:      map[common.Address][]byte{},
		gasPrice:  big.NewInt(2_000_000_000),
		gas:       21000,
		safeNonce: big.NewInt(0),
		approved:  map[common.Hash]map[common.Address]bool{},
		proxyCode: common.FromHex("0x608060405234801561001057600080fd5b506040516101e63803806101e6"),
	}
}

func (f *fakeClient) ChainID(context.Context) (*big.Int, error) {
	if f.chainErr != nil {
		return nil, f.chainErr
	}
	return f.chainID, nil
}

func (f *fakeClient) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.head
	if number != nil {
		n = number.Uint64()
	}
	return &types.Header{Number: new(big.Int).SetUint64(n), Time: 1_700_000_000 + n*12}, nil
}

func (f *fakeClient) BlockByNumber(_ context.Context, number *big.Int) (*types.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := number.Uint64()
	if n > f.head {
		return nil, ethereum.NotFound
	}
	header := &types.Header{Number: new(big.Int).SetUint64(n)}
	return types.NewBlockWithHeader(header).WithBody(f.blocks[n], nil), nil
}

func (f *fakeClient) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[account], nil
}

func (f *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.gas, nil
}

func (f *fakeClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	f.head++
	f.blocks[f.head] = []*types.Transaction{tx}
	return nil
}

func (f *fakeClient) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code[account], nil
}

func (f *fakeClient) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[account]; ok {
		return b, nil
	}
	return new(big.Int), nil
}

func (f *fakeClient) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	method, err := methodByID(msg.Data)
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "nonce":
		return method.Outputs.Pack(f.safeNonce)
	case "getOwners":
		return method.Outputs.Pack(f.owners)
	case "getThreshold":
		return method.Outputs.Pack(big.NewInt(f.threshold))
	case "approvedHashes":
		args, err := method.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		owner := args[0].(common.Address)
		hash := common.Hash(args[1].([32]byte))
		approved := big.NewInt(0)
		if f.approved[hash][owner] {
			approved = big.NewInt(1)
		}
		return method.Outputs.Pack(approved)
	case "proxyCreationCode":
		f.codeCalls++
		return method.Outputs.Pack(f.proxyCode)
	}
	return nil, fmt.Errorf("execution reverted: %s", method.Name)
}

func methodByID(data []byte) (*abi.Method, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("execution reverted")
	}
	if m, err := safeABI.MethodById(data[:4]); err == nil {
		return m, nil
	}
	return proxyFactoryABI.MethodById(data[:4])
}

func (f *fakeClient) approve(hash common.Hash, owner common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.approved[hash] == nil {
		f.approved[hash] = map[common.Address]bool{}
	}
	f.approved[hash][owner] = true
}

func (f *fakeClient) sentTransactions() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.Transaction(nil), f.sent...)
}

type noSleep struct{}

func (noSleep) Sleep(context.Context, time.Duration) error { return nil }

func newTestState(t *testing.T, client *fakeClient) *ChainState {
	t.Helper()
	state := NewChainState(Settings{Endpoint: "http://fake", Client: client, Scheduler: noSleep{}})
	require.NoError(t, state.Connect(context.Background()))
	return state
}

type testKey struct {
	priv *ecdsa.PrivateKey
	addr common.Address
}

func newTestKey(t *testing.T) testKey {
	t.Helper()
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	return testKey{priv: k, addr: crypto.PubkeyToAddress(k.PublicKey)}
}

func (k testKey) private() chain.PrivateKey {
	return EncodePrivateKey(k.priv)
}

func transfer(from common.Address, wei int64) Action {
	to := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	return Action{From: from, To: &to, Value: big.NewInt(wei)}
}

func requireKind(t *testing.T, err error, kind chain.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, chain.KindOf(err), "error: %v", err)
}
