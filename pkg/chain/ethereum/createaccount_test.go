package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
	"github.com/kollektive-hackathon/multichain/pkg/keystore"
)

func TestCreateAccount_GeneratesKey(t *testing.T) {
	ca, err := NewCreateAccount(newTestState(t, newFakeClient()), CreateAccountOptions{Password: "pw", Salt: "salt"})
	require.NoError(t, err)
	require.NoError(t, ca.Compose(context.Background()))
	require.False(t, ca.RequiresTransaction())
	require.Nil(t, ca.Transaction())

	keys := ca.GeneratedKeys()
	require.Len(t, keys, 1)
	priv, err := ParsePrivateKey(keys[0].PrivateKey)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(priv.PublicKey).Hex(), ca.AccountName())
	require.Equal(t, EncodePublicKey(&priv.PublicKey), keys[0].PublicKey)

	plain, err := keystore.Decrypt(keys[0].PrivateKeyEncrypted, "pw", "salt")
	require.NoError(t, err)
	require.Equal(t, string(keys[0].PrivateKey), plain)
}

func TestCreateAccount_DeploysSafe(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	state := newTestState(t, client)
	_, opts := safeOwners(t)
	deployer := newTestKey(t)

	_, err := NewCreateAccount(state, CreateAccountOptions{Multisig: &opts})
	requireKind(t, err, chain.ErrInvalidOptions)

	ca, err := NewCreateAccount(state, CreateAccountOptions{Multisig: &opts, Deployer: deployer.addr.Hex()})
	require.NoError(t, err)
	require.NoError(t, ca.Compose(ctx))
	require.True(t, ca.RequiresTransaction())
	require.Empty(t, ca.GeneratedKeys())

	predicted, err := ResolveSafeAddress(ctx, state, opts)
	require.NoError(t, err)
	require.Equal(t, predicted.Hex(), ca.AccountName())

	a := ca.Transaction().Actions()[0].(Action)
	require.Equal(t, deployer.addr, a.From)
	require.Equal(t, state.SafeDeployment().Factory, *a.To)
	method, err := proxyFactoryABI.MethodById(a.Data[:4])
	require.NoError(t, err)
	require.Equal(t, "createProxyWithNonce", method.Name)
	args, err := method.Inputs.Unpack(a.Data[4:])
	require.NoError(t, err)
	require.Equal(t, state.SafeDeployment().Singleton, args[0])
	require.Equal(t, 0, new(big.Int).Cmp(args[2].(*big.Int)))

	// the initializer in the call is the one the address was predicted from
	code, err := state.ProxyCreationCode(ctx, state.SafeDeployment().Factory)
	require.NoError(t, err)
	d := state.SafeDeployment()
	require.Equal(t, predicted, PredictSafeAddress(d.Factory, d.Singleton, code, args[1].([]byte), big.NewInt(0)))

	client.code[predicted] = []byte{0x60}
	again, err := NewCreateAccount(state, CreateAccountOptions{Multisig: &opts, Deployer: deployer.addr.Hex()})
	require.NoError(t, err)
	requireKind(t, again.Compose(ctx), chain.ErrAccountAlreadyExists)
}

func TestLoadAccount(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	state := newTestState(t, client)
	funded := newTestKey(t)
	client.balances[funded.addr] = big.NewInt(10)
	contract := common.HexToAddress("0x00000000000000000000000000000000000000c0")
	client.code[contract] = []byte{0x60}

	acc, err := LoadAccount(ctx, state, funded.addr.Hex())
	require.NoError(t, err)
	require.True(t, acc.Exists())
	require.False(t, acc.IsContract())
	require.Equal(t, big.NewInt(10), acc.Balance())
	require.False(t, acc.SupportsRecycling())

	acc, err = LoadAccount(ctx, state, contract.Hex())
	require.NoError(t, err)
	require.True(t, acc.IsContract())

	acc, err = LoadAccount(ctx, state, newTestKey(t).addr.Hex())
	require.NoError(t, err)
	require.False(t, acc.Exists())

	_, err = LoadAccount(ctx, state, "alice")
	requireKind(t, err, chain.ErrInvalidOptions)
}

func TestChain_Connect(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	c := New(Settings{Client: client, ChainID: testChainID})
	require.False(t, c.IsConnected())
	_, err := c.ChainInfo(ctx)
	requireKind(t, err, chain.ErrNotConnected)

	require.NoError(t, c.Connect(ctx))
	client.chainErr = fmt.Errorf("node down")
	require.NoError(t, c.Connect(ctx))
	info, err := c.ChainInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(100), info.HeadBlockNumber)

	requireKind(t, New(Settings{Client: newFakeClient(), ChainID: big.NewInt(1)}).Connect(ctx), chain.ErrChainConnectFailed)
	down := newFakeClient()
	down.chainErr = fmt.Errorf("connection refused")
	requireKind(t, New(Settings{Client: down}).Connect(ctx), chain.ErrChainConnectFailed)

	require.False(t, c.IsValidAccountName("1337"))
	require.True(t, c.IsValidAccountName("0x00000000000000000000000000000000000000c0"))
	decoded, err := c.DecodeAction(ctx, map[string]any{"from": newTestKey(t).addr.Hex(), "to": newTestKey(t).addr.Hex(), "value": "1"})
	require.NoError(t, err)
	require.Equal(t, chain.Ethereum, decoded.ChainType())

	tx, err := c.NewTransaction(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, chain.Ethereum, tx.ChainType())
}
