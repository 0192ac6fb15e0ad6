package ethereum

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

func safeOwners(t *testing.T) ([]testKey, MultisigOptions) {
	t.Helper()
	keys := []testKey{newTestKey(t), newTestKey(t), newTestKey(t)}
	opts := MultisigOptions{Threshold: 2}
	for _, k := range keys {
		opts.Owners = append(opts.Owners, k.addr.Hex())
	}
	return keys, opts
}

func newSafeTx(t *testing.T, client *fakeClient, opts MultisigOptions) *Transaction {
	t.Helper()
	tx, err := NewTransaction(context.Background(), newTestState(t, client), &chain.TransactionOptions{Multisig: opts})
	require.NoError(t, err)
	require.True(t, tx.IsMultisig())
	require.True(t, tx.RequiresParentTransaction())
	return tx
}

func TestResolveSafeAddress(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	state := newTestState(t, client)
	keys, opts := safeOwners(t)

	addr, err := ResolveSafeAddress(ctx, state, opts)
	require.NoError(t, err)

	// owner order and case do not change the address
	reordered := MultisigOptions{Threshold: 2, Owners: []string{
		strings.ToLower(keys[2].addr.Hex()), keys[0].addr.Hex(), keys[1].addr.Hex(),
	}}
	again, err := ResolveSafeAddress(ctx, state, reordered)
	require.NoError(t, err)
	require.Equal(t, addr, again)
	require.Equal(t, 1, client.codeCalls)

	salted := opts
	salted.SaltNonce = 1
	other, err := ResolveSafeAddress(ctx, state, salted)
	require.NoError(t, err)
	require.NotEqual(t, addr, other)

	fixed := opts
	fixed.Address = "0x00000000000000000000000000000000000000c0"
	given, err := ResolveSafeAddress(ctx, state, fixed)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(fixed.Address), given)

	bad := []MultisigOptions{
		{Threshold: 1},
		{Threshold: 0, Owners: opts.Owners},
		{Threshold: 4, Owners: opts.Owners},
		{Threshold: 1, Owners: []string{keys[0].addr.Hex(), strings.ToLower(keys[0].addr.Hex())}},
		{Threshold: 1, Owners: []string{"alice"}},
	}
	for _, o := range bad {
		_, err := ResolveSafeAddress(ctx, state, o)
		requireKind(t, err, chain.ErrInvalidOptions)
	}
}

func TestSafe_ParentTransaction(t *testing.T) {
	ctx := context.Background()
	keys, opts := safeOwners(t)
	client := newFakeClient()
	tx := newSafeTx(t, client, opts)
	safe := tx.Multisig().SafeAddress()

	requireKind(t, tx.SetActions(transfer(keys[0].addr, 1)), chain.ErrMultisigFromMismatch)
	require.NoError(t, tx.SetActions(transfer(safe, 1)))
	require.NoError(t, tx.PrepareToBeSigned(ctx))
	require.NoError(t, tx.Validate(ctx))

	buf, err := tx.SignBuffer()
	require.NoError(t, err)
	require.Equal(t, tx.Multisig().SafeTxHash().Bytes(), buf)
	require.Len(t, tx.MissingSignatures(), 3)

	executor := newTestKey(t)
	_, err = tx.ParentTransaction(ctx, executor.addr)
	requireKind(t, err, chain.ErrMissingRequiredSignature)

	require.NoError(t, tx.Sign(ctx, keys[0].private()))
	require.Len(t, tx.MissingSignatures(), 2)
	_, err = tx.ParentTransaction(ctx, executor.addr)
	requireKind(t, err, chain.ErrMissingRequiredSignature)

	requireKind(t, tx.Sign(ctx, executor.private()), chain.ErrInvalidSignature)
	_, err = tx.Send(ctx, chain.ConfirmNone)
	requireKind(t, err, chain.ErrMissingRequiredSignature)
	require.Empty(t, client.sentTransactions())
	requireKind(t, tx.SetActions(transfer(safe, 2)), chain.ErrMutationAfterSignature)

	require.NoError(t, tx.Sign(ctx, keys[2].private()))
	require.Nil(t, tx.MissingSignatures())
	require.True(t, tx.HasAllRequiredSignatures())
	_, err = tx.Send(ctx, chain.ConfirmNone)
	requireKind(t, err, chain.ErrInvalidOptions)

	parent, err := tx.ParentTransaction(ctx, executor.addr)
	require.NoError(t, err)
	require.False(t, parent.IsMultisig())
	action := parent.Actions()[0].(Action)
	require.Equal(t, executor.addr, action.From)
	require.Equal(t, safe, *action.To)

	method, err := safeABI.MethodById(action.Data[:4])
	require.NoError(t, err)
	require.Equal(t, "execTransaction", method.Name)
	args, err := method.Inputs.Unpack(action.Data[4:])
	require.NoError(t, err)
	packed := args[9].([]byte)
	require.Len(t, packed, 130)

	// signatures are ordered by owner and recover to the owners over safeTxHash
	signers := sortAddresses([]common.Address{keys[0].addr, keys[2].addr})
	for i, want := range signers {
		sig := append([]byte(nil), packed[i*65:(i+1)*65]...)
		require.Contains(t, []byte{27, 28}, sig[64])
		sig[64] -= 27
		pub, err := crypto.SigToPub(buf, sig)
		require.NoError(t, err)
		require.Equal(t, want, crypto.PubkeyToAddress(*pub))
	}

	client.nonces[executor.addr] = 3
	require.NoError(t, parent.PrepareToBeSigned(ctx))
	require.NoError(t, parent.Validate(ctx))
	require.NoError(t, parent.Sign(ctx, executor.private()))
	res, err := parent.Send(ctx, chain.ConfirmAfterFirstBlock)
	require.NoError(t, err)
	require.True(t, res.Confirmed)
	require.Len(t, client.sentTransactions(), 1)
	require.Equal(t, action.Data, client.sentTransactions()[0].Data())
}

func TestSafe_ApprovalPath(t *testing.T) {
	ctx := context.Background()
	keys, opts := safeOwners(t)
	client := newFakeClient()
	opts.Address = "0x00000000000000000000000000000000000000c0"
	safe := common.HexToAddress(opts.Address)
	client.code[safe] = []byte{0x60}
	client.safeNonce = big.NewInt(9)
	client.owners = []common.Address{keys[0].addr, keys[1].addr, keys[2].addr}
	client.threshold = 2

	tx := newSafeTx(t, client, opts)
	_, err := tx.ApprovalTransaction(ctx, keys[1].addr)
	requireKind(t, err, chain.ErrNotPrepared)

	require.NoError(t, tx.SetActions(transfer(safe, 1)))
	require.NoError(t, tx.PrepareToBeSigned(ctx))
	require.Equal(t, uint64(9), tx.Header().Nonce)
	require.NoError(t, tx.Validate(ctx))
	hash := tx.Multisig().SafeTxHash()

	approval, err := tx.ApprovalTransaction(ctx, keys[1].addr)
	require.NoError(t, err)
	a := approval.Actions()[0].(Action)
	require.Equal(t, keys[1].addr, a.From)
	require.Equal(t, safe, *a.To)
	data, err := approveHashData(hash)
	require.NoError(t, err)
	require.Equal(t, data, a.Data)

	_, err = tx.ApprovalTransaction(ctx, newTestKey(t).addr)
	requireKind(t, err, chain.ErrInvalidOptions)

	// not approved on chain yet
	requireKind(t, tx.AddApproval(ctx, keys[1].addr), chain.ErrInvalidSignature)
	require.False(t, tx.HasAnySignatures())

	client.approve(hash, keys[1].addr)
	require.NoError(t, tx.AddApproval(ctx, keys[1].addr))
	require.Len(t, tx.MissingSignatures(), 2)

	require.NoError(t, tx.Sign(ctx, keys[0].private()))
	require.True(t, tx.HasAllRequiredSignatures())
	require.Len(t, tx.Signatures(), 2)

	packed := tx.Multisig().PackedSignatures()
	require.Len(t, packed, 130)
	for i := 0; i < 2; i++ {
		sig := packed[i*65 : (i+1)*65]
		if sig[64] == 1 {
			require.Equal(t, keys[1].addr, common.BytesToAddress(sig[12:32]))
		}
	}

	// the placeholder is accepted again by a copy of the transaction
	restored := newSafeTx(t, client, opts)
	require.NoError(t, restored.SetFromRaw(ctx, tx.Raw()))
	require.Equal(t, hash, restored.Multisig().SafeTxHash())
	require.NoError(t, restored.Validate(ctx))
	require.NoError(t, restored.AddSignatures(ctx, tx.Signatures()...))
	require.True(t, restored.HasAllRequiredSignatures())
}

func TestSafe_DeployedSafeMustMatchOptions(t *testing.T) {
	ctx := context.Background()
	keys, opts := safeOwners(t)
	client := newFakeClient()
	opts.Address = "0x00000000000000000000000000000000000000c0"
	safe := common.HexToAddress(opts.Address)
	client.code[safe] = []byte{0x60}
	client.owners = []common.Address{keys[0].addr, keys[1].addr, keys[2].addr}
	client.threshold = 3

	tx := newSafeTx(t, client, opts)
	require.NoError(t, tx.SetActions(transfer(safe, 1)))
	require.NoError(t, tx.PrepareToBeSigned(ctx))
	requireKind(t, tx.Validate(ctx), chain.ErrInvalidOptions)

	client.threshold = 2
	client.owners = []common.Address{keys[0].addr, keys[1].addr, newTestKey(t).addr}
	requireKind(t, tx.Validate(ctx), chain.ErrInvalidOptions)
}

func TestSafe_SetFromRawRejectsOtherSafe(t *testing.T) {
	ctx := context.Background()
	_, opts := safeOwners(t)
	client := newFakeClient()
	tx := newSafeTx(t, client, opts)
	require.NoError(t, tx.SetActions(transfer(tx.Multisig().SafeAddress(), 1)))
	require.NoError(t, tx.PrepareToBeSigned(ctx))

	_, other := safeOwners(t)
	foreign := newSafeTx(t, client, other)
	requireKind(t, foreign.SetFromRaw(ctx, tx.Raw()), chain.ErrMultisigFromMismatch)
	requireKind(t, foreign.SetFromRaw(ctx, []byte("{}")), chain.ErrInvalidActionShape)
}

func TestSafe_RejectsForeignOptions(t *testing.T) {
	_, err := NewTransaction(context.Background(), newTestState(t, newFakeClient()), &chain.TransactionOptions{Multisig: foreignOptions{}})
	requireKind(t, err, chain.ErrInvalidOptions)
}

type foreignOptions struct {
	chain.MultisigOptionsBase
}

func (foreignOptions) ChainType() chain.ChainType { return chain.EOS }
