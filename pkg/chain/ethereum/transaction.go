package ethereum

import (
	"bytes"
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

// Header holds the fields a legacy transaction takes from the chain.
type Header struct {
	Nonce    uint64
	Gas      uint64
	GasPrice *big.Int
	ChainID  *big.Int
}

// Transaction is an Ethereum transaction with exactly one action. With
// multisig options the body is a Safe transaction signed by the owners and
// executed through ParentTransaction.
type Transaction struct {
	state *ChainState
	opts  chain.TransactionOptions

	mu        sync.Mutex
	action    *Action
	header    *Header
	unsigned  *types.Transaction
	raw       []byte
	buffer    []byte
	validated bool
	required  []chain.Authorization
	sig       []byte
	signed    *types.Transaction
	multisig  *Multisig

	// generation counts resets of everything derived from the actions.
	generation uint64
}

var _ chain.Transaction = (*Transaction)(nil)

func multisigOptions(opts chain.MultisigOptions) (MultisigOptions, bool) {
	switch o := opts.(type) {
	case MultisigOptions:
		return o, true
	case *MultisigOptions:
		if o != nil {
			return *o, true
		}
	}
	return MultisigOptions{}, false
}

// NewTransaction resolves the Safe address of multisig options, which may
// call the chain.
func NewTransaction(ctx context.Context, state *ChainState, opts *chain.TransactionOptions) (*Transaction, error) {
	tx := &Transaction{state: state}
	if opts != nil {
		tx.opts = *opts
	}
	if tx.opts.Multisig != nil {
		msOpts, ok := multisigOptions(tx.opts.Multisig)
		if !ok {
			return nil, chain.NewError(chain.ErrInvalidOptions, "multisig options for %s given to an ethereum transaction", tx.opts.Multisig.ChainType())
		}
		safe, err := ResolveSafeAddress(ctx, state, msOpts)
		if err != nil {
			return nil, err
		}
		ms, err := NewMultisig(msOpts, safe)
		if err != nil {
			return nil, err
		}
		tx.multisig = ms
	}
	return tx, nil
}

func (tx *Transaction) ChainType() chain.ChainType { return chain.Ethereum }

func (tx *Transaction) Actions() []chain.Action {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.action == nil {
		return nil
	}
	return []chain.Action{*tx.action}
}

func (tx *Transaction) Header() *Header {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.header == nil {
		return nil
	}
	h := *tx.header
	return &h
}

func (tx *Transaction) hasAnySignatures() bool {
	if tx.multisig != nil {
		return len(tx.multisig.signed) > 0
	}
	return tx.sig != nil
}

func toRawAction(a chain.Action) (*Action, error) {
	var raw Action
	switch v := a.(type) {
	case Action:
		raw = v
	case *Action:
		raw = *v
	default:
		return nil, chain.NewError(chain.ErrInvalidActionShape, "ethereum transactions take raw ethereum actions, got %T", a)
	}
	return validateRaw(&raw)
}

func (tx *Transaction) checkMultisigFrom(a *Action) error {
	if tx.multisig == nil {
		return nil
	}
	if a.From != tx.multisig.SafeAddress() {
		return chain.NewError(chain.ErrMultisigFromMismatch,
			"action is sent from %s but the safe is %s", a.From.Hex(), tx.multisig.Address())
	}
	if a.To == nil {
		return chain.NewError(chain.ErrInvalidActionShape, "a safe transaction needs a to address")
	}
	return nil
}

// SetActions replaces the action and drops everything derived from the
// previous one.
func (tx *Transaction) SetActions(actions ...chain.Action) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.hasAnySignatures() {
		return chain.NewError(chain.ErrMutationAfterSignature, "cannot change the action of a signed transaction")
	}
	if len(actions) != 1 {
		return chain.NewError(chain.ErrInvalidActionShape, "ethereum transactions carry exactly one action, got %d", len(actions))
	}
	a, err := toRawAction(actions[0])
	if err != nil {
		return err
	}
	if err := tx.checkMultisigFrom(a); err != nil {
		return err
	}
	tx.action = a
	tx.resetDerived()
	return nil
}

func (tx *Transaction) resetDerived() {
	tx.generation++
	tx.header = nil
	tx.unsigned = nil
	tx.raw = nil
	tx.buffer = nil
	tx.validated = false
	tx.required = nil
	tx.sig = nil
	tx.signed = nil
	if tx.multisig != nil {
		tx.multisig.reset()
	}
}

// PrepareToBeSigned fills nonce, gas and gas price and encodes the body. A
// body that already exists is kept as is.
func (tx *Transaction) PrepareToBeSigned(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.raw != nil {
		return nil
	}
	if tx.action == nil {
		return chain.NewError(chain.ErrInvalidActionShape, "transaction has no action")
	}
	chainID := tx.state.ChainID()
	if chainID == nil {
		return chain.NewError(chain.ErrNotConnected, "ethereum chain id is unknown")
	}
	if tx.multisig != nil {
		return tx.prepareSafe(ctx, chainID)
	}

	a := tx.action
	nonce, err := tx.state.Nonce(ctx, a.From)
	if err != nil {
		return err
	}
	gasPrice := a.GasPrice
	if gasPrice == nil {
		if gasPrice, err = tx.state.GasPrice(ctx); err != nil {
			return err
		}
	}
	var gas uint64
	if a.Gas != nil {
		gas = *a.Gas
	} else if gas, err = tx.state.EstimateGas(ctx, ActionHelper{}.ToSdkEncoded(a)); err != nil {
		return err
	}
	header := &Header{Nonce: nonce, Gas: gas, GasPrice: gasPrice, ChainID: chainID}
	if err := tx.adoptLegacy(header, legacyTx(header, a)); err != nil {
		return err
	}
	log.Debug().Str("from", a.From.Hex()).Uint64("nonce", nonce).Uint64("gas", gas).Msg("ethereum transaction prepared")
	return nil
}

func legacyTx(h *Header, a *Action) *types.Transaction {
	value := a.Value
	if value == nil {
		value = new(big.Int)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    h.Nonce,
		GasPrice: h.GasPrice,
		Gas:      h.Gas,
		To:       a.To,
		Value:    value,
		Data:     a.Data,
	})
}

func (tx *Transaction) signer() types.Signer {
	return types.NewEIP155Signer(tx.header.ChainID)
}

func (tx *Transaction) adoptLegacy(header *Header, unsigned *types.Transaction) error {
	raw, err := unsigned.MarshalBinary()
	if err != nil {
		return chain.WrapError(chain.ErrInvalidActionShape, err, "encode transaction")
	}
	tx.header = header
	tx.unsigned = unsigned
	tx.raw = raw
	tx.buffer = tx.signer().Hash(unsigned).Bytes()
	return nil
}

func (tx *Transaction) prepareSafe(ctx context.Context, chainID *big.Int) error {
	safe := tx.multisig.SafeAddress()
	code, err := tx.state.Code(ctx, safe)
	if err != nil {
		return err
	}
	nonce := new(big.Int)
	if len(code) > 0 {
		if nonce, err = tx.state.SafeNonce(ctx, safe); err != nil {
			return err
		}
	}
	safeTx := &SafeTransaction{
		To:    *tx.action.To,
		Value: tx.action.Value,
		Data:  tx.action.Data,
		Nonce: nonce,
	}
	raw, err := encodeSafeEnvelope(safeEnvelope{Safe: safe, ChainID: chainID, Tx: safeTx})
	if err != nil {
		return chain.WrapError(chain.ErrInvalidActionShape, err, "encode safe transaction")
	}
	tx.adoptSafe(chainID, safeTx, raw)
	log.Debug().Str("safe", safe.Hex()).Str("safeTxHash", tx.multisig.SafeTxHash().Hex()).Msg("safe transaction prepared")
	return nil
}

func (tx *Transaction) adoptSafe(chainID *big.Int, safeTx *SafeTransaction, raw []byte) {
	tx.multisig.prepare(chainID, safeTx)
	tx.header = &Header{Nonce: safeTx.Nonce.Uint64(), ChainID: chainID}
	tx.raw = raw
	tx.buffer = tx.multisig.SafeTxHash().Bytes()
}

// SetFromRaw adopts an encoded body. A signed legacy envelope brings its
// signature along; an unsigned one keeps the sender of the current action.
// Multisig transactions take the Safe transaction JSON that Raw returns.
func (tx *Transaction) SetFromRaw(_ context.Context, raw []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.hasAnySignatures() {
		if bytes.Equal(raw, tx.raw) || tx.signedEnvelopeEquals(raw) {
			return nil
		}
		return chain.NewError(chain.ErrMutationAfterSignature, "cannot replace the body of a signed transaction")
	}
	if tx.multisig != nil {
		return tx.setSafeFromRaw(raw)
	}
	return tx.setLegacyFromRaw(raw)
}

func (tx *Transaction) signedEnvelopeEquals(raw []byte) bool {
	if tx.signed == nil {
		return false
	}
	enc, err := tx.signed.MarshalBinary()
	return err == nil && bytes.Equal(enc, raw)
}

func (tx *Transaction) setSafeFromRaw(raw []byte) error {
	env, err := decodeSafeEnvelope(raw)
	if err != nil {
		return chain.WrapError(chain.ErrInvalidActionShape, err, "decode safe transaction")
	}
	if env.Safe != tx.multisig.SafeAddress() {
		return chain.NewError(chain.ErrMultisigFromMismatch, "body belongs to safe %s, not %s", env.Safe.Hex(), tx.multisig.Address())
	}
	if id := tx.state.ChainID(); id != nil && id.Cmp(env.ChainID) != 0 {
		return chain.NewError(chain.ErrInvalidOptions, "body is for chain %s, connected to %s", env.ChainID, id)
	}
	to := env.Tx.To
	a := &Action{From: env.Safe, To: &to, Value: env.Tx.Value, Data: env.Tx.Data}
	if _, err := validateRaw(a); err != nil {
		return err
	}
	tx.action = a
	tx.resetDerived()
	tx.adoptSafe(env.ChainID, env.Tx, append([]byte(nil), raw...))
	return nil
}

func (tx *Transaction) setLegacyFromRaw(raw []byte) error {
	var decoded types.Transaction
	if err := decoded.UnmarshalBinary(raw); err != nil {
		return chain.WrapError(chain.ErrInvalidActionShape, err, "decode transaction")
	}
	if decoded.Type() != types.LegacyTxType {
		return chain.NewError(chain.ErrInvalidActionShape, "only legacy transactions are supported, got type %d", decoded.Type())
	}
	chainID := tx.state.ChainID()
	if chainID == nil {
		return chain.NewError(chain.ErrNotConnected, "ethereum chain id is unknown")
	}
	header := &Header{Nonce: decoded.Nonce(), Gas: decoded.Gas(), GasPrice: decoded.GasPrice(), ChainID: chainID}
	signer := types.NewEIP155Signer(chainID)

	_, r, _ := decoded.RawSignatureValues()
	var from common.Address
	var sig []byte
	if r != nil && r.Sign() != 0 {
		sender, err := types.Sender(signer, &decoded)
		if err != nil {
			return chain.WrapError(chain.ErrInvalidSignature, err, "recover sender")
		}
		from = sender
		if sig, err = signatureOf(&decoded, chainID); err != nil {
			return err
		}
	} else {
		if tx.action == nil {
			return chain.NewError(chain.ErrInvalidActionShape, "an unsigned body does not name its sender; set the action first")
		}
		from = tx.action.From
	}

	gas := decoded.Gas()
	a, err := validateRaw(&Action{
		From:     from,
		To:       decoded.To(),
		Value:    decoded.Value(),
		Data:     decoded.Data(),
		Gas:      &gas,
		GasPrice: decoded.GasPrice(),
	})
	if err != nil {
		return err
	}
	tx.action = a
	tx.resetDerived()
	if err := tx.adoptLegacy(header, legacyTx(header, a)); err != nil {
		return err
	}
	if sig != nil {
		tx.required = []chain.Authorization{{Account: from.Hex()}}
		tx.validated = true
		tx.sig = sig
		tx.signed = &decoded
	}
	return nil
}

// signatureOf turns the v, r, s of a signed legacy transaction back into a
// 65 byte signature with a recovery id.
func signatureOf(t *types.Transaction, chainID *big.Int) ([]byte, error) {
	v, r, s := t.RawSignatureValues()
	recID := new(big.Int).Set(v)
	if t.Protected() {
		recID.Sub(recID, new(big.Int).Add(new(big.Int).Mul(chainID, big.NewInt(2)), big.NewInt(35)))
	} else {
		recID.Sub(recID, big.NewInt(27))
	}
	if !recID.IsUint64() || recID.Uint64() > 1 {
		return nil, chain.NewError(chain.ErrInvalidSignature, "signature v %s does not match chain %s", v, chainID)
	}
	sig := make([]byte, crypto.SignatureLength)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:64])
	sig[crypto.RecoveryIDOffset] = byte(recID.Uint64())
	return sig, nil
}

func (tx *Transaction) HasRaw() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.raw != nil
}

// Raw is the unsigned body: the legacy RLP encoding, or the Safe transaction
// JSON for multisig.
func (tx *Transaction) Raw() []byte {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.raw == nil {
		return nil
	}
	return append([]byte(nil), tx.raw...)
}

// SignedRaw is the signed legacy envelope as it is broadcast.
func (tx *Transaction) SignedRaw() ([]byte, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.signed == nil {
		return nil, chain.NewError(chain.ErrMissingRequiredSignature, "transaction is not signed")
	}
	return tx.signed.MarshalBinary()
}

// SignBuffer is the 32 byte hash the signers sign: the EIP-155 signing hash,
// or the safeTxHash for multisig.
func (tx *Transaction) SignBuffer() ([]byte, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.buffer == nil {
		return nil, chain.NewError(chain.ErrNotPrepared, "transaction is not prepared")
	}
	return append([]byte(nil), tx.buffer...), nil
}

// Validate derives the required signers. For a deployed Safe the owners and
// threshold on chain must match the options.
func (tx *Transaction) Validate(ctx context.Context) error {
	tx.mu.Lock()
	if tx.raw == nil {
		tx.mu.Unlock()
		return chain.NewError(chain.ErrNotPrepared, "prepare the transaction before validating it")
	}
	from := tx.action.From
	ms := tx.multisig
	generation := tx.generation
	tx.mu.Unlock()

	var required []chain.Authorization
	if ms != nil {
		code, err := tx.state.Code(ctx, ms.SafeAddress())
		if err != nil {
			return err
		}
		if len(code) > 0 {
			owners, threshold, err := tx.state.SafeOwners(ctx, ms.SafeAddress())
			if err != nil {
				return err
			}
			if err := ms.checkDeployed(owners, threshold); err != nil {
				return err
			}
		}
		required = ms.ownerAuthorizations()
	} else {
		auth := chain.Authorization{Account: from.Hex()}
		if tx.opts.SignerPublicKey != "" {
			pub, err := unmarshalPublicKey(tx.opts.SignerPublicKey)
			if err != nil || crypto.PubkeyToAddress(*pub) != from {
				return chain.NewError(chain.ErrInvalidOptions, "signer public key does not belong to %s", from.Hex())
			}
			auth.PublicKey = tx.opts.SignerPublicKey
		}
		required = []chain.Authorization{auth}
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.generation != generation {
		return chain.NewError(chain.ErrNotPrepared, "transaction changed while validating")
	}
	tx.required = required
	tx.validated = true
	log.Debug().Int("required", len(required)).Bool("multisig", ms != nil).Msg("ethereum transaction validated")
	return nil
}

func (tx *Transaction) IsValidated() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.validated
}

func (tx *Transaction) RequiredAuthorizations() []chain.Authorization {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.multisig != nil {
		return tx.multisig.ownerAuthorizations()
	}
	if tx.validated {
		return append([]chain.Authorization(nil), tx.required...)
	}
	if tx.action == nil {
		return nil
	}
	return []chain.Authorization{{Account: tx.action.From.Hex()}}
}

func (tx *Transaction) Signatures() []chain.Signature {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.multisig != nil {
		return tx.multisig.Signatures()
	}
	if tx.sig == nil {
		return nil
	}
	return []chain.Signature{encodeSignature(tx.sig)}
}

func (tx *Transaction) HasAnySignatures() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.hasAnySignatures()
}

// AddSignatures verifies each signature against the sign buffer. Safe
// approval placeholders are checked against approvedHashes on chain. Nothing
// is attached when any signature is rejected.
func (tx *Transaction) AddSignatures(ctx context.Context, sigs ...chain.Signature) error {
	tx.mu.Lock()
	if !tx.validated {
		tx.mu.Unlock()
		return chain.NewError(chain.ErrNotValidated, "validate the transaction before adding signatures")
	}
	buffer := tx.buffer
	ms := tx.multisig
	tx.mu.Unlock()

	approvals := map[common.Address]bool{}
	if ms != nil {
		for _, s := range sigs {
			sig, kind, err := parseSignature(s)
			if err != nil {
				return err
			}
			if kind != sigApproved || !ms.IsOwner(placeholderOwner(sig).Hex()) {
				continue
			}
			owner := placeholderOwner(sig)
			ok, err := tx.state.IsHashApproved(ctx, ms.SafeAddress(), owner, common.BytesToHash(buffer))
			if err != nil {
				return err
			}
			approvals[owner] = ok
		}
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !bytes.Equal(buffer, tx.buffer) {
		return chain.NewError(chain.ErrMutationAfterSignature, "transaction changed while checking signatures")
	}
	return tx.addSignatures(sigs, approvals)
}

func (tx *Transaction) addSignatures(sigs []chain.Signature, approvals map[common.Address]bool) error {
	if tx.multisig != nil {
		return tx.multisig.addSignatures(sigs, func(owner common.Address) (bool, error) {
			return approvals[owner], nil
		})
	}

	from := tx.action.From
	accepted := tx.sig
	for _, s := range sigs {
		sig, kind, err := parseSignature(s)
		if err != nil {
			return err
		}
		if kind == sigApproved {
			return chain.NewError(chain.ErrInvalidSignature, "approvals only apply to safe transactions")
		}
		signer, err := recoverAddress(tx.buffer, sig)
		if err != nil {
			return err
		}
		if signer != from {
			return chain.NewError(chain.ErrInvalidSignature, "signature by %s, transaction is sent from %s", signer.Hex(), from.Hex())
		}
		if accepted == nil {
			accepted = sig
		}
	}
	if accepted == nil || tx.sig != nil {
		return nil
	}
	signed, err := tx.unsigned.WithSignature(tx.signer(), accepted)
	if err != nil {
		return chain.WrapError(chain.ErrInvalidSignature, err, "attach signature")
	}
	tx.sig = accepted
	tx.signed = signed
	log.Trace().Str("txId", signed.Hash().Hex()).Msg("ethereum signature attached")
	return nil
}

// Sign signs the sign buffer with every key concurrently and attaches the
// results in one step.
func (tx *Transaction) Sign(ctx context.Context, keys ...chain.PrivateKey) error {
	tx.mu.Lock()
	if !tx.validated {
		tx.mu.Unlock()
		return chain.NewError(chain.ErrNotValidated, "validate the transaction before signing")
	}
	buffer := tx.buffer
	tx.mu.Unlock()

	sigs, err := chain.MapConcurrently(ctx, keys, func(_ context.Context, k chain.PrivateKey) (chain.Signature, error) {
		key, err := ParsePrivateKey(k)
		if err != nil {
			return "", err
		}
		sig, err := crypto.Sign(buffer, key)
		if err != nil {
			return "", chain.WrapError(chain.ErrInvalidOptions, err, "sign")
		}
		return encodeSignature(sig), nil
	})
	if err != nil {
		return err
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !bytes.Equal(buffer, tx.buffer) {
		return chain.NewError(chain.ErrMutationAfterSignature, "transaction changed while signing")
	}
	return tx.addSignatures(sigs, nil)
}

func (tx *Transaction) MissingSignatures() []chain.Authorization {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.missingSignatures()
}

func (tx *Transaction) missingSignatures() []chain.Authorization {
	if tx.multisig != nil {
		return tx.multisig.MissingSignatures()
	}
	required := tx.required
	if !tx.validated && tx.action != nil {
		required = []chain.Authorization{{Account: tx.action.From.Hex()}}
	}
	return chain.MissingFromRequired(required, func(chain.Authorization) bool { return tx.sig != nil })
}

func (tx *Transaction) HasAllRequiredSignatures() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.raw != nil && len(tx.missingSignatures()) == 0
}

func (tx *Transaction) IsMultisig() bool {
	return tx.multisig != nil
}

func (tx *Transaction) Multisig() *Multisig {
	return tx.multisig
}

// TransactionID is the hash of the signed envelope, or the safeTxHash for
// multisig.
func (tx *Transaction) TransactionID() (string, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.raw == nil {
		return "", chain.NewError(chain.ErrNotPrepared, "transaction is not prepared")
	}
	if tx.multisig != nil {
		return tx.multisig.SafeTxHash().Hex(), nil
	}
	if tx.signed == nil {
		return "", chain.NewError(chain.ErrMissingRequiredSignature, "the transaction id is known once it is signed")
	}
	return tx.signed.Hash().Hex(), nil
}

// Send broadcasts the signed envelope. It never reaches the node while the
// signature is missing. A Safe transaction is executed through its parent
// transaction instead.
func (tx *Transaction) Send(ctx context.Context, level chain.ConfirmLevel) (*chain.SendResult, error) {
	tx.mu.Lock()
	if tx.raw == nil {
		tx.mu.Unlock()
		return nil, chain.NewError(chain.ErrNotPrepared, "transaction is not prepared")
	}
	if missing := tx.missingSignatures(); len(missing) > 0 {
		tx.mu.Unlock()
		return nil, chain.NewError(chain.ErrMissingRequiredSignature, "missing %d signature(s)", len(missing))
	}
	if tx.multisig != nil {
		tx.mu.Unlock()
		return nil, chain.NewError(chain.ErrInvalidOptions, "a safe transaction is sent through its parent transaction")
	}
	signed := tx.signed
	tx.mu.Unlock()

	return tx.state.SendTransaction(ctx, signed, level)
}

func (tx *Transaction) RequiresParentTransaction() bool {
	return tx.multisig != nil
}

// ParentTransaction wraps the fully signed Safe transaction into an ordinary
// transaction from executor that calls execTransaction. The parent still has
// to be signed by executor before it is sent.
func (tx *Transaction) ParentTransaction(ctx context.Context, executor common.Address) (*Transaction, error) {
	tx.mu.Lock()
	if tx.multisig == nil {
		tx.mu.Unlock()
		return nil, chain.NewError(chain.ErrInvalidOptions, "only safe transactions have a parent transaction")
	}
	if !tx.multisig.HasAllRequiredSignatures() {
		tx.mu.Unlock()
		return nil, chain.NewError(chain.ErrMissingRequiredSignature, "safe %s needs %d owner signature(s) before it can execute",
			tx.multisig.Address(), tx.multisig.Threshold())
	}
	safe := tx.multisig.SafeAddress()
	data, err := execTransactionData(tx.multisig.SafeTransaction(), tx.multisig.PackedSignatures())
	tx.mu.Unlock()
	if err != nil {
		return nil, chain.WrapError(chain.ErrInvalidActionShape, err, "encode execTransaction")
	}

	parent, err := NewTransaction(ctx, tx.state, &chain.TransactionOptions{})
	if err != nil {
		return nil, err
	}
	if err := parent.SetActions(Action{From: executor, To: &safe, Data: data}); err != nil {
		return nil, err
	}
	return parent, nil
}

// ApprovalTransaction is the on-chain alternative to an owner signature: a
// transaction from owner calling approveHash(safeTxHash).
func (tx *Transaction) ApprovalTransaction(ctx context.Context, owner common.Address) (*Transaction, error) {
	tx.mu.Lock()
	if tx.multisig == nil || !tx.multisig.prepared() {
		tx.mu.Unlock()
		return nil, chain.NewError(chain.ErrNotPrepared, "prepare the safe transaction before approving it")
	}
	if !tx.multisig.IsOwner(owner.Hex()) {
		tx.mu.Unlock()
		return nil, chain.NewError(chain.ErrInvalidOptions, "%s is not an owner of %s", owner.Hex(), tx.multisig.Address())
	}
	safe := tx.multisig.SafeAddress()
	hash := tx.multisig.SafeTxHash()
	tx.mu.Unlock()

	data, err := approveHashData(hash)
	if err != nil {
		return nil, chain.WrapError(chain.ErrInvalidActionShape, err, "encode approveHash")
	}
	approval, err := NewTransaction(ctx, tx.state, nil)
	if err != nil {
		return nil, err
	}
	if err := approval.SetActions(Action{From: owner, To: &safe, Data: data}); err != nil {
		return nil, err
	}
	return approval, nil
}

// AddApproval counts owner as signed once its approveHash call is on chain.
func (tx *Transaction) AddApproval(ctx context.Context, owner common.Address) error {
	return tx.AddSignatures(ctx, encodeSignature(approvalPlaceholder(owner)))
}
