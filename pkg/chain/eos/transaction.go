package eos

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

const (
	DefaultExpireSeconds = 300
	DefaultBlocksBehind  = 3
)

func resolveOptions(opts *chain.TransactionOptions) chain.TransactionOptions {
	var out chain.TransactionOptions
	if opts != nil {
		out = *opts
	}
	if out.ExpireSeconds <= 0 {
		out.ExpireSeconds = DefaultExpireSeconds
	}
	if out.BlocksBehind <= 0 {
		out.BlocksBehind = DefaultBlocksBehind
	}
	return out
}

// Transaction is an EOS transaction with one or more actions.
type Transaction struct {
	state *ChainState
	opts  chain.TransactionOptions

	mu        sync.Mutex
	actions   []*Action
	header    *Header
	raw       []byte
	buffer    []byte
	digest    []byte
	required  []chain.Authorization
	validated bool
	sigs      chain.SignatureSet
	multisig  *Multisig

	// generation counts resets of everything derived from the actions.
	generation uint64
}

var _ chain.Transaction = (*Transaction)(nil)

func NewTransaction(state *ChainState, opts *chain.TransactionOptions) (*Transaction, error) {
	resolved := resolveOptions(opts)
	tx := &Transaction{state: state, opts: resolved}
	if resolved.Multisig != nil {
		msOpts, ok := resolved.Multisig.(MultisigOptions)
		if !ok {
			if p, isPtr := resolved.Multisig.(*MultisigOptions); isPtr && p != nil {
				msOpts, ok = *p, true
			}
		}
		if !ok {
			return nil, chain.NewError(chain.ErrInvalidOptions, "multisig options for %s given to an eos transaction", resolved.Multisig.ChainType())
		}
		ms, err := NewMultisig(msOpts)
		if err != nil {
			return nil, err
		}
		tx.multisig = ms
	}
	if resolved.SignerPublicKey != "" {
		if _, err := ParsePublicKey(string(resolved.SignerPublicKey)); err != nil {
			return nil, chain.WrapError(chain.ErrInvalidOptions, err, "signer public key")
		}
	}
	return tx, nil
}

func (tx *Transaction) ChainType() chain.ChainType { return chain.EOS }

func (tx *Transaction) Options() chain.TransactionOptions {
	return tx.opts
}

func (tx *Transaction) Actions() []chain.Action {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	out := make([]chain.Action, 0, len(tx.actions))
	for _, a := range tx.actions {
		out = append(out, *a)
	}
	return out
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

func toRawActions(actions []chain.Action) ([]*Action, error) {
	out := make([]*Action, 0, len(actions))
	for _, a := range actions {
		var raw *Action
		switch v := a.(type) {
		case Action:
			raw = &v
		case *Action:
			cp := *v
			raw = &cp
		default:
			return nil, chain.NewError(chain.ErrInvalidActionShape, "eos transactions take raw eos actions, got %T", a)
		}
		if _, err := validateRaw(raw); err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// checkMultisigActors rejects actions authorized by anyone but the multisig account.
func (tx *Transaction) checkMultisigActors(actions []*Action) error {
	if tx.multisig == nil {
		return nil
	}
	for _, a := range actions {
		for _, p := range a.Authorization {
			if p.Actor != tx.multisig.Address() {
				return chain.NewError(chain.ErrMultisigFromMismatch,
					"action %s is authorized by %s but the multisig account is %s", a, p.Actor, tx.multisig.Address())
			}
		}
	}
	return nil
}

func (tx *Transaction) hasAnySignatures() bool {
	if tx.multisig != nil {
		return len(tx.multisig.signed) > 0
	}
	return tx.sigs.Len() > 0
}

// SetActions replaces the action list and drops the header, body and
// validation derived from the previous one.
func (tx *Transaction) SetActions(actions ...chain.Action) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.hasAnySignatures() {
		return chain.NewError(chain.ErrMutationAfterSignature, "cannot change actions of a signed transaction")
	}
	raw, err := toRawActions(actions)
	if err != nil {
		return err
	}
	if err := tx.checkMultisigActors(raw); err != nil {
		return err
	}
	tx.actions = raw
	tx.resetDerived()
	return nil
}

// AddAction appends an action, or prepends it when asFirst is set.
func (tx *Transaction) AddAction(action chain.Action, asFirst bool) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.hasAnySignatures() {
		return chain.NewError(chain.ErrMutationAfterSignature, "cannot change actions of a signed transaction")
	}
	raw, err := toRawActions([]chain.Action{action})
	if err != nil {
		return err
	}
	if err := tx.checkMultisigActors(raw); err != nil {
		return err
	}
	if asFirst {
		tx.actions = append(raw, tx.actions...)
	} else {
		tx.actions = append(tx.actions, raw...)
	}
	tx.resetDerived()
	return nil
}

func (tx *Transaction) resetDerived() {
	tx.generation++
	tx.header = nil
	tx.raw = nil
	tx.buffer = nil
	tx.digest = nil
	tx.required = nil
	tx.validated = false
	tx.sigs = chain.NewSignatureSet()
	if tx.multisig != nil {
		tx.multisig.reset()
	}
}

// PrepareToBeSigned derives the header from the reference block and packs
// the body. A body that already exists is kept as is.
func (tx *Transaction) PrepareToBeSigned(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.raw != nil {
		return nil
	}
	if len(tx.actions) == 0 {
		return chain.NewError(chain.ErrInvalidActionShape, "transaction has no actions")
	}
	header, err := tx.deriveHeader(ctx)
	if err != nil {
		return err
	}
	raw, err := serializeTransaction(*header, tx.actions)
	if err != nil {
		return chain.WrapError(chain.ErrInvalidActionShape, err, "serialize transaction")
	}
	if err := tx.adopt(header, raw); err != nil {
		return err
	}
	log.Debug().Int("actions", len(tx.actions)).Uint32("expiration", header.Expiration).Msg("eos transaction prepared")
	return nil
}

func (tx *Transaction) deriveHeader(ctx context.Context) (*Header, error) {
	info, err := tx.state.Info(ctx)
	if err != nil {
		return nil, err
	}
	refNum := info.HeadBlockNum
	if refNum > uint64(tx.opts.BlocksBehind) {
		refNum -= uint64(tx.opts.BlocksBehind)
	}
	block, err := tx.state.Block(ctx, refNum)
	if err != nil {
		return nil, err
	}
	headTime, err := info.HeadTime()
	if err != nil {
		return nil, errors.Wrap(err, "parse head block time")
	}
	return &Header{
		Expiration:     uint32(headTime.Add(time.Duration(tx.opts.ExpireSeconds) * time.Second).Unix()),
		RefBlockNum:    uint16(block.BlockNum & 0xffff),
		RefBlockPrefix: block.RefBlockPrefix,
	}, nil
}

func (tx *Transaction) adopt(header *Header, raw []byte) error {
	buf, err := signBuffer(tx.state.ChainID(), raw)
	if err != nil {
		return chain.WrapError(chain.ErrInvalidOptions, err, "chain id")
	}
	tx.header = header
	tx.raw = raw
	tx.buffer = buf
	tx.digest = digest(buf)
	if tx.multisig != nil {
		tx.multisig.prepare(tx.buffer, tx.digest)
	}
	return nil
}

// SetFromRaw adopts a packed transaction body verbatim.
func (tx *Transaction) SetFromRaw(_ context.Context, raw []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.hasAnySignatures() {
		if bytes.Equal(raw, tx.raw) {
			return nil
		}
		return chain.NewError(chain.ErrMutationAfterSignature, "cannot replace the body of a signed transaction")
	}
	header, actions, err := deserializeTransaction(raw)
	if err != nil {
		return chain.WrapError(chain.ErrInvalidActionShape, err, "decode packed transaction")
	}
	if err := tx.checkMultisigActors(actions); err != nil {
		return err
	}
	tx.actions = actions
	tx.resetDerived()
	body := make([]byte, len(raw))
	copy(body, raw)
	return tx.adopt(&header, body)
}

func (tx *Transaction) HasRaw() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.raw != nil
}

func (tx *Transaction) Raw() []byte {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.raw == nil {
		return nil
	}
	return append([]byte(nil), tx.raw...)
}

func (tx *Transaction) SignBuffer() ([]byte, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.buffer == nil {
		return nil, chain.NewError(chain.ErrNotPrepared, "transaction is not prepared")
	}
	return append([]byte(nil), tx.buffer...), nil
}

func (tx *Transaction) declaredAuthorizations() []chain.Authorization {
	seen := map[string]bool{}
	var out []chain.Authorization
	for _, a := range tx.actions {
		for _, auth := range a.authorizations() {
			if seen[auth.String()] {
				continue
			}
			seen[auth.String()] = true
			out = append(out, auth)
		}
	}
	return out
}

// Validate resolves the public key of every declared authorization. Lookups
// run concurrently and share the chain state's permission cache.
func (tx *Transaction) Validate(ctx context.Context) error {
	tx.mu.Lock()
	if tx.raw == nil {
		tx.mu.Unlock()
		return chain.NewError(chain.ErrNotPrepared, "prepare the transaction before validating it")
	}
	declared := tx.declaredAuthorizations()
	multisig := tx.multisig != nil
	generation := tx.generation
	tx.mu.Unlock()

	var required []chain.Authorization
	switch {
	case multisig:
		required = declared
	case tx.opts.SignerPublicKey != "" && len(declared) == 1:
		key, _ := ParsePublicKey(string(tx.opts.SignerPublicKey))
		declared[0].PublicKey = chain.PublicKey(key.String())
		required = declared
	default:
		keys, err := chain.MapConcurrently(ctx, declared, func(ctx context.Context, auth chain.Authorization) (PublicKey, error) {
			return tx.state.PermissionKey(ctx, auth.Account, auth.Permission)
		})
		if err != nil {
			return err
		}
		required = make([]chain.Authorization, len(declared))
		for i, auth := range declared {
			auth.PublicKey = chain.PublicKey(keys[i].String())
			required[i] = auth
		}
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.generation != generation {
		return chain.NewError(chain.ErrNotPrepared, "transaction changed while validating")
	}
	tx.required = required
	tx.validated = true
	log.Debug().Int("required", len(required)).Bool("multisig", multisig).Msg("eos transaction validated")
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
	return tx.declaredAuthorizations()
}

func (tx *Transaction) Signatures() []chain.Signature {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.signatures()
}

func (tx *Transaction) signatures() []chain.Signature {
	if tx.multisig != nil {
		return tx.multisig.Signatures()
	}
	return tx.sigs.Slice()
}

func (tx *Transaction) HasAnySignatures() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.hasAnySignatures()
}

// signedKeys recovers the signer of every attached signature.
func (tx *Transaction) signedKeys() map[PublicKey]bool {
	out := map[PublicKey]bool{}
	for _, s := range tx.sigs.Slice() {
		sig, err := ParseSignature(string(s))
		if err != nil {
			continue
		}
		key, err := sig.RecoverPublicKey(tx.digest)
		if err != nil {
			continue
		}
		out[key] = true
	}
	return out
}

// AddSignatures verifies each signature against the sign buffer. A signature
// by a key that is not required fails the whole call and attaches nothing.
func (tx *Transaction) AddSignatures(_ context.Context, sigs ...chain.Signature) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.addSignatures(sigs)
}

func (tx *Transaction) addSignatures(sigs []chain.Signature) error {
	if !tx.validated {
		return chain.NewError(chain.ErrNotValidated, "validate the transaction before adding signatures")
	}
	parsed := make([]Signature, 0, len(sigs))
	for _, s := range sigs {
		sig, err := ParseSignature(string(s))
		if err != nil {
			return chain.WrapError(chain.ErrInvalidSignature, err, "parse signature")
		}
		parsed = append(parsed, sig)
	}
	if tx.multisig != nil {
		return tx.multisig.addSignatures(parsed)
	}

	signed := tx.signedKeys()
	next := tx.sigs
	for _, sig := range parsed {
		key, err := sig.RecoverPublicKey(tx.digest)
		if err != nil {
			return chain.WrapError(chain.ErrInvalidSignature, err, "recover signer")
		}
		if !tx.isRequiredKey(key) {
			return chain.NewError(chain.ErrInvalidSignature, "signature by %s is not required by this transaction", key)
		}
		if signed[key] {
			continue
		}
		signed[key] = true
		next = next.With(chain.Signature(sig.String()))
	}
	tx.sigs = next
	log.Trace().Int("signatures", tx.sigs.Len()).Msg("eos signatures attached")
	return nil
}

func (tx *Transaction) isRequiredKey(key PublicKey) bool {
	for _, auth := range tx.required {
		if auth.PublicKey == chain.PublicKey(key.String()) {
			return true
		}
	}
	return false
}

// Sign signs the sign buffer with every key concurrently and attaches the
// results in one step.
func (tx *Transaction) Sign(ctx context.Context, keys ...chain.PrivateKey) error {
	tx.mu.Lock()
	if !tx.validated {
		tx.mu.Unlock()
		return chain.NewError(chain.ErrNotValidated, "validate the transaction before signing")
	}
	dig := tx.digest
	tx.mu.Unlock()

	sigs, err := chain.MapConcurrently(ctx, keys, func(_ context.Context, k chain.PrivateKey) (chain.Signature, error) {
		pk, err := ParsePrivateKey(string(k))
		if err != nil {
			return "", chain.WrapError(chain.ErrInvalidOptions, err, "private key")
		}
		sig, err := pk.Sign(dig)
		if err != nil {
			return "", errors.Wrap(err, "sign")
		}
		return chain.Signature(sig.String()), nil
	})
	if err != nil {
		return err
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !bytes.Equal(dig, tx.digest) {
		return chain.NewError(chain.ErrMutationAfterSignature, "transaction changed while signing")
	}
	return tx.addSignatures(sigs)
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
	if !tx.validated {
		return chain.MissingFromRequired(tx.declaredAuthorizations(), func(chain.Authorization) bool { return false })
	}
	signed := tx.signedKeys()
	return chain.MissingFromRequired(tx.required, func(auth chain.Authorization) bool {
		key, err := ParsePublicKey(string(auth.PublicKey))
		return err == nil && signed[key]
	})
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

func (tx *Transaction) TransactionID() (string, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.raw == nil {
		return "", chain.NewError(chain.ErrNotPrepared, "transaction is not prepared")
	}
	return transactionID(tx.raw), nil
}

// Send broadcasts the transaction. It never reaches the node while a
// signature is missing.
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
	raw := append([]byte(nil), tx.raw...)
	sigs := tx.signatures()
	tx.mu.Unlock()

	return tx.state.SendTransaction(ctx, raw, sigs, level)
}
