package algorand

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

var txnPrefix = []byte("TX")

// Header holds the fields a transaction takes from the chain.
type Header struct {
	Fee         uint64
	FirstValid  uint64
	LastValid   uint64
	GenesisID   string
	GenesisHash types.Digest
}

// Transaction is an Algorand transaction with exactly one action. With
// multisig options the sender is the multisig address and the owners sign.
type Transaction struct {
	state *ChainState
	opts  chain.TransactionOptions

	mu        sync.Mutex
	action    *Action
	header    *Header
	txn       *types.Transaction
	raw       []byte
	buffer    []byte
	validated bool
	signer    types.Address
	sig       *types.Signature
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

func NewTransaction(state *ChainState, opts *chain.TransactionOptions) (*Transaction, error) {
	tx := &Transaction{state: state}
	if opts != nil {
		tx.opts = *opts
	}
	if tx.opts.ValidityWindow > DefaultValidityWindow {
		return nil, chain.NewError(chain.ErrInvalidOptions, "validity window %d exceeds %d rounds", tx.opts.ValidityWindow, DefaultValidityWindow)
	}
	if tx.opts.SignerPublicKey != "" {
		if _, err := types.DecodeAddress(string(tx.opts.SignerPublicKey)); err != nil {
			return nil, chain.WrapError(chain.ErrInvalidOptions, err, "signer public key")
		}
	}
	if tx.opts.Multisig != nil {
		msOpts, ok := multisigOptions(tx.opts.Multisig)
		if !ok {
			return nil, chain.NewError(chain.ErrInvalidOptions, "multisig options for %s given to an algorand transaction", tx.opts.Multisig.ChainType())
		}
		ms, err := NewMultisig(msOpts)
		if err != nil {
			return nil, err
		}
		tx.multisig = ms
	}
	return tx, nil
}

func (tx *Transaction) ChainType() chain.ChainType { return chain.Algorand }

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
		return nil, chain.NewError(chain.ErrInvalidActionShape, "algorand transactions take raw algorand actions, got %T", a)
	}
	return validateRaw(&raw)
}

func (tx *Transaction) checkMultisigFrom(a *Action) error {
	if tx.multisig == nil || a.From == tx.multisig.MultisigAddress() {
		return nil
	}
	return chain.NewError(chain.ErrMultisigFromMismatch,
		"action is sent from %s but the multisig options derive %s", a.From.String(), tx.multisig.Address())
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
		return chain.NewError(chain.ErrInvalidActionShape, "algorand transactions carry exactly one action, got %d", len(actions))
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
	tx.txn = nil
	tx.raw = nil
	tx.buffer = nil
	tx.validated = false
	tx.signer = types.Address{}
	tx.sig = nil
	if tx.multisig != nil {
		tx.multisig.reset()
	}
}

// PrepareToBeSigned fills fee, validity rounds and genesis from the node's
// suggested params and encodes the body. A body that already exists is kept.
func (tx *Transaction) PrepareToBeSigned(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.raw != nil {
		return nil
	}
	if tx.action == nil {
		return chain.NewError(chain.ErrInvalidActionShape, "transaction has no action")
	}
	params, err := tx.state.SuggestedParams(ctx)
	if err != nil {
		return err
	}
	first, last := validityRounds(uint64(params.FirstRoundValid), tx.opts)
	header := &Header{
		FirstValid: first,
		LastValid:  last,
		GenesisID:  params.GenesisID,
	}
	if len(params.GenesisHash) != len(header.GenesisHash) {
		return chain.NewError(chain.ErrChainConnectFailed, "node returned a %d byte genesis hash", len(params.GenesisHash))
	}
	copy(header.GenesisHash[:], params.GenesisHash)

	txn := ActionHelper{}.ToSdkEncoded(tx.action)
	applyHeader(&txn, header)
	header.Fee = computeFee(txn, params, tx.opts, tx.multisig)
	txn.Fee = types.MicroAlgos(header.Fee)
	tx.adopt(header, &txn, msgpack.Encode(txn))
	log.Debug().Str("from", tx.action.From.String()).Uint64("fee", header.Fee).Uint64("lastValid", header.LastValid).Msg("algorand transaction prepared")
	return nil
}

// validityRounds converts ExpireSeconds into rounds after the node's first
// valid round, keeping the range within DefaultValidityWindow. Without it the
// range is ValidityWindow rounds long.
func validityRounds(chainFirst uint64, opts chain.TransactionOptions) (uint64, uint64) {
	if opts.ExpireSeconds > 0 {
		last := chainFirst + uint64(time.Duration(opts.ExpireSeconds)*time.Second/BlockFrequency)
		first := chainFirst
		if last > DefaultValidityWindow && last-DefaultValidityWindow > first {
			first = last - DefaultValidityWindow
		}
		return first, last
	}
	window := opts.ValidityWindow
	if window == 0 {
		window = DefaultValidityWindow
	}
	return chainFirst, chainFirst + window
}

func applyHeader(txn *types.Transaction, h *Header) {
	txn.Fee = types.MicroAlgos(h.Fee)
	txn.FirstValid = types.Round(h.FirstValid)
	txn.LastValid = types.Round(h.LastValid)
	txn.GenesisID = h.GenesisID
	txn.GenesisHash = h.GenesisHash
}

// computeFee uses the flat fee when asked for one, otherwise the per byte fee
// times the signed size. Either way the result is at least the minimum fee.
func computeFee(txn types.Transaction, params types.SuggestedParams, opts chain.TransactionOptions, ms *Multisig) uint64 {
	minFee := params.MinFee
	if minFee == 0 {
		minFee = minTxnFee
	}
	var fee uint64
	switch {
	case opts.FlatFee:
		fee = opts.Fee
	case params.FlatFee && opts.Fee == 0:
		fee = uint64(params.Fee)
	default:
		perByte := opts.Fee
		if perByte == 0 {
			perByte = uint64(params.Fee)
		}
		fee = perByte * estimateSize(txn, ms)
	}
	if fee < minFee {
		fee = minFee
	}
	return fee
}

// estimateSize is the length of the signed envelope with placeholder
// signatures from every signer.
func estimateSize(txn types.Transaction, ms *Multisig) uint64 {
	var placeholder types.Signature
	for i := range placeholder {
		placeholder[i] = 0xff
	}
	stx := types.SignedTxn{Txn: txn}
	if ms == nil {
		stx.Sig = placeholder
	} else {
		stx.Msig = ms.MultisigSig()
		for i := range stx.Msig.Subsigs {
			stx.Msig.Subsigs[i].Sig = placeholder
		}
	}
	return uint64(len(msgpack.Encode(stx)))
}

func (tx *Transaction) adopt(header *Header, txn *types.Transaction, raw []byte) {
	tx.header = header
	tx.txn = txn
	tx.raw = raw
	tx.buffer = append(append([]byte(nil), txnPrefix...), raw...)
	if tx.multisig != nil {
		tx.multisig.prepare(tx.buffer)
	}
}

// SetFromRaw adopts a msgpack body. A signed envelope brings its signature
// or multisig subsignatures along.
func (tx *Transaction) SetFromRaw(_ context.Context, raw []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.hasAnySignatures() {
		if bytes.Equal(raw, tx.raw) || bytes.Equal(raw, tx.signedEnvelope()) {
			return nil
		}
		return chain.NewError(chain.ErrMutationAfterSignature, "cannot replace the body of a signed transaction")
	}

	var stx types.SignedTxn
	signed := msgpack.Decode(raw, &stx) == nil && stx.Txn.Type != ""
	txn := stx.Txn
	if !signed {
		if err := msgpack.Decode(raw, &txn); err != nil {
			return chain.WrapError(chain.ErrInvalidActionShape, err, "decode transaction")
		}
	}
	a, err := fromSdk(&txn)
	if err != nil {
		return err
	}
	if err := tx.checkMultisigFrom(a); err != nil {
		return err
	}
	if gid := tx.state.GenesisID(); gid != "" && txn.GenesisID != "" && gid != txn.GenesisID {
		return chain.NewError(chain.ErrInvalidOptions, "body is for %s, connected to %s", txn.GenesisID, gid)
	}
	header := &Header{
		Fee:         uint64(txn.Fee),
		FirstValid:  uint64(txn.FirstValid),
		LastValid:   uint64(txn.LastValid),
		GenesisID:   txn.GenesisID,
		GenesisHash: txn.GenesisHash,
	}

	tx.action = a
	tx.resetDerived()
	body := append([]byte(nil), raw...)
	if signed {
		body = msgpack.Encode(txn)
	}
	tx.adopt(header, &txn, body)
	if !signed {
		return nil
	}
	return tx.importSignatures(&stx)
}

func (tx *Transaction) importSignatures(stx *types.SignedTxn) error {
	if tx.multisig != nil {
		if len(stx.Msig.Subsigs) == 0 {
			return nil
		}
		if err := tx.multisig.importMultisig(stx.Msig); err != nil {
			tx.resetDerived()
			return err
		}
		tx.validated = true
		return nil
	}
	if len(stx.Msig.Subsigs) > 0 {
		tx.resetDerived()
		return chain.NewError(chain.ErrInvalidOptions, "envelope is multisig signed, the transaction has no multisig options")
	}
	if stx.Sig == (types.Signature{}) {
		return nil
	}
	signer := tx.action.From
	if stx.AuthAddr != (types.Address{}) {
		signer = stx.AuthAddr
	}
	if !verify(signer, tx.buffer, stx.Sig) {
		tx.resetDerived()
		return chain.NewError(chain.ErrInvalidSignature, "envelope signature does not verify for %s", signer.String())
	}
	sig := stx.Sig
	tx.signer = signer
	tx.sig = &sig
	tx.validated = true
	return nil
}

func (tx *Transaction) HasRaw() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.raw != nil
}

// Raw is the msgpack encoding of the unsigned transaction.
func (tx *Transaction) Raw() []byte {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.raw == nil {
		return nil
	}
	return append([]byte(nil), tx.raw...)
}

func (tx *Transaction) signedEnvelope() []byte {
	if tx.txn == nil {
		return nil
	}
	stx := types.SignedTxn{Txn: *tx.txn}
	if tx.multisig != nil {
		stx.Msig = tx.multisig.MultisigSig()
	} else if tx.sig != nil {
		stx.Sig = *tx.sig
		if tx.signer != tx.action.From {
			stx.AuthAddr = tx.signer
		}
	}
	return msgpack.Encode(stx)
}

// SignedRaw is the signed envelope as it is broadcast, with whatever
// signatures are attached so far.
func (tx *Transaction) SignedRaw() ([]byte, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !tx.hasAnySignatures() {
		return nil, chain.NewError(chain.ErrMissingRequiredSignature, "transaction is not signed")
	}
	return tx.signedEnvelope(), nil
}

// SignBuffer is "TX" followed by the body.
func (tx *Transaction) SignBuffer() ([]byte, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.buffer == nil {
		return nil, chain.NewError(chain.ErrNotPrepared, "transaction is not prepared")
	}
	return append([]byte(nil), tx.buffer...), nil
}

// Validate resolves the signer. A rekeyed sender is signed for by its auth
// address, which is read from the chain.
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

	signer := from
	if ms == nil {
		info, err := tx.state.Account(ctx, from)
		if err != nil {
			return err
		}
		if info.AuthAddr != "" {
			auth, err := types.DecodeAddress(info.AuthAddr)
			if err != nil {
				return chain.WrapError(chain.ErrUnknown, err, "auth address of %s", from.String())
			}
			signer = auth
		}
		if pk := tx.opts.SignerPublicKey; pk != "" && string(pk) != signer.String() {
			return chain.NewError(chain.ErrInvalidOptions, "%s is signed for by %s, not %s", from.String(), signer.String(), pk)
		}
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.generation != generation {
		return chain.NewError(chain.ErrNotPrepared, "transaction changed while validating")
	}
	tx.signer = signer
	tx.validated = true
	log.Debug().Str("from", from.String()).Str("signer", signer.String()).Bool("multisig", ms != nil).Msg("algorand transaction validated")
	return nil
}

func (tx *Transaction) IsValidated() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.validated
}

func (tx *Transaction) requiredAuthorizations() []chain.Authorization {
	if tx.multisig != nil {
		return tx.multisig.ownerAuthorizations()
	}
	if tx.action == nil {
		return nil
	}
	signer := tx.action.From
	if tx.validated {
		signer = tx.signer
	}
	return []chain.Authorization{{Account: tx.action.From.String(), PublicKey: chain.PublicKey(signer.String())}}
}

func (tx *Transaction) RequiredAuthorizations() []chain.Authorization {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.requiredAuthorizations()
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
	return []chain.Signature{encodeSignature(*tx.sig)}
}

func (tx *Transaction) HasAnySignatures() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.hasAnySignatures()
}

// AddSignatures verifies each signature against the sign buffer. Nothing is
// attached when any signature is rejected.
func (tx *Transaction) AddSignatures(_ context.Context, sigs ...chain.Signature) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !tx.validated {
		return chain.NewError(chain.ErrNotValidated, "validate the transaction before adding signatures")
	}
	parsed := make([]types.Signature, 0, len(sigs))
	for _, s := range sigs {
		sig, err := parseSignature(s)
		if err != nil {
			return err
		}
		parsed = append(parsed, sig)
	}
	return tx.addSignatures(parsed)
}

func (tx *Transaction) addSignatures(sigs []types.Signature) error {
	if tx.multisig != nil {
		if err := tx.multisig.addSignatures(sigs); err != nil {
			return err
		}
		log.Trace().Int("signatures", len(tx.multisig.signed)).Str("multisig", tx.multisig.Address()).Msg("algorand multisig signatures attached")
		return nil
	}
	var accepted *types.Signature
	for i := range sigs {
		if !verify(tx.signer, tx.buffer, sigs[i]) {
			return chain.NewError(chain.ErrInvalidSignature, "signature does not verify for %s", tx.signer.String())
		}
		if accepted == nil {
			accepted = &sigs[i]
		}
	}
	if accepted != nil && tx.sig == nil {
		tx.sig = accepted
	}
	return nil
}

// Sign signs the transaction with every key concurrently through the SDK and
// attaches the results in one step.
func (tx *Transaction) Sign(ctx context.Context, keys ...chain.PrivateKey) error {
	tx.mu.Lock()
	if !tx.validated {
		tx.mu.Unlock()
		return chain.NewError(chain.ErrNotValidated, "validate the transaction before signing")
	}
	txn := *tx.txn
	buffer := tx.buffer
	ms := tx.multisig
	tx.mu.Unlock()

	var sigs []types.Signature
	var err error
	if ms != nil {
		sigs, err = signMultisig(ctx, ms, txn, keys)
	} else {
		sigs, err = chain.MapConcurrently(ctx, keys, func(_ context.Context, k chain.PrivateKey) (types.Signature, error) {
			sk, err := ParsePrivateKey(k)
			if err != nil {
				return types.Signature{}, err
			}
			_, encoded, err := crypto.SignTransaction(sk, txn)
			if err != nil {
				return types.Signature{}, chain.WrapError(chain.ErrInvalidOptions, err, "sign")
			}
			var stx types.SignedTxn
			if err := msgpack.Decode(encoded, &stx); err != nil {
				return types.Signature{}, chain.WrapError(chain.ErrUnknown, err, "decode signed transaction")
			}
			return stx.Sig, nil
		})
	}
	if err != nil {
		return err
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !bytes.Equal(buffer, tx.buffer) {
		return chain.NewError(chain.ErrMutationAfterSignature, "transaction changed while signing")
	}
	return tx.addSignatures(sigs)
}

// signMultisig signs with every owner key, merges the envelopes with the SDK
// and returns the subsignatures of the merged envelope.
func signMultisig(ctx context.Context, ms *Multisig, txn types.Transaction, keys []chain.PrivateKey) ([]types.Signature, error) {
	envelopes, err := chain.MapConcurrently(ctx, keys, func(_ context.Context, k chain.PrivateKey) ([]byte, error) {
		sk, err := ParsePrivateKey(k)
		if err != nil {
			return nil, err
		}
		_, encoded, err := crypto.SignMultisigTransaction(sk, ms.Account(), txn)
		if err != nil {
			return nil, chain.WrapError(chain.ErrInvalidSignature, err, "key is not an owner of %s", ms.Address())
		}
		return encoded, nil
	})
	if err != nil || len(envelopes) == 0 {
		return nil, err
	}
	merged := envelopes[0]
	if len(envelopes) > 1 {
		if _, merged, err = crypto.MergeMultisigTransactions(envelopes...); err != nil {
			return nil, chain.WrapError(chain.ErrInvalidSignature, err, "merge multisig signatures")
		}
	}
	var stx types.SignedTxn
	if err := msgpack.Decode(merged, &stx); err != nil {
		return nil, chain.WrapError(chain.ErrUnknown, err, "decode signed transaction")
	}
	var sigs []types.Signature
	for _, sub := range stx.Msig.Subsigs {
		if sub.Sig != (types.Signature{}) {
			sigs = append(sigs, sub.Sig)
		}
	}
	return sigs, nil
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
	return chain.MissingFromRequired(tx.requiredAuthorizations(), func(chain.Authorization) bool { return tx.sig != nil })
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

// TransactionID does not depend on the signatures, so it is known once the
// body exists.
func (tx *Transaction) TransactionID() (string, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.txn == nil {
		return "", chain.NewError(chain.ErrNotPrepared, "transaction is not prepared")
	}
	return crypto.GetTxID(*tx.txn), nil
}

// Send refuses to broadcast until every required signature is attached.
func (tx *Transaction) Send(ctx context.Context, level chain.ConfirmLevel) (*chain.SendResult, error) {
	tx.mu.Lock()
	if tx.raw == nil {
		tx.mu.Unlock()
		return nil, chain.NewError(chain.ErrNotPrepared, "transaction is not prepared")
	}
	if missing := tx.missingSignatures(); len(missing) > 0 {
		tx.mu.Unlock()
		return nil, chain.NewError(chain.ErrMissingRequiredSignature, "missing signatures from %v", missing)
	}
	stx := tx.signedEnvelope()
	lastValid := tx.header.LastValid
	tx.mu.Unlock()

	return tx.state.SendTransaction(ctx, stx, lastValid, level)
}
