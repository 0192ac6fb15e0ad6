package ethereum

import (
	"bytes"
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

// MultisigOptions describe a Gnosis Safe. Without an Address the Safe address
// is predicted from the proxy factory, which needs the chain.
type MultisigOptions struct {
	chain.MultisigOptionsBase
	Threshold int      `json:"threshold"`
	Owners    []string `json:"owners"`
	SaltNonce uint64   `json:"saltNonce,omitempty"`
	Address   string   `json:"address,omitempty"`
}

func (MultisigOptions) ChainType() chain.ChainType { return chain.Ethereum }

func (o MultisigOptions) ownerAddresses() ([]common.Address, error) {
	if len(o.Owners) == 0 {
		return nil, chain.NewError(chain.ErrInvalidOptions, "multisig needs at least one owner")
	}
	if o.Threshold < 1 || o.Threshold > len(o.Owners) {
		return nil, chain.NewError(chain.ErrInvalidOptions, "threshold %d out of range for %d owners", o.Threshold, len(o.Owners))
	}
	seen := map[common.Address]bool{}
	out := make([]common.Address, 0, len(o.Owners))
	for _, owner := range o.Owners {
		if !common.IsHexAddress(owner) {
			return nil, chain.NewError(chain.ErrInvalidOptions, "multisig owner %q is not an address", owner)
		}
		addr := common.HexToAddress(owner)
		if seen[addr] {
			return nil, chain.NewError(chain.ErrInvalidOptions, "duplicate multisig owner %s", owner)
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return sortAddresses(out), nil
}

// ResolveSafeAddress returns the configured Safe address or predicts the
// address the factory deploys the Safe to.
func ResolveSafeAddress(ctx context.Context, state *ChainState, opts MultisigOptions) (common.Address, error) {
	owners, err := opts.ownerAddresses()
	if err != nil {
		return common.Address{}, err
	}
	if opts.Address != "" {
		if !common.IsHexAddress(opts.Address) {
			return common.Address{}, chain.NewError(chain.ErrInvalidOptions, "safe address %q is not an address", opts.Address)
		}
		return common.HexToAddress(opts.Address), nil
	}
	deployment := state.SafeDeployment()
	initializer, err := safeInitializer(owners, opts.Threshold, deployment.FallbackHandler)
	if err != nil {
		return common.Address{}, chain.WrapError(chain.ErrInvalidOptions, err, "safe initializer")
	}
	code, err := state.ProxyCreationCode(ctx, deployment.Factory)
	if err != nil {
		return common.Address{}, err
	}
	salt := new(big.Int).SetUint64(opts.SaltNonce)
	return PredictSafeAddress(deployment.Factory, deployment.Singleton, code, initializer, salt), nil
}

// Multisig collects owner signatures over a safeTxHash. The owning
// transaction serializes access to it.
type Multisig struct {
	address   common.Address
	owners    []common.Address
	threshold int

	safeTx *SafeTransaction
	hash   common.Hash
	// signed is replaced wholesale on every accepted signature; approvals are
	// stored as their placeholder signature
	signed map[common.Address][]byte
}

var _ chain.MultisigPlugin = (*Multisig)(nil)

func NewMultisig(opts MultisigOptions, address common.Address) (*Multisig, error) {
	owners, err := opts.ownerAddresses()
	if err != nil {
		return nil, err
	}
	return &Multisig{
		address:   address,
		owners:    owners,
		threshold: opts.Threshold,
		signed:    map[common.Address][]byte{},
	}, nil
}

func (m *Multisig) Address() string {
	return m.address.Hex()
}

func (m *Multisig) SafeAddress() common.Address {
	return m.address
}

func (m *Multisig) Owners() []string {
	out := make([]string, 0, len(m.owners))
	for _, o := range m.owners {
		out = append(out, o.Hex())
	}
	return out
}

func (m *Multisig) Threshold() int {
	return m.threshold
}

func (m *Multisig) prepare(chainID *big.Int, tx *SafeTransaction) {
	m.safeTx = tx
	m.hash = tx.Hash(chainID, m.address)
}

func (m *Multisig) reset() {
	m.safeTx = nil
	m.hash = common.Hash{}
	m.signed = map[common.Address][]byte{}
}

func (m *Multisig) prepared() bool {
	return m.safeTx != nil
}

// SignBuffer is the safeTxHash.
func (m *Multisig) SignBuffer() ([]byte, error) {
	if !m.prepared() {
		return nil, chain.NewError(chain.ErrNotPrepared, "multisig transaction is not prepared")
	}
	return m.hash.Bytes(), nil
}

func (m *Multisig) SafeTxHash() common.Hash {
	return m.hash
}

func (m *Multisig) SafeTransaction() *SafeTransaction {
	if m.safeTx == nil {
		return nil
	}
	cp := *m.safeTx
	return &cp
}

func (m *Multisig) IsOwner(addr string) bool {
	for _, o := range m.owners {
		if strings.EqualFold(o.Hex(), addr) {
			return true
		}
	}
	return false
}

// addSignatures accepts ECDSA signatures by owners and approval placeholders
// that approved reports as recorded on chain. Nothing changes when any
// signature is rejected.
func (m *Multisig) addSignatures(sigs []chain.Signature, approved func(common.Address) (bool, error)) error {
	if !m.prepared() {
		return chain.NewError(chain.ErrNotPrepared, "multisig transaction is not prepared")
	}
	next := make(map[common.Address][]byte, len(m.signed)+len(sigs))
	for k, v := range m.signed {
		next[k] = v
	}
	for _, s := range sigs {
		sig, kind, err := parseSignature(s)
		if err != nil {
			return err
		}
		var owner common.Address
		switch kind {
		case sigApproved:
			owner = placeholderOwner(sig)
			if !m.IsOwner(owner.Hex()) {
				return chain.NewError(chain.ErrInvalidSignature, "approver %s is not an owner of %s", owner.Hex(), m.Address())
			}
			ok, err := approved(owner)
			if err != nil {
				return err
			}
			if !ok {
				return chain.NewError(chain.ErrInvalidSignature, "%s has not approved %s on chain", owner.Hex(), m.hash.Hex())
			}
		default:
			owner, err = recoverAddress(m.hash.Bytes(), sig)
			if err != nil {
				return err
			}
			if !m.IsOwner(owner.Hex()) {
				return chain.NewError(chain.ErrInvalidSignature, "signer %s is not an owner of %s", owner.Hex(), m.Address())
			}
		}
		if _, ok := next[owner]; ok {
			continue
		}
		next[owner] = sig
	}
	m.signed = next
	return nil
}

func (m *Multisig) Signatures() []chain.Signature {
	set := chain.NewSignatureSet()
	for _, sig := range m.signed {
		set = set.With(encodeSignature(sig))
	}
	return set.Slice()
}

// PackedSignatures concatenates the signatures ordered by owner address, the
// layout execTransaction checks them in.
func (m *Multisig) PackedSignatures() []byte {
	var buf bytes.Buffer
	for _, owner := range m.owners {
		sig, ok := m.signed[owner]
		if !ok {
			continue
		}
		buf.Write(withSafeV(sig))
	}
	return buf.Bytes()
}

func (m *Multisig) ownerAuthorizations() []chain.Authorization {
	out := make([]chain.Authorization, 0, len(m.owners))
	for _, o := range m.owners {
		out = append(out, chain.Authorization{Account: o.Hex()})
	}
	return out
}

func (m *Multisig) MissingSignatures() []chain.Authorization {
	return chain.MissingFromThreshold(m.ownerAuthorizations(), m.threshold, func(a chain.Authorization) bool {
		_, ok := m.signed[common.HexToAddress(a.Account)]
		return ok
	})
}

func (m *Multisig) HasAllRequiredSignatures() bool {
	return m.prepared() && m.MissingSignatures() == nil
}

// checkDeployed compares a deployed Safe's owners and threshold with the options.
func (m *Multisig) checkDeployed(owners []common.Address, threshold int) error {
	if threshold != m.threshold {
		return chain.NewError(chain.ErrInvalidOptions, "safe %s has threshold %d, options say %d", m.Address(), threshold, m.threshold)
	}
	onChain := sortAddresses(owners)
	if len(onChain) != len(m.owners) {
		return chain.NewError(chain.ErrInvalidOptions, "safe %s has %d owners, options list %d", m.Address(), len(onChain), len(m.owners))
	}
	for i := range onChain {
		if onChain[i] != m.owners[i] {
			return chain.NewError(chain.ErrInvalidOptions, "safe %s owner %s is not in the options", m.Address(), onChain[i].Hex())
		}
	}
	return nil
}
