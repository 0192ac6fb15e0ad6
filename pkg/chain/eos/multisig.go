package eos

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

const nameAlphabet = "12345abcdefghijklmnopqrstuvwxyz"

// MultisigOptions describe an account whose active permission is a threshold
// over owner keys, each with weight 1.
type MultisigOptions struct {
	chain.MultisigOptionsBase
	Version   int      `json:"version"`
	Threshold int      `json:"threshold"`
	Owners    []string `json:"owners"`
	// Account overrides the derived account name.
	Account string `json:"account,omitempty"`
}

func (MultisigOptions) ChainType() chain.ChainType { return chain.EOS }

// DeriveMultisigAccount is a pure function of version, threshold and the
// sorted owner keys.
func DeriveMultisigAccount(version, threshold int, owners []PublicKey) string {
	keys := make([]string, 0, len(owners))
	for _, o := range owners {
		keys = append(keys, o.String())
	}
	sort.Strings(keys)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%d|%s", version, threshold, strings.Join(keys, ","))))
	name := make([]byte, MaxNameLength)
	for i := range name {
		name[i] = nameAlphabet[int(sum[i])%len(nameAlphabet)]
	}
	return string(name)
}

// Multisig tracks owner signatures for one transaction. The owning
// transaction serializes access to it.
type Multisig struct {
	version   int
	threshold int
	account   string
	owners    []PublicKey
	digest    []byte
	buffer    []byte
	// signed is replaced wholesale on every accepted signature
	signed map[PublicKey]Signature
}

var _ chain.MultisigPlugin = (*Multisig)(nil)

func NewMultisig(opts MultisigOptions) (*Multisig, error) {
	if len(opts.Owners) == 0 {
		return nil, chain.NewError(chain.ErrInvalidOptions, "multisig needs at least one owner")
	}
	if opts.Threshold < 1 || opts.Threshold > len(opts.Owners) {
		return nil, chain.NewError(chain.ErrInvalidOptions, "threshold %d out of range for %d owners", opts.Threshold, len(opts.Owners))
	}
	seen := map[PublicKey]bool{}
	owners := make([]PublicKey, 0, len(opts.Owners))
	for _, o := range opts.Owners {
		key, err := ParsePublicKey(o)
		if err != nil {
			return nil, chain.WrapError(chain.ErrInvalidOptions, err, "multisig owner")
		}
		if seen[key] {
			return nil, chain.NewError(chain.ErrInvalidOptions, "duplicate multisig owner %s", o)
		}
		seen[key] = true
		owners = append(owners, key)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].String() < owners[j].String() })

	account := opts.Account
	if account == "" {
		account = DeriveMultisigAccount(opts.Version, opts.Threshold, owners)
	}
	if !IsValidName(account) {
		return nil, chain.NewError(chain.ErrInvalidOptions, "invalid multisig account %q", account)
	}
	return &Multisig{
		version:   opts.Version,
		threshold: opts.Threshold,
		account:   account,
		owners:    owners,
		signed:    map[PublicKey]Signature{},
	}, nil
}

func (m *Multisig) Address() string {
	return m.account
}

func (m *Multisig) Owners() []string {
	out := make([]string, 0, len(m.owners))
	for _, o := range m.owners {
		out = append(out, o.String())
	}
	return out
}

func (m *Multisig) OwnerKeys() []PublicKey {
	return append([]PublicKey(nil), m.owners...)
}

func (m *Multisig) Threshold() int {
	return m.threshold
}

func (m *Multisig) prepare(buffer, digest []byte) {
	m.buffer = buffer
	m.digest = digest
}

func (m *Multisig) reset() {
	m.buffer = nil
	m.digest = nil
	m.signed = map[PublicKey]Signature{}
}

func (m *Multisig) SignBuffer() ([]byte, error) {
	if m.buffer == nil {
		return nil, chain.NewError(chain.ErrNotPrepared, "multisig transaction is not prepared")
	}
	return append([]byte(nil), m.buffer...), nil
}

func (m *Multisig) isOwner(key PublicKey) bool {
	for _, o := range m.owners {
		if o == key {
			return true
		}
	}
	return false
}

// addSignatures accepts only signatures by owners. A second signature by an
// owner who already signed is ignored. Nothing changes when any signature is rejected.
func (m *Multisig) addSignatures(sigs []Signature) error {
	if m.digest == nil {
		return chain.NewError(chain.ErrNotPrepared, "multisig transaction is not prepared")
	}
	next := make(map[PublicKey]Signature, len(m.signed)+len(sigs))
	for k, v := range m.signed {
		next[k] = v
	}
	for _, sig := range sigs {
		key, err := sig.RecoverPublicKey(m.digest)
		if err != nil {
			return chain.WrapError(chain.ErrInvalidSignature, err, "recover signer")
		}
		if !m.isOwner(key) {
			return chain.NewError(chain.ErrInvalidSignature, "signer %s is not an owner of %s", key, m.account)
		}
		if _, ok := next[key]; ok {
			continue
		}
		next[key] = sig
	}
	m.signed = next
	return nil
}

func (m *Multisig) Signatures() []chain.Signature {
	set := chain.NewSignatureSet()
	for _, sig := range m.signed {
		set = set.With(chain.Signature(sig.String()))
	}
	return set.Slice()
}

func (m *Multisig) ownerAuthorizations() []chain.Authorization {
	out := make([]chain.Authorization, 0, len(m.owners))
	for _, o := range m.owners {
		out = append(out, chain.Authorization{Account: m.account, Permission: "active", PublicKey: chain.PublicKey(o.String())})
	}
	return out
}

func (m *Multisig) MissingSignatures() []chain.Authorization {
	return chain.MissingFromThreshold(m.ownerAuthorizations(), m.threshold, func(a chain.Authorization) bool {
		key, err := ParsePublicKey(string(a.PublicKey))
		if err != nil {
			return false
		}
		_, ok := m.signed[key]
		return ok
	})
}

func (m *Multisig) HasAllRequiredSignatures() bool {
	return m.MissingSignatures() == nil
}
