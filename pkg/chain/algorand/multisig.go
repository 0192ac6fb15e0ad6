package algorand

import (
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

// MultisigOptions describe a native multisig account. Owner order is part of
// the address.
type MultisigOptions struct {
	chain.MultisigOptionsBase
	Version   uint8    `json:"version"`
	Threshold uint8    `json:"threshold"`
	Addrs     []string `json:"addrs"`
}

func (MultisigOptions) ChainType() chain.ChainType { return chain.Algorand }

func (o MultisigOptions) account() (crypto.MultisigAccount, []types.Address, error) {
	version := o.Version
	if version == 0 {
		version = 1
	}
	if len(o.Addrs) == 0 {
		return crypto.MultisigAccount{}, nil, chain.NewError(chain.ErrInvalidOptions, "multisig needs at least one owner")
	}
	if int(o.Threshold) < 1 || int(o.Threshold) > len(o.Addrs) {
		return crypto.MultisigAccount{}, nil, chain.NewError(chain.ErrInvalidOptions, "threshold %d out of range for %d owners", o.Threshold, len(o.Addrs))
	}
	seen := map[types.Address]bool{}
	owners := make([]types.Address, 0, len(o.Addrs))
	for _, s := range o.Addrs {
		addr, err := types.DecodeAddress(s)
		if err != nil {
			return crypto.MultisigAccount{}, nil, chain.WrapError(chain.ErrInvalidOptions, err, "multisig owner %q", s)
		}
		if seen[addr] {
			return crypto.MultisigAccount{}, nil, chain.NewError(chain.ErrInvalidOptions, "duplicate multisig owner %s", s)
		}
		seen[addr] = true
		owners = append(owners, addr)
	}
	ma, err := crypto.MultisigAccountWithParams(version, o.Threshold, owners)
	if err != nil {
		return crypto.MultisigAccount{}, nil, chain.WrapError(chain.ErrInvalidOptions, err, "multisig account")
	}
	return ma, owners, nil
}

// DeriveMultisigAddress hashes version, threshold and the ordered owner keys.
// It never calls the chain.
func DeriveMultisigAddress(opts MultisigOptions) (types.Address, error) {
	ma, _, err := opts.account()
	if err != nil {
		return types.Address{}, err
	}
	addr, err := ma.Address()
	if err != nil {
		return types.Address{}, chain.WrapError(chain.ErrInvalidOptions, err, "multisig address")
	}
	return addr, nil
}

// Multisig collects owner signatures over the transaction until the
// threshold is met.
type Multisig struct {
	account crypto.MultisigAccount
	address types.Address
	owners  []types.Address

	buffer []byte
	signed map[types.Address]types.Signature
}

var _ chain.MultisigPlugin = (*Multisig)(nil)

func NewMultisig(opts MultisigOptions) (*Multisig, error) {
	ma, owners, err := opts.account()
	if err != nil {
		return nil, err
	}
	addr, err := ma.Address()
	if err != nil {
		return nil, chain.WrapError(chain.ErrInvalidOptions, err, "multisig address")
	}
	return &Multisig{account: ma, address: addr, owners: owners}, nil
}

func (m *Multisig) Address() string {
	return m.address.String()
}

func (m *Multisig) MultisigAddress() types.Address {
	return m.address
}

func (m *Multisig) Account() crypto.MultisigAccount {
	return m.account
}

func (m *Multisig) Owners() []string {
	out := make([]string, len(m.owners))
	for i, o := range m.owners {
		out[i] = o.String()
	}
	return out
}

func (m *Multisig) Threshold() int {
	return int(m.account.Threshold)
}

func (m *Multisig) prepare(buffer []byte) {
	m.buffer = buffer
	m.signed = nil
}

func (m *Multisig) reset() {
	m.buffer = nil
	m.signed = nil
}

func (m *Multisig) SignBuffer() ([]byte, error) {
	if m.buffer == nil {
		return nil, chain.NewError(chain.ErrNotPrepared, "multisig transaction is not prepared")
	}
	return append([]byte(nil), m.buffer...), nil
}

func (m *Multisig) isOwner(addr types.Address) bool {
	for _, o := range m.owners {
		if o == addr {
			return true
		}
	}
	return false
}

// ownerOf finds the owner whose key produced sig over the buffer.
func (m *Multisig) ownerOf(sig types.Signature) (types.Address, bool) {
	for _, o := range m.owners {
		if verify(o, m.buffer, sig) {
			return o, true
		}
	}
	return types.Address{}, false
}

// addSignatures attaches every signature or none. A second signature from an
// owner who already signed is ignored.
func (m *Multisig) addSignatures(sigs []types.Signature) error {
	if m.buffer == nil {
		return chain.NewError(chain.ErrNotPrepared, "multisig transaction is not prepared")
	}
	next := make(map[types.Address]types.Signature, len(m.signed)+len(sigs))
	for k, v := range m.signed {
		next[k] = v
	}
	for _, sig := range sigs {
		owner, ok := m.ownerOf(sig)
		if !ok {
			return chain.NewError(chain.ErrInvalidSignature, "signature does not belong to any owner of %s", m.address.String())
		}
		if _, dup := next[owner]; !dup {
			next[owner] = sig
		}
	}
	m.signed = next
	return nil
}

// importMultisig takes the subsignatures of a signed envelope. The envelope
// must describe this account.
func (m *Multisig) importMultisig(msig types.MultisigSig) error {
	if msig.Version != m.account.Version || msig.Threshold != m.account.Threshold || len(msig.Subsigs) != len(m.account.Pks) {
		return chain.NewError(chain.ErrMultisigFromMismatch, "signed envelope belongs to another multisig account than %s", m.address.String())
	}
	var sigs []types.Signature
	for i, sub := range msig.Subsigs {
		if string(sub.Key) != string(m.account.Pks[i]) {
			return chain.NewError(chain.ErrMultisigFromMismatch, "signed envelope lists owner %d differently than %s", i, m.address.String())
		}
		if sub.Sig != (types.Signature{}) {
			if !verify(m.owners[i], m.buffer, sub.Sig) {
				return chain.NewError(chain.ErrInvalidSignature, "subsignature %d does not verify", i)
			}
			sigs = append(sigs, sub.Sig)
		}
	}
	return m.addSignatures(sigs)
}

// MultisigSig is the signature block of the signed envelope, one entry per
// owner in option order.
func (m *Multisig) MultisigSig() types.MultisigSig {
	msig := types.MultisigSig{Version: m.account.Version, Threshold: m.account.Threshold}
	for i, pk := range m.account.Pks {
		msig.Subsigs = append(msig.Subsigs, types.MultisigSubsig{Key: pk, Sig: m.signed[m.owners[i]]})
	}
	return msig
}

func (m *Multisig) Signatures() []chain.Signature {
	var out []chain.Signature
	for _, o := range m.owners {
		if sig, ok := m.signed[o]; ok {
			out = append(out, encodeSignature(sig))
		}
	}
	return out
}

func (m *Multisig) ownerAuthorizations() []chain.Authorization {
	out := make([]chain.Authorization, len(m.owners))
	for i, o := range m.owners {
		out[i] = chain.Authorization{Account: o.String(), PublicKey: chain.PublicKey(o.String())}
	}
	return out
}

func (m *Multisig) MissingSignatures() []chain.Authorization {
	return chain.MissingFromThreshold(m.ownerAuthorizations(), m.Threshold(), func(a chain.Authorization) bool {
		addr, err := types.DecodeAddress(a.Account)
		if err != nil {
			return false
		}
		_, ok := m.signed[addr]
		return ok
	})
}

func (m *Multisig) HasAllRequiredSignatures() bool {
	return m.buffer != nil && len(m.MissingSignatures()) == 0
}
