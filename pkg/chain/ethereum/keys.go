package ethereum

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

var errMalformedEnvelope = errors.New("malformed safe transaction envelope")

func ParsePrivateKey(k chain.PrivateKey) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(string(k), "0x"))
	if err != nil {
		return nil, chain.WrapError(chain.ErrInvalidOptions, err, "private key")
	}
	return key, nil
}

func EncodePrivateKey(key *ecdsa.PrivateKey) chain.PrivateKey {
	return chain.PrivateKey(hexutil.Encode(crypto.FromECDSA(key)))
}

// EncodePublicKey returns the uncompressed public key as 0x-hex.
func EncodePublicKey(key *ecdsa.PublicKey) chain.PublicKey {
	return chain.PublicKey(hexutil.Encode(crypto.FromECDSAPub(key)))
}

func unmarshalPublicKey(k chain.PublicKey) (*ecdsa.PublicKey, error) {
	b, err := hexutil.Decode(string(k))
	if err != nil {
		return nil, err
	}
	return crypto.UnmarshalPubkey(b)
}

// sigKind tells how a 65 byte r||s||v signature is meant to be checked.
type sigKind int

const (
	sigECDSA sigKind = iota
	// sigApproved is the Safe placeholder for an owner who called approveHash:
	// r holds the owner address, s is zero and v is 1.
	sigApproved
)

// parseSignature decodes a 0x-hex signature and returns it with v as a
// recovery id (0 or 1).
func parseSignature(s chain.Signature) ([]byte, sigKind, error) {
	sig, err := hexutil.Decode(string(s))
	if err != nil {
		return nil, 0, chain.WrapError(chain.ErrInvalidSignature, err, "signature is not hex")
	}
	if len(sig) != crypto.SignatureLength {
		return nil, 0, chain.NewError(chain.ErrInvalidSignature, "signature has %d bytes, want %d", len(sig), crypto.SignatureLength)
	}
	v := sig[crypto.RecoveryIDOffset]
	switch {
	case v == 1 && isZero(sig[32:64]):
		return sig, sigApproved, nil
	case v == 0 || v == 1:
	case v == 27 || v == 28:
		sig[crypto.RecoveryIDOffset] = v - 27
	default:
		return nil, 0, chain.NewError(chain.ErrInvalidSignature, "unsupported signature v %d", v)
	}
	return sig, sigECDSA, nil
}

func isZero(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}

// withSafeV writes v of an ECDSA signature in the 27/28 form the Safe
// contract expects. Approval placeholders keep v = 1.
func withSafeV(sig []byte) []byte {
	out := append([]byte(nil), sig...)
	if out[crypto.RecoveryIDOffset] < 27 && !isZero(out[32:64]) {
		out[crypto.RecoveryIDOffset] += 27
	}
	return out
}

func encodeSignature(sig []byte) chain.Signature {
	return chain.Signature(hexutil.Encode(withSafeV(sig)))
}

func approvalPlaceholder(owner common.Address) []byte {
	sig := make([]byte, crypto.SignatureLength)
	copy(sig[:32], common.LeftPadBytes(owner.Bytes(), 32))
	sig[crypto.RecoveryIDOffset] = 1
	return sig
}

func placeholderOwner(sig []byte) common.Address {
	return common.BytesToAddress(sig[12:32])
}

func recoverAddress(hash []byte, sig []byte) (common.Address, error) {
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, chain.WrapError(chain.ErrInvalidSignature, err, "recover signer")
	}
	return crypto.PubkeyToAddress(*pub), nil
}
