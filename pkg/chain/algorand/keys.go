package algorand

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

// ParsePrivateKey reads a base64 encoded 64 byte ed25519 key or a 25 word
// mnemonic.
func ParsePrivateKey(key chain.PrivateKey) (ed25519.PrivateKey, error) {
	s := strings.TrimSpace(string(key))
	if strings.Contains(s, " ") {
		sk, err := mnemonic.ToPrivateKey(s)
		if err != nil {
			return nil, chain.WrapError(chain.ErrInvalidOptions, err, "invalid algorand mnemonic")
		}
		return sk, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(b) != ed25519.PrivateKeySize {
		return nil, chain.NewError(chain.ErrInvalidOptions, "algorand private key must be %d base64 encoded bytes", ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(b), nil
}

func EncodePrivateKey(sk ed25519.PrivateKey) chain.PrivateKey {
	return chain.PrivateKey(base64.StdEncoding.EncodeToString(sk))
}

// PublicKeyOf is the account address, which is the base32 form of the
// ed25519 public key.
func PublicKeyOf(sk ed25519.PrivateKey) (chain.PublicKey, error) {
	acc, err := crypto.AccountFromPrivateKey(sk)
	if err != nil {
		return "", chain.WrapError(chain.ErrInvalidOptions, err, "algorand private key")
	}
	return chain.PublicKey(acc.Address.String()), nil
}

func encodeSignature(sig types.Signature) chain.Signature {
	return chain.Signature(base64.StdEncoding.EncodeToString(sig[:]))
}

func parseSignature(s chain.Signature) (types.Signature, error) {
	var sig types.Signature
	b, err := base64.StdEncoding.DecodeString(string(s))
	if err != nil || len(b) != len(sig) {
		return sig, chain.NewError(chain.ErrInvalidSignature, "algorand signatures are %d base64 encoded bytes", len(sig))
	}
	copy(sig[:], b)
	return sig, nil
}

func verify(addr types.Address, msg []byte, sig types.Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(addr[:]), msg, sig[:])
}
