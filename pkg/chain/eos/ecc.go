package eos

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // EOS key checksums are ripemd160
)

const (
	PublicKeyLen  = 33
	SignatureLen  = 65
	privateKeyLen = 32

	legacyPubPrefix = "EOS"
	k1PubPrefix     = "PUB_K1_"
	k1PrivPrefix    = "PVT_K1_"
	k1SigPrefix     = "SIG_K1_"
	wifVersion      = 0x80
)

type PublicKey [PublicKeyLen]byte

type PrivateKey struct {
	key *ecdsa.PrivateKey
}

// Signature is the compact recoverable form: [recovery id + 31][r][s].
type Signature [SignatureLen]byte

func ripemdChecksum(data []byte, suffix string) []byte {
	h := ripemd160.New()
	h.Write(data)
	h.Write([]byte(suffix))
	return h.Sum(nil)[:4]
}

func encodeWithChecksum(data []byte, suffix string) string {
	out := make([]byte, 0, len(data)+4)
	out = append(out, data...)
	out = append(out, ripemdChecksum(data, suffix)...)
	return base58.Encode(out)
}

func decodeWithChecksum(s string, suffix string, size int) ([]byte, error) {
	raw := base58.Decode(s)
	if len(raw) != size+4 {
		return nil, fmt.Errorf("expected %d bytes, got %d", size+4, len(raw))
	}
	data, sum := raw[:size], raw[size:]
	if !bytes.Equal(sum, ripemdChecksum(data, suffix)) {
		return nil, fmt.Errorf("checksum mismatch")
	}
	return data, nil
}

// ParsePublicKey accepts the PUB_K1_ form and the legacy EOS form.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	var data []byte
	var err error
	switch {
	case strings.HasPrefix(s, k1PubPrefix):
		data, err = decodeWithChecksum(strings.TrimPrefix(s, k1PubPrefix), "K1", PublicKeyLen)
	case strings.HasPrefix(s, legacyPubPrefix):
		data, err = decodeWithChecksum(strings.TrimPrefix(s, legacyPubPrefix), "", PublicKeyLen)
	default:
		return pk, fmt.Errorf("unsupported public key format %q", s)
	}
	if err != nil {
		return pk, fmt.Errorf("invalid public key %q: %w", s, err)
	}
	copy(pk[:], data)
	// the all-zero key marks an account whose keys were given up
	if pk.IsZero() {
		return pk, nil
	}
	if _, err := crypto.DecompressPubkey(data); err != nil {
		return pk, fmt.Errorf("invalid public key %q: %w", s, err)
	}
	return pk, nil
}

func IsValidPublicKey(s string) bool {
	_, err := ParsePublicKey(s)
	return err == nil
}

func (k PublicKey) String() string {
	return k1PubPrefix + encodeWithChecksum(k[:], "K1")
}

func (k PublicKey) LegacyString() string {
	return legacyPubPrefix + encodeWithChecksum(k[:], "")
}

func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

func PublicKeyFromECDSA(pub *ecdsa.PublicKey) PublicKey {
	var pk PublicKey
	copy(pk[:], crypto.CompressPubkey(pub))
	return pk
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// ParsePrivateKey accepts the PVT_K1_ form and legacy WIF.
func ParsePrivateKey(s string) (*PrivateKey, error) {
	var data []byte
	if strings.HasPrefix(s, k1PrivPrefix) {
		d, err := decodeWithChecksum(strings.TrimPrefix(s, k1PrivPrefix), "K1", privateKeyLen)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		data = d
	} else {
		d, version, err := base58.CheckDecode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		if version != wifVersion || len(d) != privateKeyLen {
			return nil, fmt.Errorf("invalid private key: not a WIF key")
		}
		data = d
	}
	key, err := crypto.ToECDSA(data)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

func (k *PrivateKey) PublicKey() PublicKey {
	return PublicKeyFromECDSA(&k.key.PublicKey)
}

func (k *PrivateKey) String() string {
	return k1PrivPrefix + encodeWithChecksum(crypto.FromECDSA(k.key), "K1")
}

func (k *PrivateKey) WIF() string {
	return base58.CheckEncode(crypto.FromECDSA(k.key), wifVersion)
}

// Sign signs a 32 byte digest.
func (k *PrivateKey) Sign(digest []byte) (Signature, error) {
	var sig Signature
	rsv, err := crypto.Sign(digest, k.key)
	if err != nil {
		return sig, err
	}
	sig[0] = rsv[64] + 27 + 4
	copy(sig[1:], rsv[:64])
	return sig, nil
}

func ParseSignature(s string) (Signature, error) {
	var sig Signature
	if !strings.HasPrefix(s, k1SigPrefix) {
		return sig, fmt.Errorf("unsupported signature format %q", s)
	}
	data, err := decodeWithChecksum(strings.TrimPrefix(s, k1SigPrefix), "K1", SignatureLen)
	if err != nil {
		return sig, fmt.Errorf("invalid signature: %w", err)
	}
	copy(sig[:], data)
	return sig, nil
}

func (s Signature) String() string {
	return k1SigPrefix + encodeWithChecksum(s[:], "K1")
}

// RecoverPublicKey returns the key that produced s over digest.
func (s Signature) RecoverPublicKey(digest []byte) (PublicKey, error) {
	recID := int(s[0]) - 27 - 4
	if recID < 0 || recID > 3 {
		return PublicKey{}, fmt.Errorf("invalid recovery id %d", s[0])
	}
	rsv := make([]byte, 65)
	copy(rsv, s[1:])
	rsv[64] = byte(recID)
	pub, err := crypto.SigToPub(digest, rsv)
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKeyFromECDSA(pub), nil
}
