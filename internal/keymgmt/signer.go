package keymgmt

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/asn1"
	"math/big"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
	"github.com/kollektive-hackathon/multichain/pkg/chain/eos"
)

// EOS nodes reject signatures that are not canonical, so those are re-requested.
const maxCanonicalAttempts = 16

var (
	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// Signer signs with one KMS key version. The private key never leaves KMS.
type Signer struct {
	client     Client
	resourceID string
	publicKey  *ecdsa.PublicKey
}

func (s *Signer) ResourceID() string {
	return s.resourceID
}

func (s *Signer) PublicKey() *ecdsa.PublicKey {
	return s.publicKey
}

func (s *Signer) Address() common.Address {
	return crypto.PubkeyToAddress(*s.publicKey)
}

// PublicKeyFor is the key in the form the chain lists it in required authorizations.
func (s *Signer) PublicKeyFor(t chain.ChainType) (chain.PublicKey, error) {
	switch t {
	case chain.Ethereum:
		return chain.PublicKey(s.Address().Hex()), nil
	case chain.EOS:
		return chain.PublicKey(eos.PublicKeyFromECDSA(s.publicKey).String()), nil
	}
	return "", chain.NewError(chain.ErrInvalidOptions, "a secp256k1 key cannot sign %s transactions", t)
}

// SignDigest returns [R || S || V] with low S and V in {0, 1}.
func (s *Signer) SignDigest(ctx context.Context, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, errors.Errorf("digest has %d bytes, want 32", len(digest))
	}
	resp, err := s.client.AsymmetricSign(ctx, &kmspb.AsymmetricSignRequest{
		Name:   s.resourceID,
		Digest: &kmspb.Digest{Digest: &kmspb.Digest_Sha256{Sha256: digest}},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "kms sign with %s", s.resourceID)
	}
	var der struct{ R, S *big.Int }
	if _, err := asn1.Unmarshal(resp.Signature, &der); err != nil {
		return nil, errors.Wrap(err, "parse kms signature")
	}
	if der.S.Cmp(secp256k1HalfN) > 0 {
		der.S = new(big.Int).Sub(secp256k1N, der.S)
	}
	sig := make([]byte, crypto.SignatureLength)
	der.R.FillBytes(sig[:32])
	der.S.FillBytes(sig[32:64])

	want := crypto.FromECDSAPub(s.publicKey)
	for v := byte(0); v < 2; v++ {
		sig[crypto.RecoveryIDOffset] = v
		pub, err := crypto.Ecrecover(digest, sig)
		if err == nil && bytes.Equal(pub, want) {
			return sig, nil
		}
	}
	return nil, errors.Errorf("kms signature does not recover to %s", s.Address().Hex())
}

// Cosign adds this key's signature to a validated transaction.
func (s *Signer) Cosign(ctx context.Context, tx chain.Transaction) error {
	buffer, err := tx.SignBuffer()
	if err != nil {
		return err
	}
	var sig chain.Signature
	switch tx.ChainType() {
	case chain.Ethereum:
		rsv, err := s.SignDigest(ctx, buffer)
		if err != nil {
			return err
		}
		sig = chain.Signature(hexutil.Encode(rsv))
	case chain.EOS:
		eosSig, err := s.signEOS(ctx, buffer)
		if err != nil {
			return err
		}
		sig = chain.Signature(eosSig.String())
	default:
		return chain.NewError(chain.ErrInvalidOptions, "a secp256k1 key cannot sign %s transactions", tx.ChainType())
	}
	if err := tx.AddSignatures(ctx, sig); err != nil {
		return err
	}
	log.Debug().Str("chain", string(tx.ChainType())).Str("resourceId", s.resourceID).Msg("Cosigned transaction")
	return nil
}

func (s *Signer) signEOS(ctx context.Context, buffer []byte) (eos.Signature, error) {
	digest := sha256.Sum256(buffer)
	for i := 0; i < maxCanonicalAttempts; i++ {
		rsv, err := s.SignDigest(ctx, digest[:])
		if err != nil {
			return eos.Signature{}, err
		}
		var sig eos.Signature
		sig[0] = rsv[crypto.RecoveryIDOffset] + 27 + 4
		copy(sig[1:], rsv[:64])
		if isCanonical(sig) {
			return sig, nil
		}
	}
	return eos.Signature{}, errors.Errorf("no canonical signature after %d attempts", maxCanonicalAttempts)
}

func isCanonical(sig eos.Signature) bool {
	return sig[1]&0x80 == 0 &&
		!(sig[1] == 0 && sig[2]&0x80 == 0) &&
		sig[33]&0x80 == 0 &&
		!(sig[33] == 0 && sig[34]&0x80 == 0)
}
