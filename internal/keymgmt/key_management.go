package keymgmt

import (
	"context"
	"crypto/ecdsa"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/googleapis/gax-go/v2"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Client is the part of the KMS API the cosigner needs.
type Client interface {
	CreateCryptoKey(ctx context.Context, req *kmspb.CreateCryptoKeyRequest, opts ...gax.CallOption) (*kmspb.CryptoKey, error)
	GetPublicKey(ctx context.Context, req *kmspb.GetPublicKeyRequest, opts ...gax.CallOption) (*kmspb.PublicKey, error)
	AsymmetricSign(ctx context.Context, req *kmspb.AsymmetricSignRequest, opts ...gax.CallOption) (*kmspb.AsymmetricSignResponse, error)
}

var _ Client = (*kms.KeyManagementClient)(nil)

var (
	oidECPublicKey = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1   = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

type subjectPublicKeyInfo struct {
	Algorithm struct {
		Algorithm  asn1.ObjectIdentifier
		Parameters asn1.ObjectIdentifier
	}
	PublicKey asn1.BitString
}

func NewClient(ctx context.Context) (*kms.KeyManagementClient, error) {
	return kms.NewKeyManagementClient(ctx)
}

// KeyRingFromConfig builds the key ring resource name from GOOGLE_KMS_*.
func KeyRingFromConfig() string {
	return fmt.Sprintf("projects/%s/locations/%s/keyRings/%s",
		viper.GetString("GOOGLE_KMS_PROJECT_ID"),
		viper.GetString("GOOGLE_KMS_LOCATION_ID"),
		viper.GetString("GOOGLE_KMS_KEYRING_ID"))
}

type Manager struct {
	client  Client
	keyRing string

	pending  backoff.Backoff
	deadline time.Duration
}

func NewManager(client Client, keyRing string) *Manager {
	return &Manager{
		client:  client,
		keyRing: keyRing,
		pending: backoff.Backoff{
			Min:    100 * time.Millisecond,
			Max:    5 * time.Second,
			Factor: 2,
			Jitter: true,
		},
		deadline: time.Minute,
	}
}

// CreateKey creates a secp256k1 signing key in the key ring and waits until
// its public key can be read.
func (m *Manager) CreateKey(ctx context.Context, labels map[string]string) (*Signer, error) {
	req := &kmspb.CreateCryptoKeyRequest{
		Parent:      m.keyRing,
		CryptoKeyId: fmt.Sprintf("multichain-cosigner-%s", uuid.New().String()),
		CryptoKey: &kmspb.CryptoKey{
			Purpose: kmspb.CryptoKey_ASYMMETRIC_SIGN,
			VersionTemplate: &kmspb.CryptoKeyVersionTemplate{
				ProtectionLevel: kmspb.ProtectionLevel_HSM,
				Algorithm:       kmspb.CryptoKeyVersion_EC_SIGN_SECP256K1_SHA256,
			},
			Labels: labels,
		},
	}
	key, err := m.client.CreateCryptoKey(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "create kms key")
	}
	resourceID := key.Name + "/cryptoKeyVersions/1"
	if !strings.HasPrefix(resourceID, m.keyRing+"/cryptoKeys/") {
		return nil, errors.Errorf("created kms key %s is outside key ring %s", key.Name, m.keyRing)
	}
	log.Info().Str("resourceId", resourceID).Msg("Created KMS cosigner key")
	return m.Signer(ctx, resourceID)
}

// Signer loads the public key of an existing key version. A key that is
// still being generated is polled until the deadline.
func (m *Manager) Signer(ctx context.Context, resourceID string) (*Signer, error) {
	pub, err := m.publicKey(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return &Signer{client: m.client, resourceID: resourceID, publicKey: pub}, nil
}

func (m *Manager) publicKey(ctx context.Context, resourceID string) (*ecdsa.PublicKey, error) {
	b := m.pending
	deadline := time.Now().Add(m.deadline)

	log.Trace().Str("resourceId", resourceID).Msg("Getting public key for KMS key")
	for {
		resp, err := m.client.GetPublicKey(ctx, &kmspb.GetPublicKeyRequest{Name: resourceID})
		if err == nil {
			return parsePublicKey(resp.Pem)
		}
		if !strings.Contains(err.Error(), "KEY_PENDING_GENERATION") {
			return nil, errors.Wrapf(err, "get public key of %s", resourceID)
		}
		if time.Now().After(deadline) {
			return nil, errors.Errorf("timeout while waiting for kms key %s", resourceID)
		}
		log.Trace().Msg("KMS key is pending creation, will retry")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
}

func parsePublicKey(pemData string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("kms public key is not PEM encoded")
	}
	var spki subjectPublicKeyInfo
	if _, err := asn1.Unmarshal(block.Bytes, &spki); err != nil {
		return nil, errors.Wrap(err, "parse kms public key")
	}
	if !spki.Algorithm.Algorithm.Equal(oidECPublicKey) || !spki.Algorithm.Parameters.Equal(oidSecp256k1) {
		return nil, errors.Errorf("kms key uses %v/%v, want secp256k1", spki.Algorithm.Algorithm, spki.Algorithm.Parameters)
	}
	pub, err := crypto.UnmarshalPubkey(spki.PublicKey.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "decode secp256k1 point")
	}
	return pub, nil
}
