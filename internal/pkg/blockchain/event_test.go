package blockchain

import (
	"encoding/json"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent(t *testing.T) {
	e := NewEvent(TransactionSent, "ethereum").
		WithProposal("p-1", "0xabc").
		WithTransaction("0x01")
	require.NotEmpty(t, e.Id)
	assert.Equal(t, "multichain.transactions.events", e.GetEventTopicName())

	data, err := json.Marshal(e)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "TRANSACTION_SENT", decoded["type"])
	assert.Equal(t, "p-1", decoded["proposalId"])
	assert.NotContains(t, decoded, "payload")
}

func TestGetCosigner(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Reset()
	assert.False(t, GetCosigner().Enabled())

	viper.Set("COSIGNER_KMS_RESOURCE_NAME", "projects/p/locations/l/keyRings/r/cryptoKeys/k/cryptoKeyVersions/1")
	viper.Set("COSIGNER_ADDRESS", "0x00000000000000000000000000000000000000c0")
	c := GetCosigner()
	assert.True(t, c.Enabled())
	assert.Equal(t, "0x00000000000000000000000000000000000000c0", c.Address)
}
