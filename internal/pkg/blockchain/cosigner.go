package blockchain

import "github.com/spf13/viper"

// Cosigner is the server held key that can sign proposals for the accounts it owns.
type Cosigner struct {
	KmsResourceId string `json:"kmsResourceId"`
	Address       string `json:"address"`
}

func (c Cosigner) Enabled() bool {
	return c.KmsResourceId != ""
}

func GetCosigner() Cosigner {
	return Cosigner{
		KmsResourceId: viper.GetString("COSIGNER_KMS_RESOURCE_NAME"),
		Address:       viper.GetString("COSIGNER_ADDRESS"),
	}
}
