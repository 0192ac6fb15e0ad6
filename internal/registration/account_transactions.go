package registration

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
	"github.com/kollektive-hackathon/multichain/pkg/chain/algorand"
	"github.com/kollektive-hackathon/multichain/pkg/chain/eos"
	"github.com/kollektive-hackathon/multichain/pkg/chain/ethereum"
)

// createAccountOptions maps a registration request onto the chain's own
// account options. Generated keys are encrypted with the request password and
// the owner id as salt.
func (s *registrationService) createAccountOptions(t chain.ChainType, ownerId string, request RegistrationRequest) (chain.CreateAccountOptions, error) {
	switch t {
	case chain.EOS:
		opts := eos.CreateAccountOptions{
			Creator:     s.eosCreator,
			AccountName: request.AccountName,
			Password:    request.Password,
			Salt:        ownerId,
		}
		if len(request.Multisig) > 0 {
			var ms eos.MultisigOptions
			if err := json.Unmarshal(request.Multisig, &ms); err != nil {
				return nil, chain.WrapError(chain.ErrInvalidOptions, err, "decode eos multisig options")
			}
			opts.Multisig = &ms
		}
		return opts, nil
	case chain.Ethereum:
		opts := ethereum.CreateAccountOptions{Password: request.Password, Salt: ownerId}
		if len(request.Multisig) > 0 {
			var ms ethereum.MultisigOptions
			if err := json.Unmarshal(request.Multisig, &ms); err != nil {
				return nil, chain.WrapError(chain.ErrInvalidOptions, err, "decode ethereum multisig options")
			}
			opts.Multisig = &ms
			if s.cosigner != nil {
				opts.Deployer = s.cosigner.Address().Hex()
			}
		}
		return opts, nil
	case chain.Algorand:
		opts := algorand.CreateAccountOptions{Password: request.Password, Salt: ownerId}
		if len(request.Multisig) > 0 {
			var ms algorand.MultisigOptions
			if err := json.Unmarshal(request.Multisig, &ms); err != nil {
				return nil, chain.WrapError(chain.ErrInvalidOptions, err, "decode algorand multisig options")
			}
			opts.Multisig = &ms
		}
		return opts, nil
	}
	return nil, chain.NewError(chain.ErrInvalidOptions, "unknown chain type %q", t)
}

// sendCreation signs the account creation transaction with the cosigner, which
// pays for it, and waits for the first block. A confirmation timeout still
// counts as created.
func (s *registrationService) sendCreation(ctx context.Context, ca chain.CreateAccount) (string, error) {
	tx := ca.Transaction()
	if s.cosigner == nil {
		return "", chain.NewError(chain.ErrInvalidOptions, "creating %s on %s needs the cosigner", ca.AccountName(), tx.ChainType())
	}
	if err := tx.PrepareToBeSigned(ctx); err != nil {
		return "", err
	}
	if err := tx.Validate(ctx); err != nil {
		return "", err
	}
	if err := s.cosigner.Cosign(ctx, tx); err != nil {
		return "", err
	}
	result, err := tx.Send(ctx, chain.ConfirmAfterFirstBlock)
	switch {
	case err == nil:
		return result.TransactionID, nil
	case chain.IsKind(err, chain.ErrConfirmTransactionTimeout), chain.IsKind(err, chain.ErrMaxBlockReadAttemptsTimeout):
		id, _ := tx.TransactionID()
		log.Warn().Err(err).Str("account", ca.AccountName()).Str("txId", id).Msg("Account creation sent but not confirmed")
		return id, nil
	}
	return "", err
}
