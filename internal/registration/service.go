package registration

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/kollektive-hackathon/multichain/internal/pkg/model"
	"github.com/kollektive-hackathon/multichain/internal/pkg/reject"
	"github.com/kollektive-hackathon/multichain/internal/pkg/utils"
	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

type chainSource interface {
	Get(ctx context.Context, t chain.ChainType) (chain.Chain, error)
}

type cosigner interface {
	Address() common.Address
	Cosign(ctx context.Context, tx chain.Transaction) error
}

type walletRepository interface {
	Create(ctx context.Context, wallet *model.CustodialWallet) error
	FindByOwner(ctx context.Context, ownerId string, page utils.PageRequest) ([]model.CustodialWallet, int64, error)
}

type gormWallets struct {
	db *gorm.DB
}

func (g *gormWallets) Create(ctx context.Context, wallet *model.CustodialWallet) error {
	return g.db.WithContext(ctx).Create(wallet).Error
}

func (g *gormWallets) FindByOwner(ctx context.Context, ownerId string, page utils.PageRequest) ([]model.CustodialWallet, int64, error) {
	var total int64
	err := g.db.WithContext(ctx).Model(&model.CustodialWallet{}).Where("owner_id = ?", ownerId).Count(&total).Error
	if err != nil {
		return nil, 0, err
	}
	var wallets []model.CustodialWallet
	err = g.db.WithContext(ctx).
		Where("owner_id = ?", ownerId).
		Order("time_created DESC").
		Offset(page.Offset).
		Limit(page.Size).
		Find(&wallets).Error
	return wallets, total, err
}

type registrationService struct {
	wallets walletRepository
	chains  chainSource
	// cosigner pays for accounts that need an on-chain transaction. nil
	// restricts registration to keypair accounts.
	cosigner   cosigner
	eosCreator string
	bridge     *accountBridge
	now        func() time.Time
}

func (s *registrationService) register(ctx context.Context, ownerId string, request RegistrationRequest) (*model.CustodialWallet, *reject.ProblemWithTrace) {
	chainType := chain.ChainType(request.Chain)
	if !chainType.Valid() {
		return nil, reject.Validation(errors.New("unknown chain " + request.Chain))
	}
	multisig := len(request.Multisig) > 0
	if !multisig && request.Password == "" {
		return nil, reject.Validation(errors.New("a password is needed to keep the generated keys"))
	}
	c, err := s.chains.Get(ctx, chainType)
	if err != nil {
		return nil, reject.ChainProblem(err)
	}
	opts, err := s.createAccountOptions(chainType, ownerId, request)
	if err != nil {
		return nil, reject.ChainProblem(err)
	}
	ca, err := c.NewCreateAccount(opts)
	if err != nil {
		return nil, reject.ChainProblem(err)
	}
	if err := ca.Compose(ctx); err != nil {
		return nil, reject.ChainProblem(err)
	}

	wallet := &model.CustodialWallet{
		OwnerId:  ownerId,
		Chain:    string(chainType),
		Address:  ca.AccountName(),
		Multisig: multisig,
	}
	if ca.RequiresTransaction() {
		wallet.TransactionId, err = s.sendCreation(ctx, ca)
		if err != nil {
			return nil, reject.ChainProblem(err)
		}
	}
	for _, kp := range ca.GeneratedKeys() {
		wallet.PublicKeys = append(wallet.PublicKeys, string(kp.PublicKey))
		wallet.EncryptedKeys = append(wallet.EncryptedKeys, kp.PrivateKeyEncrypted)
	}
	wallet.TimeCreated = s.now()

	if err := s.wallets.Create(ctx, wallet); err != nil {
		return nil, reject.Unexpected(err)
	}
	log.Info().Str("chain", wallet.Chain).Str("address", wallet.Address).Bool("multisig", multisig).Msg("Registered custodial wallet")

	s.bridge.announce(wallet)
	return wallet, nil
}

func (s *registrationService) list(ctx context.Context, ownerId string, page utils.PageRequest) (*utils.PageResponse[model.CustodialWallet], *reject.ProblemWithTrace) {
	wallets, total, err := s.wallets.FindByOwner(ctx, ownerId, page)
	if err != nil {
		return nil, reject.Unexpected(err)
	}
	resp := utils.NewPageResponse[model.CustodialWallet]().
		WithItems(wallets).
		WithItemCount(total)
	if int64(page.Offset+len(wallets)) < total {
		resp.WithNextPageToken(int64(page.Token + 1))
	}
	return resp.Build(), nil
}
