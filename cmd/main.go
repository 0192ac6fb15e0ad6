package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/kollektive-hackathon/multichain/internal/auth"
	"github.com/kollektive-hackathon/multichain/internal/cosign"
	"github.com/kollektive-hackathon/multichain/internal/keymgmt"
	"github.com/kollektive-hackathon/multichain/internal/pkg/blockchain"
	"github.com/kollektive-hackathon/multichain/internal/pkg/config"
	"github.com/kollektive-hackathon/multichain/internal/pkg/middleware"
	"github.com/kollektive-hackathon/multichain/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/multichain/internal/registration"
	"github.com/kollektive-hackathon/multichain/internal/ws"
	"github.com/kollektive-hackathon/multichain/pkg/firebase"
	"github.com/kollektive-hackathon/multichain/pkg/multichain"
)

func main() {
	setupViper()
	setupZerolog()
	pubsub.InitPubSub()
	db := setupDb()
	chains := setupChains()
	signer := setupCosigner()
	apiRouter := setupApiRouter(db, chains, signer)

	defer func() { pubsub.CloseClient() }()

	firebase.InitFirebaseSdk()

	port := viper.GetString("PORT")
	server := &http.Server{
		Addr:         port,
		Handler:      apiRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}

	if err := server.ListenAndServe(); err != nil {
		log.Error().Err(err).Msg("Server stopped")
	}
}

func setupDb() *gorm.DB {
	dbUrl := viper.GetString("DB_URL")

	db, err := gorm.Open(postgres.Open(dbUrl), &gorm.Config{})

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	sqlDb, _ := db.DB()

	sqlDb.SetMaxOpenConns(50)
	sqlDb.SetConnMaxLifetime(time.Minute * 10)

	return db
}

func setupChains() *multichain.Registry {
	cfg, err := config.Chains()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read chain settings")
	}
	registry := multichain.NewRegistry(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, t := range cfg.Configured() {
		// unreachable chains are retried on first use
		if _, err := registry.Get(ctx, t); err == nil {
			log.Info().Str("chain", string(t)).Msg("Connected to chain")
		}
	}
	return registry
}

// setupCosigner loads the KMS key used for cosigning. Without one the service
// only collects owner signatures.
func setupCosigner() *keymgmt.Signer {
	cosigner := blockchain.GetCosigner()
	if !cosigner.Enabled() {
		log.Info().Msg("No cosigner configured")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	client, err := keymgmt.NewClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create kms client")
	}
	signer, err := keymgmt.NewManager(client, keymgmt.KeyRingFromConfig()).Signer(ctx, cosigner.KmsResourceId)
	if err != nil {
		log.Fatal().Err(err).Str("resourceId", cosigner.KmsResourceId).Msg("Failed to load cosigner key")
	}
	if cosigner.Address != "" && !strings.EqualFold(cosigner.Address, signer.Address().Hex()) {
		log.Fatal().Str("configured", cosigner.Address).Str("key", signer.Address().Hex()).Msg("Cosigner address does not match its key")
	}
	log.Info().Str("address", signer.Address().Hex()).Msg("Cosigner loaded")
	return signer
}

func setupApiRouter(db *gorm.DB, chains *multichain.Registry, signer *keymgmt.Signer) *gin.Engine {
	apiRouter := gin.Default()
	routerGroup := apiRouter.Group("/multichain-api")

	middleware.RegisterGlobalMiddleware(apiRouter)

	ws.RegisterRoutes(routerGroup)
	auth.RegisterRoutes(routerGroup, db)
	registration.RegisterRoutesAndSubscriptions(routerGroup, db, chains, signer)
	cosign.RegisterRoutes(routerGroup, db, chains, signer)

	return apiRouter
}

func setupViper() {
	viper.AutomaticEnv()
	viper.SetConfigFile("./.env")
	if err := viper.ReadInConfig(); err != nil {
		log.Debug().Err(err).Msg("No .env file, using the environment only")
	}
}

func setupZerolog() {
	zerolog.LevelFieldName = "severity"
	zerolog.TimestampFieldName = "time"
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if level, err := zerolog.ParseLevel(viper.GetString("LOG_LEVEL")); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}
}
