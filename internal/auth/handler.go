package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/kollektive-hackathon/multichain/internal/pkg/model"
	"github.com/kollektive-hackathon/multichain/pkg/reject"
)

const (
	errorTokenEmpty        string = "error.google-identity-platform-token-provider.token.empty"
	errorTokenRequestError string = "error.google-identity-platform-token-provider.token.google-request-error"
)

type walletLookup func(ctx context.Context, ownerId string) ([]model.CustodialWallet, error)

type authHandler struct {
	platform *identityPlatform
	wallets  walletLookup
}

func RegisterRoutes(rg *gin.RouterGroup, db *gorm.DB) {
	handler := &authHandler{
		platform: &identityPlatform{
			client:         &http.Client{},
			identityURL:    "https://identitytoolkit.googleapis.com",
			secureTokenURL: "https://securetoken.googleapis.com",
			apiKey:         viper.GetString("GOOGLE_PROJECT_API_KEY"),
		},
		wallets: func(ctx context.Context, ownerId string) ([]model.CustodialWallet, error) {
			var wallets []model.CustodialWallet
			err := db.WithContext(ctx).Where("owner_id = ?", ownerId).Order("time_created DESC").Find(&wallets).Error
			return wallets, err
		},
	}
	registerRoutes(rg, handler)
}

func registerRoutes(rg *gin.RouterGroup, handler *authHandler) {
	routes := rg.Group("/auth")
	routes.POST("/google", handler.exchange("google.com"))
	routes.POST("/apple", handler.exchange("apple.com"))
	routes.POST("/refresh", handler.refresh)
}

type IDTokenRequest struct {
	IDToken     string `json:"idToken"`
	AccessToken string `json:"accessToken"`
}

type TokenResponse struct {
	Email        string                  `json:"email,omitempty"`
	IDToken      string                  `json:"idToken"`
	RefreshToken string                  `json:"refreshToken"`
	ExpiresIn    string                  `json:"expiresIn"`
	Wallets      []model.CustodialWallet `json:"wallets,omitempty"`
}

func (ah authHandler) exchange(provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := IDTokenRequest{}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
			return
		}
		idToken := strings.TrimSpace(body.IDToken)
		accessToken := strings.TrimSpace(body.AccessToken)
		if idToken == "" && accessToken == "" {
			c.JSON(http.StatusBadRequest, reject.NewProblem().
				WithTitle("Either idToken or accessToken must be passed").
				WithStatus(http.StatusBadRequest).
				WithCode(errorTokenEmpty).
				Build())
			return
		}

		res, err := ah.platform.signInWithIdp(c.Request.Context(), provider, idToken, accessToken)
		if err != nil {
			ah.fail(c, "Failed to exchange provider ID token for an internal token pair", err)
			return
		}
		log.Debug().Str("provider", provider).Msg("Exchanged provider token for an identity platform token pair")

		resp := TokenResponse{
			Email:        res.Email,
			IDToken:      res.IDToken,
			RefreshToken: res.RefreshToken,
			ExpiresIn:    res.ExpiresIn,
		}
		if wallets, err := ah.wallets(c.Request.Context(), res.LocalID); err == nil {
			resp.Wallets = wallets
		} else {
			log.Warn().Err(err).Msg("Cannot load wallets after sign in")
		}
		c.JSON(http.StatusOK, resp)
	}
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (ah authHandler) refresh(c *gin.Context) {
	body := RefreshTokenRequest{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}
	if strings.TrimSpace(body.RefreshToken) == "" {
		c.JSON(http.StatusBadRequest, reject.NewProblem().
			WithTitle("Empty refresh token in provider token request").
			WithStatus(http.StatusBadRequest).
			WithCode(errorTokenEmpty).
			Build())
		return
	}

	res, err := ah.platform.refresh(c.Request.Context(), body.RefreshToken)
	if err != nil {
		ah.fail(c, "Failed to exchange refresh token for a new token pair", err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{
		IDToken:      res.IDToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    res.ExpiresIn,
	})
}

func (ah authHandler) fail(c *gin.Context, title string, err error) {
	status := http.StatusInternalServerError
	detail := ""
	var pe *platformError
	if errors.As(err, &pe) {
		status = pe.status
		detail = pe.message
		log.Info().Int("status", pe.status).Str("message", pe.message).Msg(title)
	} else {
		log.Error().Err(err).Msg(title)
	}
	c.JSON(status, reject.NewProblem().
		WithTitle(title).
		WithStatus(status).
		WithDetail(detail).
		WithCode(errorTokenRequestError).
		Build())
}
