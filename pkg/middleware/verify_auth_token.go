package middleware

import (
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multichain/pkg/firebase"
	"github.com/kollektive-hackathon/multichain/pkg/reject"
	"github.com/kollektive-hackathon/multichain/pkg/utils"
)

const (
	accessTokenRequired string = "error.token.required"
	accessTokenInvalid  string = "error.token.invalid"
)

// VerifyAuthToken checks the bearer token with firebase and stores it on the context.
func VerifyAuthToken(context *gin.Context) {
	authenticate(context, firebase.VerifyIdToken)
}

// VerifyAuthTokenWith is VerifyAuthToken with a custom token verifier.
func VerifyAuthTokenWith(verify func(string) (*auth.Token, error)) gin.HandlerFunc {
	return func(context *gin.Context) {
		authenticate(context, verify)
	}
}

func authenticate(context *gin.Context, verify func(string) (*auth.Token, error)) {
	authHeader := context.Request.Header.Get("Authorization")
	idTokenValue := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if idTokenValue == "" {
		log.Warn().Msg("Token missing: 401")
		context.AbortWithStatusJSON(
			http.StatusUnauthorized,
			reject.NewProblem().
				WithTitle("Missing access token").
				WithStatus(http.StatusUnauthorized).
				WithCode(accessTokenRequired).
				Build())
		return
	}
	token, err := verify(idTokenValue)
	if err != nil {
		log.Warn().Err(err).Msg("Error verifying token")
		context.AbortWithStatusJSON(
			http.StatusUnauthorized,
			reject.NewProblem().
				WithTitle("Cannot verify access token").
				WithStatus(http.StatusUnauthorized).
				WithCode(accessTokenInvalid).
				WithDetail(err.Error()).
				Build())
		return
	}
	accessTokenDetails := utils.AccessToken{
		Token:    *token,
		RawToken: idTokenValue,
	}
	utils.SetAccessTokenCtx(&accessTokenDetails, context)
}
