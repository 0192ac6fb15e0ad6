package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/kollektive-hackathon/multichain/pkg/utils"
)

func TestVerifyAuthTokenWith(t *testing.T) {
	gin.SetMode(gin.TestMode)
	verify := func(token string) (*auth.Token, error) {
		if token != "good" {
			return nil, errors.New("token expired")
		}
		return &auth.Token{Subject: "user-1", Claims: map[string]any{"email": "u@example.com"}}, nil
	}
	router := gin.New()
	router.GET("/me", VerifyAuthTokenWith(verify), func(c *gin.Context) {
		c.String(http.StatusOK, utils.GetUserExternalId(c)+" "+utils.GetUserEmail(c))
	})

	tests := []struct {
		header string
		status int
		body   string
	}{
		{"Bearer good", http.StatusOK, "user-1 u@example.com"},
		{"", http.StatusUnauthorized, "error.token.required"},
		{"Bearer ", http.StatusUnauthorized, "error.token.required"},
		{"Bearer stale", http.StatusUnauthorized, "error.token.invalid"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, tt.status, rec.Code, tt.header)
		assert.Contains(t, rec.Body.String(), tt.body)
	}
}
