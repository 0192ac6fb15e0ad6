package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/kollektive-hackathon/multichain/pkg/utils"
)

const (
	signInWithIdpPath = "/v1/accounts:signInWithIdp"
	refreshTokenPath  = "/v1/token"
)

type GoogleIdentityPlatformErrorResponse struct {
	Error GoogleIdentityPlatformError `json:"error"`
}

type GoogleIdentityPlatformError struct {
	Code    uint   `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type identityPlatformTokenRequest struct {
	PostBody            string `json:"postBody"`
	RequestURI          string `json:"requestUri"`
	ReturnIDPCredential bool   `json:"returnIdpCredential"`
	ReturnSecureToken   bool   `json:"returnSecureToken"`
}

type identityPlatformTokenResponse struct {
	Email        string `json:"email"`
	LocalID      string `json:"localId"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type identityPlatformRefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	GrantType    string `json:"grant_type"`
}

type identityPlatformRefreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// platformError is a non 200 answer from the identity platform.
type platformError struct {
	status  int
	message string
}

func (e *platformError) Error() string {
	return fmt.Sprintf("identity platform answered %d: %s", e.status, e.message)
}

// identityPlatform exchanges provider tokens for Firebase ID tokens, which are
// what the API middleware verifies.
type identityPlatform struct {
	client         *http.Client
	identityURL    string
	secureTokenURL string
	apiKey         string
}

func (ip *identityPlatform) signInWithIdp(ctx context.Context, provider string, idToken, accessToken string) (*identityPlatformTokenResponse, error) {
	form := url.Values{"providerId": {provider}}
	if idToken != "" {
		form.Set("id_token", idToken)
	} else {
		form.Set("access_token", accessToken)
	}
	body := identityPlatformTokenRequest{
		PostBody:            form.Encode(),
		RequestURI:          "http://internal",
		ReturnIDPCredential: true,
		ReturnSecureToken:   true,
	}
	var resp identityPlatformTokenResponse
	if err := ip.post(ctx, ip.identityURL+signInWithIdpPath, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (ip *identityPlatform) refresh(ctx context.Context, refreshToken string) (*identityPlatformRefreshResponse, error) {
	body := identityPlatformRefreshRequest{RefreshToken: refreshToken, GrantType: "refresh_token"}
	var resp identityPlatformRefreshResponse
	if err := ip.post(ctx, ip.secureTokenURL+refreshTokenPath, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (ip *identityPlatform) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := utils.JsonBody(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?key="+url.QueryEscape(ip.apiKey), payload)
	if err != nil {
		return errors.Wrap(err, "build identity platform request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := ip.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "call identity platform")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		errBody, _ := utils.JsonDecode[GoogleIdentityPlatformErrorResponse](res.Body)
		return &platformError{status: res.StatusCode, message: errBody.Error.Message}
	}
	return errors.Wrap(json.NewDecoder(res.Body).Decode(out), "decode identity platform response")
}
