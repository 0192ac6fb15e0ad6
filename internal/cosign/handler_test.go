package cosign

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kollektive-hackathon/multichain/internal/pkg/model"
	"github.com/kollektive-hackathon/multichain/internal/pkg/utils"
	pkgutils "github.com/kollektive-hackathon/multichain/pkg/utils"
)

func newRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	fakeAuth := func(c *gin.Context) {
		pkgutils.SetAccessTokenCtx(&pkgutils.AccessToken{
			Token:    auth.Token{Subject: c.GetHeader("X-User")},
			RawToken: "test",
		}, c)
		c.Next()
	}
	registerRoutes(r.Group("/api"), &cosignHandler{cosign: f.service}, fakeAuth)
	return r
}

func call(t *testing.T, r http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", user)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_Flow(t *testing.T) {
	f := newFixture(t)
	f.service.cosigner = ownerCosigner{account: f.owners[2]}
	r := newRouter(f)

	w := call(t, r, http.MethodPost, "/api/cosign/proposals", "alice", f.createRequest(t))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created ProposalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, model.ProposalPending, created.Status)
	assert.Equal(t, "alice", created.CreatedBy)

	w = call(t, r, http.MethodGet, "/api/cosign/proposals/"+created.Id, "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = call(t, r, http.MethodPost, "/api/cosign/proposals/"+created.Id+"/signatures", "bob", SignaturesRequest{
		Signatures: []string{ownerSignature(t, f.owners[1], created.SignBuffer)},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = call(t, r, http.MethodPost, "/api/cosign/proposals/"+created.Id+"/cosign", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var signed ProposalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &signed))
	assert.Equal(t, model.ProposalSigned, signed.Status)

	w = call(t, r, http.MethodPost, "/api/cosign/proposals/"+created.Id+"/send?confirm=false", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sent ProposalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sent))
	assert.Equal(t, model.ProposalSent, sent.Status)
	assert.NotEmpty(t, sent.TransactionId)
	assert.Zero(t, sent.BlockNumber)
}

func TestHandler_BadRequests(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)

	w := call(t, r, http.MethodPost, "/api/cosign/proposals", "alice", map[string]any{"chain": "algorand"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, r, http.MethodPost, "/api/cosign/proposals/any/signatures", "alice", SignaturesRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, r, http.MethodPost, "/api/cosign/proposals/any/send?confirm=maybe", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, r, http.MethodGet, "/api/cosign/proposals/missing", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = call(t, r, http.MethodGet, "/api/cosign/proposals?page_size=0&page_token=0", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_List(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)
	for i := 0; i < 3; i++ {
		w := call(t, r, http.MethodPost, "/api/cosign/proposals", "alice", f.createRequest(t))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := call(t, r, http.MethodGet, "/api/cosign/proposals?page_size=2&page_token=1", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page utils.PageResponse[model.Proposal]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, int64(3), page.ItemCount)
	assert.Len(t, page.Items, 1)
	assert.Zero(t, page.NextPageToken)

	w = call(t, r, http.MethodGet, "/api/cosign/proposals?page_size=2&page_token=0", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Zero(t, page.ItemCount)
}
