package eos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kollektive-hackathon/multichain/pkg/utils"
)

// API is the subset of the nodeos chain API this package talks to.
type API interface {
	GetInfo(ctx context.Context) (*InfoResponse, error)
	GetBlock(ctx context.Context, num uint64) (*BlockResponse, error)
	GetAccount(ctx context.Context, name string) (*AccountResponse, error)
	GetABI(ctx context.Context, account string) (*ABI, error)
	PushTransaction(ctx context.Context, req *PushTransactionRequest) (*PushTransactionResponse, error)
}

const blockTimeLayout = "2006-01-02T15:04:05.000"

type InfoResponse struct {
	ServerVersion            string `json:"server_version_string"`
	ChainID                  string `json:"chain_id"`
	HeadBlockNum             uint64 `json:"head_block_num"`
	LastIrreversibleBlockNum uint64 `json:"last_irreversible_block_num"`
	HeadBlockID              string `json:"head_block_id"`
	HeadBlockTime            string `json:"head_block_time"`
}

func (i *InfoResponse) HeadTime() (time.Time, error) {
	return time.Parse(blockTimeLayout, i.HeadBlockTime)
}

type BlockResponse struct {
	ID             string             `json:"id"`
	BlockNum       uint64             `json:"block_num"`
	RefBlockPrefix uint32             `json:"ref_block_prefix"`
	Timestamp      string             `json:"timestamp"`
	Transactions   []BlockTransaction `json:"transactions"`
}

type BlockTransaction struct {
	Status string `json:"status"`
	// Trx is either the id of a deferred transaction or the packed transaction object.
	Trx json.RawMessage `json:"trx"`
}

func (t BlockTransaction) ID() string {
	var id string
	if err := json.Unmarshal(t.Trx, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(t.Trx, &obj); err == nil {
		return obj.ID
	}
	return ""
}

type KeyWeight struct {
	Key    string `json:"key"`
	Weight uint16 `json:"weight"`
}

type RequiredAuth struct {
	Threshold uint32      `json:"threshold"`
	Keys      []KeyWeight `json:"keys"`
}

type AccountPermission struct {
	PermName     string       `json:"perm_name"`
	Parent       string       `json:"parent"`
	RequiredAuth RequiredAuth `json:"required_auth"`
}

type AccountResponse struct {
	AccountName string              `json:"account_name"`
	Permissions []AccountPermission `json:"permissions"`
}

func (a *AccountResponse) Permission(name string) (*AccountPermission, bool) {
	for i := range a.Permissions {
		if a.Permissions[i].PermName == name {
			return &a.Permissions[i], true
		}
	}
	return nil, false
}

type PushTransactionRequest struct {
	Signatures            []string `json:"signatures"`
	Compression           int      `json:"compression"`
	PackedContextFreeData string   `json:"packed_context_free_data"`
	PackedTrx             string   `json:"packed_trx"`
}

type PushTransactionResponse struct {
	TransactionID string `json:"transaction_id"`
	Processed     struct {
		BlockNum uint64 `json:"block_num"`
	} `json:"processed"`
}

// APIError is the error body nodeos answers with.
type APIError struct {
	StatusCode int            `json:"-"`
	Code       int            `json:"code"`
	Message    string         `json:"message"`
	Detail     APIErrorDetail `json:"error"`
}

type APIErrorDetail struct {
	Code    int               `json:"code"`
	Name    string            `json:"name"`
	What    string            `json:"what"`
	Details []APIErrorMessage `json:"details"`
}

type APIErrorMessage struct {
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	parts := []string{e.Message}
	if e.Detail.Name != "" {
		parts = append(parts, e.Detail.Name)
	}
	if e.Detail.What != "" {
		parts = append(parts, e.Detail.What)
	}
	for _, d := range e.Detail.Details {
		parts = append(parts, d.Message)
	}
	return fmt.Sprintf("nodeos %d: %s", e.StatusCode, strings.Join(parts, ": "))
}

type httpAPI struct {
	endpoint string
	client   *http.Client
}

func NewHTTPAPI(endpoint string, client *http.Client) API {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &httpAPI{endpoint: strings.TrimRight(endpoint, "/"), client: client}
}

func (h *httpAPI) call(ctx context.Context, path string, body any, out any) error {
	payload, err := utils.JsonBody(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusAccepted {
		data, _ := io.ReadAll(res.Body)
		apiErr := &APIError{StatusCode: res.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil {
			apiErr.Message = string(data)
		}
		return apiErr
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (h *httpAPI) GetInfo(ctx context.Context) (*InfoResponse, error) {
	var out InfoResponse
	if err := h.call(ctx, "/v1/chain/get_info", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *httpAPI) GetBlock(ctx context.Context, num uint64) (*BlockResponse, error) {
	var out BlockResponse
	req := map[string]string{"block_num_or_id": fmt.Sprint(num)}
	if err := h.call(ctx, "/v1/chain/get_block", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *httpAPI) GetAccount(ctx context.Context, name string) (*AccountResponse, error) {
	var out AccountResponse
	if err := h.call(ctx, "/v1/chain/get_account", map[string]string{"account_name": name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *httpAPI) GetABI(ctx context.Context, account string) (*ABI, error) {
	var out struct {
		AccountName string `json:"account_name"`
		ABI         *ABI   `json:"abi"`
	}
	if err := h.call(ctx, "/v1/chain/get_abi", map[string]string{"account_name": account}, &out); err != nil {
		return nil, err
	}
	if out.ABI == nil {
		return nil, fmt.Errorf("account %s has no abi", account)
	}
	return out.ABI, nil
}

func (h *httpAPI) PushTransaction(ctx context.Context, req *PushTransactionRequest) (*PushTransactionResponse, error) {
	var out PushTransactionResponse
	if err := h.call(ctx, "/v1/chain/push_transaction", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
