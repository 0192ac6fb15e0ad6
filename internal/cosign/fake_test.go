package cosign

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kollektive-hackathon/multichain/internal/pkg/model"
	"github.com/kollektive-hackathon/multichain/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/multichain/internal/pkg/utils"
	"github.com/kollektive-hackathon/multichain/pkg/chain"
	"github.com/kollektive-hackathon/multichain/pkg/chain/algorand"
	"github.com/kollektive-hackathon/multichain/pkg/multichain"
)

var genesisHash = sha256.Sum256([]byte("testnet-v1.0"))

// algod is an in-memory node that puts every sent transaction in the next round.
type algod struct {
	mu     sync.Mutex
	round  uint64
	blocks map[uint64][]types.SignedTxn
	sent   []types.SignedTxn
}

func newAlgod() *algod {
	return &algod{round: 500, blocks: map[uint64][]types.SignedTxn{}}
}

func (a *algod) Status(context.Context) (models.NodeStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return models.NodeStatus{LastRound: a.round, LastVersion: "future"}, nil
}

func (a *algod) SuggestedParams(context.Context) (types.SuggestedParams, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return types.SuggestedParams{
		GenesisID:       "testnet-v1.0",
		GenesisHash:     genesisHash[:],
		FirstRoundValid: types.Round(a.round),
		LastRoundValid:  types.Round(a.round + 1000),
		MinFee:          1000,
	}, nil
}

func (a *algod) Block(_ context.Context, round uint64) (types.Block, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if round > a.round {
		return types.Block{}, fmt.Errorf("ledger does not have entry %d", round)
	}
	var b types.Block
	b.Round = types.Round(round)
	b.TimeStamp = int64(round) * 4
	b.GenesisID = "testnet-v1.0"
	b.GenesisHash = genesisHash
	for _, stx := range a.blocks[round] {
		var stib types.SignedTxnInBlock
		stib.SignedTxn = stx
		b.Payset = append(b.Payset, stib)
	}
	return b, nil
}

func (a *algod) SendRawTransaction(_ context.Context, raw []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var stx types.SignedTxn
	if err := msgpack.Decode(raw, &stx); err != nil {
		return "", err
	}
	a.round++
	a.blocks[a.round] = append(a.blocks[a.round], stx)
	a.sent = append(a.sent, stx)
	return crypto.GetTxID(stx.Txn), nil
}

func (a *algod) AccountInformation(_ context.Context, address string) (models.Account, error) {
	return models.Account{Address: address}, nil
}

type noSleep struct{}

func (noSleep) Sleep(context.Context, time.Duration) error { return nil }

type memoryProposals struct {
	mu         sync.Mutex
	proposals  map[string]model.Proposal
	signatures []model.ProposalSignature
}

func newMemoryProposals() *memoryProposals {
	return &memoryProposals{proposals: map[string]model.Proposal{}}
}

func (m *memoryProposals) Create(_ context.Context, p *model.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposals[p.Id] = *p
	return nil
}

func (m *memoryProposals) Find(_ context.Context, id string) (*model.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	p.Signatures = append([]string(nil), p.Signatures...)
	return &p, nil
}

func (m *memoryProposals) FindByCreator(_ context.Context, createdBy string, page utils.PageRequest) ([]model.Proposal, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.Proposal
	for _, p := range m.proposals {
		if p.CreatedBy == createdBy {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].TimeCreated.After(all[j].TimeCreated) })
	total := int64(len(all))
	if page.Offset >= len(all) {
		return nil, total, nil
	}
	end := page.Offset + page.Size
	if end > len(all) {
		end = len(all)
	}
	return all[page.Offset:end], total, nil
}

func (m *memoryProposals) Update(_ context.Context, p *model.Proposal, added []model.ProposalSignature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.proposals[p.Id].Version != p.Version {
		return errStaleProposal
	}
	p.Version++
	m.proposals[p.Id] = *p
	m.signatures = append(m.signatures, added...)
	return nil
}

// meetingProposals holds the first two reads until both have happened, so
// two requests start from the same stored proposal.
type meetingProposals struct {
	*memoryProposals
	pending atomic.Int32
	met     sync.WaitGroup
}

func newMeetingProposals(m *memoryProposals) *meetingProposals {
	mp := &meetingProposals{memoryProposals: m}
	mp.pending.Store(2)
	mp.met.Add(2)
	return mp
}

func (m *meetingProposals) Find(ctx context.Context, id string) (*model.Proposal, error) {
	p, err := m.memoryProposals.Find(ctx, id)
	if m.pending.Add(-1) >= 0 {
		m.met.Done()
		m.met.Wait()
	}
	return p, err
}

type notifications struct {
	mu     sync.Mutex
	topics []string
}

func (n *notifications) Publish(topic string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.topics = append(n.topics, topic)
}

type events struct {
	mu     sync.Mutex
	events []pubsub.Publishable
}

func (e *events) publish(m pubsub.Publishable) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, m)
}

// ownerCosigner stands in for the KMS key with an algorand owner key.
type ownerCosigner struct {
	account crypto.Account
}

func (o ownerCosigner) Address() common.Address { return common.Address{} }

func (o ownerCosigner) PublicKeyFor(chain.ChainType) (chain.PublicKey, error) {
	return chain.PublicKey(o.account.Address.String()), nil
}

func (o ownerCosigner) Cosign(ctx context.Context, tx chain.Transaction) error {
	return tx.Sign(ctx, algorand.EncodePrivateKey(o.account.PrivateKey))
}

type fixture struct {
	service   *cosignService
	node      *algod
	proposals *memoryProposals
	hub       *notifications
	events    *events
	owners    []crypto.Account
	msig      algorand.MultisigOptions
	account   types.Address
	receiver  types.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		node:      newAlgod(),
		proposals: newMemoryProposals(),
		hub:       &notifications{},
		events:    &events{},
		receiver:  crypto.GenerateAccount().Address,
	}
	f.msig = algorand.MultisigOptions{Version: 1, Threshold: 2}
	for i := 0; i < 3; i++ {
		acc := crypto.GenerateAccount()
		f.owners = append(f.owners, acc)
		f.msig.Addrs = append(f.msig.Addrs, acc.Address.String())
	}
	addr, err := algorand.DeriveMultisigAddress(f.msig)
	require.NoError(t, err)
	f.account = addr

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.service = &cosignService{
		proposals: f.proposals,
		chains: multichain.NewRegistry(multichain.Config{
			Algorand: &algorand.Settings{Client: f.node, Scheduler: noSleep{}},
		}),
		hub:     f.hub,
		publish: f.events.publish,
		now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	}
	return f
}

func (f *fixture) createRequest(t *testing.T) CreateProposalRequest {
	t.Helper()
	data, err := json.Marshal(f.msig)
	require.NoError(t, err)
	return CreateProposalRequest{
		Chain:    "algorand",
		Multisig: data,
		Actions: []map[string]any{{
			"type":   "pay",
			"from":   f.account.String(),
			"to":     f.receiver.String(),
			"amount": float64(250000),
		}},
	}
}

func ownerSignature(t *testing.T, owner crypto.Account, signBuffer string) string {
	t.Helper()
	buf, err := hex.DecodeString(signBuffer)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(ed25519.Sign(owner.PrivateKey, buf))
}
