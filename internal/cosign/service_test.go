package cosign

import (
	"context"
	"net/http"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kollektive-hackathon/multichain/internal/pkg/blockchain"
	"github.com/kollektive-hackathon/multichain/internal/pkg/model"
	"github.com/kollektive-hackathon/multichain/internal/pkg/reject"
	"github.com/kollektive-hackathon/multichain/internal/pkg/utils"
	"github.com/kollektive-hackathon/multichain/pkg/chain"
)

func eventTypes(e *events) []blockchain.EventType {
	var out []blockchain.EventType
	for _, m := range e.events {
		out = append(out, m.(blockchain.Event).Type)
	}
	return out
}

func TestProposalLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.service.cosigner = ownerCosigner{account: f.owners[1]}

	created, problem := f.service.Create(ctx, "alice", f.createRequest(t))
	require.Nil(t, problem)
	assert.Equal(t, model.ProposalPending, created.Status)
	assert.Equal(t, f.account.String(), created.Account)
	assert.Equal(t, 2, created.Threshold)
	assert.Equal(t, f.msig.Addrs, created.Owners)
	assert.Len(t, created.MissingSignatures, 3)
	require.NotEmpty(t, created.SignBuffer)

	// a signature from someone outside the owner set is rejected as a whole
	outsider := crypto.GenerateAccount()
	_, problem = f.service.AddSignatures(ctx, created.Id, "mallory", []string{
		ownerSignature(t, f.owners[0], created.SignBuffer),
		ownerSignature(t, outsider, created.SignBuffer),
	})
	require.NotNil(t, problem)
	assert.Equal(t, http.StatusBadRequest, problem.Problem.Status)
	stored, err := f.proposals.Find(ctx, created.Id)
	require.NoError(t, err)
	assert.Empty(t, stored.Signatures)

	signed, problem := f.service.AddSignatures(ctx, created.Id, "bob", []string{ownerSignature(t, f.owners[0], created.SignBuffer)})
	require.Nil(t, problem)
	assert.Equal(t, model.ProposalPending, signed.Status)
	assert.Len(t, signed.Signatures, 1)
	assert.Len(t, signed.MissingSignatures, 2)

	// resubmitting the same signature changes nothing
	again, problem := f.service.AddSignatures(ctx, created.Id, "bob", []string{ownerSignature(t, f.owners[0], created.SignBuffer)})
	require.Nil(t, problem)
	assert.Equal(t, signed.Signatures, again.Signatures)

	_, problem = f.service.Send(ctx, created.Id, "alice", chain.ConfirmAfterFirstBlock)
	require.NotNil(t, problem)
	assert.Equal(t, http.StatusConflict, problem.Problem.Status)

	_, problem = f.service.Cosign(ctx, created.Id, "bob")
	require.NotNil(t, problem)
	assert.Equal(t, http.StatusForbidden, problem.Problem.Status)

	cosigned, problem := f.service.Cosign(ctx, created.Id, "alice")
	require.Nil(t, problem)
	assert.Equal(t, model.ProposalSigned, cosigned.Status)
	assert.Nil(t, cosigned.MissingSignatures)
	assert.Len(t, cosigned.Signatures, 2)

	_, problem = f.service.Send(ctx, created.Id, "bob", chain.ConfirmAfterFirstBlock)
	require.NotNil(t, problem)
	assert.Equal(t, http.StatusForbidden, problem.Problem.Status)

	sent, problem := f.service.Send(ctx, created.Id, "alice", chain.ConfirmAfterFirstBlock)
	require.Nil(t, problem)
	assert.Equal(t, model.ProposalConfirmed, sent.Status)
	assert.Equal(t, uint64(501), sent.BlockNumber)
	require.Len(t, f.node.sent, 1)
	assert.Equal(t, crypto.GetTxID(f.node.sent[0].Txn), sent.TransactionId)
	assert.Equal(t, uint8(2), f.node.sent[0].Msig.Threshold)

	_, problem = f.service.Send(ctx, created.Id, "alice", chain.ConfirmNone)
	require.NotNil(t, problem)
	assert.Equal(t, http.StatusConflict, problem.Problem.Status)
	_, problem = f.service.AddSignatures(ctx, created.Id, "bob", []string{ownerSignature(t, f.owners[2], created.SignBuffer)})
	require.NotNil(t, problem)
	assert.Equal(t, http.StatusConflict, problem.Problem.Status)

	assert.Equal(t, []blockchain.EventType{
		blockchain.ProposalCreated,
		blockchain.ProposalSigned,
		blockchain.ProposalSigned,
		blockchain.TransactionConfirmed,
	}, eventTypes(f.events))
	assert.Len(t, f.hub.topics, 4)
	assert.Equal(t, "proposal/"+created.Id, f.hub.topics[0])

	require.Len(t, f.proposals.signatures, 2)
	assert.Equal(t, "bob", f.proposals.signatures[0].SubmittedBy)
	assert.Equal(t, "cosigner", f.proposals.signatures[1].SubmittedBy)
}

func TestCreate_Invalid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := f.createRequest(t)
	req.Chain = "flow"
	_, problem := f.service.Create(ctx, "alice", req)
	require.NotNil(t, problem)
	assert.Equal(t, http.StatusBadRequest, problem.Problem.Status)

	req = f.createRequest(t)
	req.Chain = "eos"
	_, problem = f.service.Create(ctx, "alice", req)
	require.NotNil(t, problem)
	assert.Equal(t, http.StatusBadRequest, problem.Problem.Status)

	req = f.createRequest(t)
	req.Multisig = []byte(`{"threshold": 4, "addrs": []}`)
	_, problem = f.service.Create(ctx, "alice", req)
	require.NotNil(t, problem)
	assert.Equal(t, "error.chain.invalid-options", problem.Problem.Code)

	req = f.createRequest(t)
	req.Actions[0]["from"] = f.owners[0].Address.String()
	_, problem = f.service.Create(ctx, "alice", req)
	require.NotNil(t, problem)
	assert.Equal(t, "error.chain.multisig-from-mismatch", problem.Problem.Code)

	_, problem = f.service.Get(ctx, "missing")
	require.NotNil(t, problem)
	assert.Equal(t, http.StatusNotFound, problem.Problem.Status)

	assert.Empty(t, f.events.events)
}

func TestCosign_Rules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, problem := f.service.Create(ctx, "alice", f.createRequest(t))
	require.Nil(t, problem)

	_, problem = f.service.Cosign(ctx, created.Id, "alice")
	require.NotNil(t, problem)
	assert.Equal(t, "error.generic.forbidden", problem.Problem.Code)

	f.service.cosigner = ownerCosigner{account: crypto.GenerateAccount()}
	_, problem = f.service.Cosign(ctx, created.Id, "alice")
	require.NotNil(t, problem)
	assert.Equal(t, http.StatusForbidden, problem.Problem.Status)
	assert.Contains(t, problem.Problem.Detail, f.account.String())
}

func TestList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	var ids []string
	for i := 0; i < 3; i++ {
		created, problem := f.service.Create(ctx, "alice", f.createRequest(t))
		require.Nil(t, problem)
		ids = append(ids, created.Id)
	}
	_, problem := f.service.Create(ctx, "bob", f.createRequest(t))
	require.Nil(t, problem)

	page, problem := f.service.List(ctx, "alice", utils.PageRequest{Size: 2, Token: 0, Offset: 0})
	require.Nil(t, problem)
	assert.Equal(t, int64(3), page.ItemCount)
	assert.Equal(t, int64(1), page.NextPageToken)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[2], page.Items[0].Id)

	page, problem = f.service.List(ctx, "alice", utils.PageRequest{Size: 2, Token: 1, Offset: 2})
	require.Nil(t, problem)
	require.Len(t, page.Items, 1)
	assert.Zero(t, page.NextPageToken)
}

func TestAddSignatures_ConcurrentOwnersAreBothKept(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, problem := f.service.Create(ctx, "alice", f.createRequest(t))
	require.Nil(t, problem)
	f.service.proposals = newMeetingProposals(f.proposals)

	problems := make(chan *reject.ProblemWithTrace, 2)
	for i, submitter := range []string{"bob", "carol"} {
		sig := ownerSignature(t, f.owners[i], created.SignBuffer)
		go func(submitter, sig string) {
			_, problem := f.service.AddSignatures(ctx, created.Id, submitter, []string{sig})
			problems <- problem
		}(submitter, sig)
	}
	require.Nil(t, <-problems)
	require.Nil(t, <-problems)

	stored, err := f.proposals.Find(ctx, created.Id)
	require.NoError(t, err)
	assert.Len(t, stored.Signatures, 2)
	assert.Equal(t, model.ProposalSigned, stored.Status)
	assert.Len(t, f.proposals.signatures, 2)
}

func TestSend_ConcurrentSendsBroadcastOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, problem := f.service.Create(ctx, "alice", f.createRequest(t))
	require.Nil(t, problem)
	signed, problem := f.service.AddSignatures(ctx, created.Id, "bob", []string{
		ownerSignature(t, f.owners[0], created.SignBuffer),
		ownerSignature(t, f.owners[2], created.SignBuffer),
	})
	require.Nil(t, problem)
	require.Equal(t, model.ProposalSigned, signed.Status)
	f.service.proposals = newMeetingProposals(f.proposals)

	problems := make(chan *reject.ProblemWithTrace, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, problem := f.service.Send(ctx, created.Id, "alice", chain.ConfirmNone)
			problems <- problem
		}()
	}
	first, second := <-problems, <-problems
	if first != nil {
		first, second = second, first
	}
	require.Nil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, http.StatusConflict, second.Problem.Status)

	assert.Len(t, f.node.sent, 1)
	stored, err := f.proposals.Find(ctx, created.Id)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalSent, stored.Status)
}
