package cosign

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multichain/internal/pkg/blockchain"
	"github.com/kollektive-hackathon/multichain/internal/pkg/model"
	"github.com/kollektive-hackathon/multichain/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/multichain/internal/pkg/reject"
	"github.com/kollektive-hackathon/multichain/internal/pkg/utils"
	"github.com/kollektive-hackathon/multichain/internal/pkg/ws"
	"github.com/kollektive-hackathon/multichain/pkg/chain"
	"github.com/kollektive-hackathon/multichain/pkg/chain/ethereum"
)

type chainSource interface {
	Get(ctx context.Context, t chain.ChainType) (chain.Chain, error)
}

type cosigner interface {
	Address() common.Address
	PublicKeyFor(t chain.ChainType) (chain.PublicKey, error)
	Cosign(ctx context.Context, tx chain.Transaction) error
}

type notifier interface {
	Publish(topic string, event any)
}

type cosignService struct {
	proposals proposalRepository
	chains    chainSource
	// cosigner is nil when no server key is configured
	cosigner cosigner
	hub      notifier
	publish  func(pubsub.Publishable)
	now      func() time.Time
}

func (cs *cosignService) Create(ctx context.Context, createdBy string, request CreateProposalRequest) (*ProposalResponse, *reject.ProblemWithTrace) {
	chainType := chain.ChainType(request.Chain)
	if !chainType.Valid() {
		return nil, reject.Validation(errors.New("unknown chain " + request.Chain))
	}
	c, err := cs.chains.Get(ctx, chainType)
	if err != nil {
		return nil, reject.ChainProblem(err)
	}
	msig, err := decodeMultisigOptions(chainType, request.Multisig)
	if err != nil {
		return nil, reject.ChainProblem(err)
	}
	opts := request.Options
	opts.Multisig = msig
	tx, err := c.NewTransaction(ctx, &opts)
	if err != nil {
		return nil, reject.ChainProblem(err)
	}

	actions := make([]chain.Action, 0, len(request.Actions))
	for _, input := range request.Actions {
		a, err := c.DecodeAction(ctx, input)
		if err != nil {
			return nil, reject.ChainProblem(err)
		}
		actions = append(actions, a)
	}
	if err := tx.SetActions(actions...); err != nil {
		return nil, reject.ChainProblem(err)
	}
	if err := tx.PrepareToBeSigned(ctx); err != nil {
		return nil, reject.ChainProblem(err)
	}
	if err := tx.Validate(ctx); err != nil {
		return nil, reject.ChainProblem(err)
	}
	ms := multisigOf(tx)
	if ms == nil {
		return nil, reject.Validation(errors.New("proposals need multisig options"))
	}

	now := cs.now()
	p := &model.Proposal{
		Id:              uuid.New().String(),
		Chain:           string(chainType),
		Account:         ms.Address(),
		MultisigOptions: request.Multisig,
		Raw:             tx.Raw(),
		Status:          model.ProposalPending,
		CreatedBy:       createdBy,
		TimeCreated:     now,
		TimeUpdated:     now,
	}
	if err := cs.proposals.Create(ctx, p); err != nil {
		return nil, reject.Unexpected(err)
	}
	log.Info().Str("proposalId", p.Id).Str("chain", p.Chain).Str("account", p.Account).Msg("Created proposal")

	resp := newProposalResponse(p, tx)
	cs.notify(blockchain.ProposalCreated, p, resp)
	return resp, nil
}

func (cs *cosignService) Get(ctx context.Context, id string) (*ProposalResponse, *reject.ProblemWithTrace) {
	p, tx, err := cs.load(ctx, id)
	if err != nil {
		return nil, reject.ChainProblem(err)
	}
	return newProposalResponse(p, tx), nil
}

func (cs *cosignService) List(ctx context.Context, createdBy string, page utils.PageRequest) (*utils.PageResponse[model.Proposal], *reject.ProblemWithTrace) {
	proposals, total, err := cs.proposals.FindByCreator(ctx, createdBy, page)
	if err != nil {
		return nil, reject.Unexpected(err)
	}
	resp := utils.NewPageResponse[model.Proposal]().
		WithItems(proposals).
		WithItemCount(total)
	if int64(page.Offset+len(proposals)) < total {
		resp.WithNextPageToken(int64(page.Token + 1))
	}
	return resp.Build(), nil
}

// maxUpdateAttempts bounds how often a signature submission starts over after
// losing to a concurrent update of the same proposal.
const maxUpdateAttempts = 5

// AddSignatures verifies owner signatures against the stored body. Either all
// of them are kept or none.
func (cs *cosignService) AddSignatures(ctx context.Context, id, submittedBy string, signatures []string) (*ProposalResponse, *reject.ProblemWithTrace) {
	sigs := make([]chain.Signature, len(signatures))
	for i, s := range signatures {
		sigs[i] = chain.Signature(s)
	}
	return cs.updateSignatures(ctx, id, submittedBy, func(p *model.Proposal, tx chain.Transaction) *reject.ProblemWithTrace {
		if problem := requirePending(p); problem != nil {
			return problem
		}
		if err := tx.AddSignatures(ctx, sigs...); err != nil {
			return reject.ChainProblem(err)
		}
		return nil
	})
}

// Cosign signs the proposal with the server key, which must be one of the
// owners still missing.
func (cs *cosignService) Cosign(ctx context.Context, id, requester string) (*ProposalResponse, *reject.ProblemWithTrace) {
	if cs.cosigner == nil {
		return nil, reject.Forbidden("cosigning is not enabled")
	}
	return cs.updateSignatures(ctx, id, "cosigner", func(p *model.Proposal, tx chain.Transaction) *reject.ProblemWithTrace {
		if p.CreatedBy != requester {
			return reject.Forbidden("only the proposal creator can request a cosignature")
		}
		if problem := requirePending(p); problem != nil {
			return problem
		}
		key, err := cs.cosigner.PublicKeyFor(chain.ChainType(p.Chain))
		if err != nil {
			return reject.ChainProblem(err)
		}
		if !isMissing(tx.MissingSignatures(), key) {
			return reject.Forbidden("the cosigner is not a missing signer of " + p.Account)
		}
		if err := cs.cosigner.Cosign(ctx, tx); err != nil {
			return reject.ChainProblem(err)
		}
		return nil
	})
}

// updateSignatures rebuilds the proposal, lets sign attach signatures and
// stores them. When another request stored the proposal in between, it starts
// over from the stored state so neither request's signatures are lost.
func (cs *cosignService) updateSignatures(ctx context.Context, id, submittedBy string, sign func(*model.Proposal, chain.Transaction) *reject.ProblemWithTrace) (*ProposalResponse, *reject.ProblemWithTrace) {
	for attempt := 1; ; attempt++ {
		p, tx, err := cs.load(ctx, id)
		if err != nil {
			return nil, reject.ChainProblem(err)
		}
		if problem := sign(p, tx); problem != nil {
			return nil, problem
		}
		resp, err := cs.saveSignatures(ctx, p, tx, submittedBy)
		switch {
		case err == nil:
			return resp, nil
		case !errors.Is(err, errStaleProposal):
			return nil, reject.Unexpected(err)
		case attempt >= maxUpdateAttempts:
			return nil, reject.Conflict("proposal " + id + " keeps changing, try again")
		}
		log.Debug().Str("proposalId", id).Int("attempt", attempt).Msg("Proposal changed concurrently, retrying")
	}
}

// Send broadcasts a fully signed proposal. A Safe transaction is executed by
// the cosigner through its parent transaction.
func (cs *cosignService) Send(ctx context.Context, id, requester string, level chain.ConfirmLevel) (*ProposalResponse, *reject.ProblemWithTrace) {
	p, tx, err := cs.load(ctx, id)
	if err != nil {
		return nil, reject.ChainProblem(err)
	}
	if p.CreatedBy != requester {
		return nil, reject.Forbidden("only the proposal creator can send it")
	}
	if p.Status != model.ProposalSigned {
		return nil, reject.Conflict("proposal " + p.Id + " is " + string(p.Status))
	}
	// claim the proposal so a concurrent send cannot broadcast it again
	p.Status = model.ProposalSending
	p.TimeUpdated = cs.now()
	if err := cs.proposals.Update(ctx, p, nil); err != nil {
		if errors.Is(err, errStaleProposal) {
			return nil, reject.Conflict("proposal " + p.Id + " changed while sending")
		}
		return nil, reject.Unexpected(err)
	}

	result, err := cs.broadcast(ctx, tx, level)
	switch {
	case err == nil:
		p.TransactionId = result.TransactionID
		p.BlockNumber = result.BlockNumber
		p.Status = model.ProposalSent
		if result.Confirmed {
			p.Status = model.ProposalConfirmed
		}
	case chain.IsKind(err, chain.ErrConfirmTransactionTimeout), chain.IsKind(err, chain.ErrMaxBlockReadAttemptsTimeout):
		// broadcast happened, inclusion is unknown
		p.Status = model.ProposalSent
		p.TransactionId, _ = tx.TransactionID()
	case broadcastAttempted(err):
		p.Status = model.ProposalFailed
		p.FailureReason = err.Error()
	default:
		p.Status = model.ProposalSigned
		p.TimeUpdated = cs.now()
		if updateErr := cs.proposals.Update(ctx, p, nil); updateErr != nil {
			log.Error().Err(updateErr).Str("proposalId", p.Id).Msg("Failed to release proposal after send error")
		}
		return nil, reject.ChainProblem(err)
	}
	p.TimeUpdated = cs.now()
	if updateErr := cs.proposals.Update(ctx, p, nil); updateErr != nil {
		return nil, reject.Unexpected(updateErr)
	}

	resp := newProposalResponse(p, tx)
	switch p.Status {
	case model.ProposalConfirmed:
		cs.notify(blockchain.TransactionConfirmed, p, resp)
	case model.ProposalSent:
		cs.notify(blockchain.TransactionSent, p, resp)
	case model.ProposalFailed:
		cs.notify(blockchain.TransactionFailed, p, resp)
	}
	if err != nil {
		log.Warn().Err(err).Str("proposalId", p.Id).Msg("Proposal send did not complete")
		return resp, reject.ChainProblem(err)
	}
	log.Info().Str("proposalId", p.Id).Str("txId", p.TransactionId).Msg("Sent proposal")
	return resp, nil
}

func (cs *cosignService) broadcast(ctx context.Context, tx chain.Transaction, level chain.ConfirmLevel) (*chain.SendResult, error) {
	safeTx, ok := tx.(*ethereum.Transaction)
	if !ok || !safeTx.RequiresParentTransaction() {
		return tx.Send(ctx, level)
	}
	if cs.cosigner == nil {
		return nil, chain.NewError(chain.ErrInvalidOptions, "executing a safe transaction needs the cosigner")
	}
	parent, err := safeTx.ParentTransaction(ctx, cs.cosigner.Address())
	if err != nil {
		return nil, err
	}
	if err := parent.PrepareToBeSigned(ctx); err != nil {
		return nil, err
	}
	if err := parent.Validate(ctx); err != nil {
		return nil, err
	}
	if err := cs.cosigner.Cosign(ctx, parent); err != nil {
		return nil, err
	}
	return parent.Send(ctx, level)
}

// load rebuilds the transaction from the stored body and replays the
// accepted signatures.
func (cs *cosignService) load(ctx context.Context, id string) (*model.Proposal, chain.Transaction, error) {
	p, err := cs.proposals.Find(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	chainType := chain.ChainType(p.Chain)
	c, err := cs.chains.Get(ctx, chainType)
	if err != nil {
		return nil, nil, err
	}
	msig, err := decodeMultisigOptions(chainType, p.MultisigOptions)
	if err != nil {
		return nil, nil, err
	}
	tx, err := c.NewTransaction(ctx, &chain.TransactionOptions{Multisig: msig})
	if err != nil {
		return nil, nil, err
	}
	if err := tx.SetFromRaw(ctx, p.Raw); err != nil {
		return nil, nil, err
	}
	if err := tx.Validate(ctx); err != nil {
		return nil, nil, err
	}
	if len(p.Signatures) > 0 {
		sigs := make([]chain.Signature, len(p.Signatures))
		for i, s := range p.Signatures {
			sigs[i] = chain.Signature(s)
		}
		if err := tx.AddSignatures(ctx, sigs...); err != nil {
			return nil, nil, err
		}
	}
	return p, tx, nil
}

func (cs *cosignService) saveSignatures(ctx context.Context, p *model.Proposal, tx chain.Transaction, submittedBy string) (*ProposalResponse, error) {
	known := map[string]bool{}
	for _, s := range p.Signatures {
		known[s] = true
	}
	now := cs.now()
	var added []model.ProposalSignature
	current := tx.Signatures()
	p.Signatures = make([]string, 0, len(current))
	for _, s := range current {
		p.Signatures = append(p.Signatures, string(s))
		if !known[string(s)] {
			added = append(added, model.ProposalSignature{
				ProposalId:  p.Id,
				SubmittedBy: submittedBy,
				Signature:   string(s),
				TimeAdded:   now,
			})
		}
	}
	if tx.HasAllRequiredSignatures() {
		p.Status = model.ProposalSigned
	}
	p.TimeUpdated = now
	if err := cs.proposals.Update(ctx, p, added); err != nil {
		return nil, err
	}

	resp := newProposalResponse(p, tx)
	if len(added) > 0 {
		cs.notify(blockchain.ProposalSigned, p, resp)
	}
	return resp, nil
}

func (cs *cosignService) notify(eventType blockchain.EventType, p *model.Proposal, resp *ProposalResponse) {
	cs.hub.Publish(ws.ProposalTopic(p.Id), map[string]any{
		"type":    eventType,
		"payload": resp,
	})
	cs.publish(blockchain.NewEvent(eventType, p.Chain).
		WithProposal(p.Id, p.Account).
		WithTransaction(p.TransactionId))
}

func requirePending(p *model.Proposal) *reject.ProblemWithTrace {
	if p.Status != model.ProposalPending && p.Status != model.ProposalSigned {
		return reject.Conflict("proposal " + p.Id + " is " + string(p.Status))
	}
	return nil
}

func isMissing(missing []chain.Authorization, key chain.PublicKey) bool {
	for _, a := range missing {
		if a.PublicKey == key || a.Account == string(key) {
			return true
		}
	}
	return false
}

// broadcastAttempted reports whether the node saw and rejected the transaction.
func broadcastAttempted(err error) bool {
	switch chain.KindOf(err) {
	case chain.ErrTxExpired, chain.ErrInsufficientResources, chain.ErrMissingAuthorization,
		chain.ErrDuplicateTransaction, chain.ErrUnknown:
		return true
	}
	return false
}
