package reject

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
	"github.com/kollektive-hackathon/multichain/pkg/reject"
)

type ProblemWithTrace struct {
	Problem reject.Problem
	Cause   error
}

func (p *ProblemWithTrace) Error() string {
	if p.Cause == nil {
		return p.Problem.Title
	}
	return fmt.Sprintf("%s: %v", p.Problem.Title, p.Cause)
}

func Unexpected(err error) *ProblemWithTrace {
	return &ProblemWithTrace{Problem: reject.UnexpectedProblem(err), Cause: err}
}

func NotFound(err error) *ProblemWithTrace {
	return &ProblemWithTrace{Problem: reject.NotFoundProblem(), Cause: err}
}

func Forbidden(detail string) *ProblemWithTrace {
	return &ProblemWithTrace{Problem: reject.ForbiddenProblem(detail), Cause: errors.New(detail)}
}

func BadRequest(title, code string, cause error) *ProblemWithTrace {
	p := reject.NewProblem().
		WithTitle(title).
		WithStatus(http.StatusBadRequest).
		WithCode(code).
		WithDetail(cause.Error()).
		Build()
	return &ProblemWithTrace{Problem: p, Cause: cause}
}

func Validation(err error) *ProblemWithTrace {
	return BadRequest("Invalid request payload", "error.generic.invalid-request-payload", err)
}

var chainStatus = map[chain.ErrorKind]int{
	chain.ErrNotConnected:                http.StatusServiceUnavailable,
	chain.ErrChainConnectFailed:          http.StatusBadGateway,
	chain.ErrInvalidActionShape:          http.StatusBadRequest,
	chain.ErrInvalidOptions:              http.StatusBadRequest,
	chain.ErrMultisigFromMismatch:        http.StatusBadRequest,
	chain.ErrInvalidSignature:            http.StatusBadRequest,
	chain.ErrMutationAfterSignature:      http.StatusConflict,
	chain.ErrNotPrepared:                 http.StatusConflict,
	chain.ErrNotValidated:                http.StatusConflict,
	chain.ErrMissingRequiredSignature:    http.StatusConflict,
	chain.ErrDuplicateTransaction:        http.StatusConflict,
	chain.ErrAccountAlreadyExists:        http.StatusConflict,
	chain.ErrAccountNotFound:             http.StatusNotFound,
	chain.ErrMissingAuthorization:        http.StatusUnprocessableEntity,
	chain.ErrInsufficientResources:       http.StatusUnprocessableEntity,
	chain.ErrTxExpired:                   http.StatusUnprocessableEntity,
	chain.ErrMaxAccountNameAttempts:      http.StatusServiceUnavailable,
	chain.ErrConfirmTransactionTimeout:   http.StatusAccepted,
	chain.ErrMaxBlockReadAttemptsTimeout: http.StatusAccepted,
}

// ChainProblem turns an error from the chain packages into a problem whose
// status follows its kind. Anything unclassified is a 500.
func ChainProblem(err error) *ProblemWithTrace {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(err)
	}
	kind := chain.KindOf(err)
	status, ok := chainStatus[kind]
	if !ok {
		return Unexpected(err)
	}
	p := reject.NewProblem().
		WithTitle("Chain request failed").
		WithStatus(status).
		WithCode("error.chain." + kebab(string(kind))).
		WithDetail(err.Error()).
		WithParam("kind", string(kind)).
		Build()
	return &ProblemWithTrace{Problem: p, Cause: err}
}

func kebab(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func Conflict(detail string) *ProblemWithTrace {
	p := reject.NewProblem().
		WithTitle("Conflicting state").
		WithStatus(http.StatusConflict).
		WithCode("error.generic.conflict").
		WithDetail(detail).
		Build()
	return &ProblemWithTrace{Problem: p, Cause: errors.New(detail)}
}
