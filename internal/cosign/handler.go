package cosign

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kollektive-hackathon/multichain/internal/keymgmt"
	"github.com/kollektive-hackathon/multichain/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/multichain/internal/pkg/utils"
	"github.com/kollektive-hackathon/multichain/internal/pkg/ws"
	"github.com/kollektive-hackathon/multichain/pkg/chain"
	"github.com/kollektive-hackathon/multichain/pkg/middleware"
	"github.com/kollektive-hackathon/multichain/pkg/multichain"
	"github.com/kollektive-hackathon/multichain/pkg/reject"
	pkgutils "github.com/kollektive-hackathon/multichain/pkg/utils"
)

type cosignHandler struct {
	cosign *cosignService
}

// RegisterRoutes mounts the proposal API. signer may be nil, which disables
// cosigning and Safe execution.
func RegisterRoutes(rg *gin.RouterGroup, db *gorm.DB, chains *multichain.Registry, signer *keymgmt.Signer) {
	service := &cosignService{
		proposals: &gormProposals{db: db},
		chains:    chains,
		hub:       ws.NewNotificationHub(),
		publish:   pubsub.Publish,
		now:       time.Now,
	}
	if signer != nil {
		service.cosigner = signer
	}
	registerRoutes(rg, &cosignHandler{cosign: service}, middleware.VerifyAuthToken)
}

func registerRoutes(rg *gin.RouterGroup, handler *cosignHandler, auth gin.HandlerFunc) {
	routes := rg.Group("/cosign/proposals")
	routes.POST("", auth, handler.create)
	routes.GET("", auth, handler.list)
	routes.GET("/:id", auth, handler.get)
	routes.POST("/:id/signatures", auth, handler.addSignatures)
	routes.POST("/:id/cosign", auth, handler.cosignProposal)
	routes.POST("/:id/send", auth, handler.send)
}

func (ch cosignHandler) create(c *gin.Context) {
	body := CreateProposalRequest{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}

	proposal, problem := ch.cosign.Create(c.Request.Context(), pkgutils.GetUserExternalId(c), body)
	if problem != nil {
		c.JSON(problem.Problem.Status, problem.Problem)
		return
	}

	c.JSON(http.StatusCreated, proposal)
}

func (ch cosignHandler) list(c *gin.Context) {
	page, problem := utils.NewPageRequest(c)
	if problem != nil {
		c.JSON(problem.Problem.Status, problem.Problem)
		return
	}

	proposals, problem := ch.cosign.List(c.Request.Context(), pkgutils.GetUserExternalId(c), page)
	if problem != nil {
		c.JSON(problem.Problem.Status, problem.Problem)
		return
	}

	c.JSON(http.StatusOK, proposals)
}

func (ch cosignHandler) get(c *gin.Context) {
	proposal, problem := ch.cosign.Get(c.Request.Context(), c.Param("id"))
	if problem != nil {
		c.JSON(problem.Problem.Status, problem.Problem)
		return
	}

	c.JSON(http.StatusOK, proposal)
}

func (ch cosignHandler) addSignatures(c *gin.Context) {
	body := SignaturesRequest{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.RequestValidationProblem())
		return
	}

	proposal, problem := ch.cosign.AddSignatures(c.Request.Context(), c.Param("id"), pkgutils.GetUserExternalId(c), body.Signatures)
	if problem != nil {
		c.JSON(problem.Problem.Status, problem.Problem)
		return
	}

	c.JSON(http.StatusOK, proposal)
}

func (ch cosignHandler) cosignProposal(c *gin.Context) {
	proposal, problem := ch.cosign.Cosign(c.Request.Context(), c.Param("id"), pkgutils.GetUserExternalId(c))
	if problem != nil {
		c.JSON(problem.Problem.Status, problem.Problem)
		return
	}

	c.JSON(http.StatusOK, proposal)
}

func (ch cosignHandler) send(c *gin.Context) {
	level := chain.ConfirmAfterFirstBlock
	if raw := c.Query("confirm"); raw != "" {
		confirm, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, reject.RequestParamsProblem())
			return
		}
		if !confirm {
			level = chain.ConfirmNone
		}
	}

	proposal, problem := ch.cosign.Send(c.Request.Context(), c.Param("id"), pkgutils.GetUserExternalId(c), level)
	if problem != nil {
		if proposal != nil {
			c.JSON(problem.Problem.Status, gin.H{"problem": problem.Problem, "proposal": proposal})
			return
		}
		c.JSON(problem.Problem.Status, problem.Problem)
		return
	}

	c.JSON(http.StatusOK, proposal)
}
