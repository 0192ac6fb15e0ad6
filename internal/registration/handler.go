package registration

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/kollektive-hackathon/multichain/internal/keymgmt"
	"github.com/kollektive-hackathon/multichain/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/multichain/internal/pkg/utils"
	"github.com/kollektive-hackathon/multichain/internal/pkg/ws"
	"github.com/kollektive-hackathon/multichain/pkg/middleware"
	"github.com/kollektive-hackathon/multichain/pkg/multichain"
	"github.com/kollektive-hackathon/multichain/pkg/reject"
	pkgutils "github.com/kollektive-hackathon/multichain/pkg/utils"
)

type registrationHandler struct {
	registration *registrationService
}

// RegisterRoutesAndSubscriptions mounts the wallet registration API and starts
// relaying account events to websocket listeners.
func RegisterRoutesAndSubscriptions(rg *gin.RouterGroup, db *gorm.DB, chains *multichain.Registry, signer *keymgmt.Signer) {
	bridge := &accountBridge{
		hub:     ws.NewNotificationHub(),
		publish: pubsub.Publish,
	}
	service := &registrationService{
		wallets:    &gormWallets{db: db},
		chains:     chains,
		eosCreator: viper.GetString("EOS_CREATOR_ACCOUNT"),
		bridge:     bridge,
		now:        time.Now,
	}
	if signer != nil {
		service.cosigner = signer
	}
	registerRoutes(rg, &registrationHandler{registration: service}, middleware.VerifyAuthToken)

	if subscription := viper.GetString("ACCOUNT_EVENTS_SUBSCRIPTION"); subscription != "" {
		go pubsub.Subscribe(pubsub.SubscriptionHandler{
			SubscriptionId: subscription,
			Handler:        bridge.handleAccountEvent,
		})
	}
}

func registerRoutes(rg *gin.RouterGroup, handler *registrationHandler, auth gin.HandlerFunc) {
	routes := rg.Group("/registration")
	routes.POST("", auth, handler.register)
	routes.GET("/wallets", auth, handler.wallets)
}

type RegistrationRequest struct {
	Chain string `json:"chain" binding:"required"`
	// Password encrypts generated keys. Multisig accounts generate none.
	Password    string          `json:"password"`
	Multisig    json.RawMessage `json:"multisig"`
	AccountName string          `json:"accountName" binding:"omitempty,max=12"`
}

func (h registrationHandler) register(c *gin.Context) {
	body := RegistrationRequest{}

	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}

	wallet, problem := h.registration.register(c.Request.Context(), pkgutils.GetUserExternalId(c), body)
	if problem != nil {
		c.JSON(problem.Problem.Status, problem.Problem)
		return
	}

	c.JSON(http.StatusCreated, wallet)
}

func (h registrationHandler) wallets(c *gin.Context) {
	page, problem := utils.NewPageRequest(c)
	if problem != nil {
		c.JSON(problem.Problem.Status, problem.Problem)
		return
	}

	wallets, problem := h.registration.list(c.Request.Context(), pkgutils.GetUserExternalId(c), page)
	if problem != nil {
		c.JSON(problem.Problem.Status, problem.Problem)
		return
	}

	c.JSON(http.StatusOK, wallets)
}
