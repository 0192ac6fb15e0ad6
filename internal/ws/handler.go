package ws

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multichain/internal/pkg/ws"
	"github.com/kollektive-hackathon/multichain/pkg/middleware"
)

type wsHandler struct {
	notificationHub *ws.WebSocketNotificationHub
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func RegisterRoutes(rg *gin.RouterGroup) {
	handler := wsHandler{
		notificationHub: ws.NewNotificationHub(),
	}

	routes := rg.Group("/ws")
	routes.GET("/proposals/:id", middleware.VerifyAuthToken, handler.serveProposal)
	routes.GET("/accounts/:chain/:account", middleware.VerifyAuthToken, handler.serveAccount)
}

func (wsh *wsHandler) serveProposal(c *gin.Context) {
	wsh.serve(c, ws.ProposalTopic(c.Param("id")))
}

func (wsh *wsHandler) serveAccount(c *gin.Context) {
	wsh.serve(c, ws.AccountTopic(c.Param("chain"), c.Param("account")))
}

func (wsh *wsHandler) serve(c *gin.Context, topic string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Error upgrading ws connection")
		return
	}
	defer conn.Close()
	defer wsh.notificationHub.UnregisterListener(topic, conn)

	wsh.notificationHub.RegisterListener(topic, conn)

	for {
		var buffer any
		err := conn.ReadJSON(&buffer)
		if err != nil {
			log.Debug().Err(err).Str("topic", topic).Msg("ws listener closed")
			return
		}
	}
}
