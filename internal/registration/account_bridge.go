package registration

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multichain/internal/pkg/blockchain"
	"github.com/kollektive-hackathon/multichain/internal/pkg/model"
	"github.com/kollektive-hackathon/multichain/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/multichain/internal/pkg/ws"
	"github.com/kollektive-hackathon/multichain/pkg/utils"
)

type notifier interface {
	Publish(topic string, event any)
}

// accountBridge announces created accounts on pub sub and relays the events
// back to the websocket listeners connected to this instance.
type accountBridge struct {
	hub     notifier
	publish func(pubsub.Publishable)
}

func (b *accountBridge) announce(wallet *model.CustodialWallet) {
	b.publish(blockchain.NewEvent(blockchain.AccountCreated, wallet.Chain).
		WithAccount(wallet.Address).
		WithTransaction(wallet.TransactionId).
		WithPayload(wallet))
}

func (b *accountBridge) handleAccountEvent(_ context.Context, message *gcppubsub.Message) {
	event, err := utils.JsonDecodeByteStream[blockchain.Event](message.Data)
	if err != nil {
		log.Warn().Err(err).Msg("Error while parsing account event")
		message.Ack()
		return
	}
	message.Ack()
	if event.Type != blockchain.AccountCreated {
		return
	}

	log.Debug().Str("chain", event.Chain).Str("account", event.Account).Msg("Relaying account created event")
	b.hub.Publish(ws.AccountTopic(event.Chain, event.Account), map[string]any{
		"type":    event.Type,
		"payload": event.Payload,
	})
}
