package pubsub

import (
	"context"
	"encoding/json"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Publishable interface {
	GetEventTopicName() string
}

var ctx context.Context
var client *pubsub.Client

var topicsMutex sync.Mutex
var topics = map[string]*pubsub.Topic{}

func InitPubSub() {
	projectID := viper.GetString("GOOGLE_PROJECT_ID")
	if projectID == "" {
		log.Fatal().Msg("Pub sub missing projectID to initialize")
	}
	ctx = context.Background()
	var err error
	client, err = pubsub.NewClient(ctx, projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing pub sub connection")
	}
	log.Info().Str("projectId", projectID).Msg("Successful pubsub init")
}

func Subscribe(subscriptionHandler SubscriptionHandler) {
	sub := client.Subscription(subscriptionHandler.SubscriptionId)
	err := sub.Receive(ctx, subscriptionHandler.Handler)
	if err != nil {
		log.Error().Err(err).Str("subscriptionId", subscriptionHandler.SubscriptionId).Msg("Subscriber error")
	}
}

// Publish is fire and forget: a failed publish is logged, never returned.
func Publish(message Publishable) {
	if client == nil {
		log.Warn().Str("topic", message.GetEventTopicName()).Msg("Pub sub is not initialized, dropping message")
		return
	}
	t := getTopic(message.GetEventTopicName())
	if t == nil {
		return
	}

	result := t.Publish(ctx, &pubsub.Message{Data: encodeMessage(message)})

	go func(res *pubsub.PublishResult) {
		_, err := res.Get(ctx)
		if err != nil {
			log.Warn().Err(err).Str("topic", message.GetEventTopicName()).Msg("Failed to publish message")
		}
	}(result)
}

func CloseClient() {
	if client == nil {
		return
	}
	topicsMutex.Lock()
	for _, t := range topics {
		t.Stop()
	}
	topicsMutex.Unlock()
	client.Close()
}

func getTopic(topicName string) *pubsub.Topic {
	topicsMutex.Lock()
	defer topicsMutex.Unlock()
	if t, ok := topics[topicName]; ok {
		return t
	}

	t := client.Topic(topicName)
	exists, err := t.Exists(ctx)
	if err != nil {
		log.Error().Err(err).Str("topic", topicName).Msg("Cant check topic")
		return nil
	}
	if !exists {
		log.Info().Str("topic", topicName).Msg("Topic does not exist. Creating new")
		t, err = client.CreateTopic(ctx, topicName)
		if err != nil {
			log.Error().Err(err).Str("topic", topicName).Msg("Cant create topic")
			return nil
		}
	}
	topics[topicName] = t
	return t
}

func encodeMessage(message any) []byte {
	switch m := message.(type) {
	case string:
		return []byte(m)
	default:
		bytes, _ := json.Marshal(message)
		return bytes
	}
}
