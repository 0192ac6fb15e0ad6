package ws

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var singletonMutex sync.Mutex

// Listener is satisfied by *websocket.Conn.
type Listener interface {
	WriteJSON(v any) error
}

var _ Listener = (*websocket.Conn)(nil)

type WebSocketNotificationHub struct {
	registrationMutex sync.Mutex
	listeners         map[string][]Listener
}

func ProposalTopic(proposalId string) string {
	return "proposal/" + proposalId
}

func AccountTopic(chain, account string) string {
	return "account/" + chain + "/" + account
}

func (hub *WebSocketNotificationHub) RegisterListener(topic string, conn Listener) {
	hub.registrationMutex.Lock()
	defer hub.registrationMutex.Unlock()

	hub.listeners[topic] = append(hub.listeners[topic], conn)
}

func (hub *WebSocketNotificationHub) UnregisterListener(topic string, conn Listener) {
	hub.registrationMutex.Lock()
	defer hub.registrationMutex.Unlock()

	listeners := hub.listeners[topic]
	for i, listener := range listeners {
		if listener == conn {
			listeners = append(listeners[:i:i], listeners[i+1:]...)
			break
		}
	}
	if len(listeners) == 0 {
		delete(hub.listeners, topic)
		return
	}
	hub.listeners[topic] = listeners
}

func (hub *WebSocketNotificationHub) ListenerCount(topic string) int {
	hub.registrationMutex.Lock()
	defer hub.registrationMutex.Unlock()
	return len(hub.listeners[topic])
}

// Publish writes event to every listener of targetTopic. Writes happen under
// the hub lock since a websocket connection allows one writer at a time.
func (hub *WebSocketNotificationHub) Publish(targetTopic string, event any) {
	hub.registrationMutex.Lock()
	defer hub.registrationMutex.Unlock()

	for _, listener := range hub.listeners[targetTopic] {
		if err := listener.WriteJSON(event); err != nil {
			log.Debug().Err(err).Str("topic", targetTopic).Msg("Failed to write ws event")
		}
	}
}

var notificationHubSingleton *WebSocketNotificationHub

func NewNotificationHub() *WebSocketNotificationHub {
	singletonMutex.Lock()
	defer singletonMutex.Unlock()

	if notificationHubSingleton == nil {
		notificationHubSingleton = newHub()
	}

	return notificationHubSingleton
}

func newHub() *WebSocketNotificationHub {
	return &WebSocketNotificationHub{
		listeners: make(map[string][]Listener),
	}
}
