package ws

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	events []any
	fail   bool
}

func (r *recorder) WriteJSON(v any) error {
	if r.fail {
		return errors.New("closed")
	}
	r.events = append(r.events, v)
	return nil
}

func TestNotificationHub(t *testing.T) {
	hub := newHub()
	a, b, broken := &recorder{}, &recorder{}, &recorder{fail: true}
	topic := ProposalTopic("p-1")

	hub.RegisterListener(topic, a)
	hub.RegisterListener(topic, broken)
	hub.RegisterListener(topic, b)
	hub.RegisterListener(AccountTopic("eos", "alice"), b)

	hub.Publish(topic, "signed")
	assert.Equal(t, []any{"signed"}, a.events)
	assert.Equal(t, []any{"signed"}, b.events)

	hub.UnregisterListener(topic, a)
	hub.Publish(topic, "sent")
	assert.Len(t, a.events, 1)
	assert.Equal(t, []any{"signed", "sent"}, b.events)
	assert.Equal(t, 2, hub.ListenerCount(topic))

	hub.UnregisterListener(topic, broken)
	hub.UnregisterListener(topic, b)
	assert.Equal(t, 0, hub.ListenerCount(topic))
	assert.Equal(t, 1, hub.ListenerCount("account/eos/alice"))

	hub.Publish("proposal/unknown", "ignored")
	assert.Same(t, NewNotificationHub(), NewNotificationHub())
}
