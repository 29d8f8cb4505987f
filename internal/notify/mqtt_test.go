package notify

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/emmett/chime/internal/alert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	messages     []published
	err          error
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	return doneToken{err: c.err}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.disconnected = true
}

func TestPublisherSendsAlertStates(t *testing.T) {
	client := &fakeClient{}
	p := newMQTTPublisher(client, MQTTConfig{Topic: "home/laundry/", QoS: 1}, nil)
	assert.Equal(t, "home/laundry/state", p.StateTopic())

	latch := alert.NewLatch("washer", nil, p)
	latch.Trigger(33, 80)
	latch.Trigger(31, 80)
	latch.Dismiss()

	require.Len(t, client.messages, 2)

	var raised, cleared Message
	require.NoError(t, json.Unmarshal(client.messages[0].payload, &raised))
	require.NoError(t, json.Unmarshal(client.messages[1].payload, &cleared))

	assert.Equal(t, "detected", raised.State)
	assert.Equal(t, "washer", raised.Pattern)
	assert.Equal(t, 33, raised.Score)
	assert.Equal(t, "cleared", cleared.State)
	assert.Equal(t, raised.AlertID, cleared.AlertID)
	assert.Equal(t, 2, cleared.Matches)

	for _, m := range client.messages {
		assert.Equal(t, "home/laundry/state", m.topic)
		assert.Equal(t, byte(1), m.qos)
		assert.True(t, m.retained)
	}

	p.Close()
	assert.True(t, client.disconnected)
}

func TestPublisherSurvivesBrokerErrors(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	p := newMQTTPublisher(client, MQTTConfig{}, nil)
	assert.Equal(t, "chime/state", p.StateTopic())

	p.AlertRaised(alert.Alert{ID: "a", Pattern: "washer"})
	assert.Len(t, client.messages, 1)
}

func TestNewMQTTPublisherNeedsBroker(t *testing.T) {
	t.Setenv("CHIME_MQTT_BROKER", "")
	_, err := NewMQTTPublisher(MQTTConfig{}, nil)
	assert.Error(t, err)
}
