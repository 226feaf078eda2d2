package telemetry

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/udpsource/internal/logging"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Error() error                   { return nil }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// fakeMQTT overrides the calls the publisher makes; anything else panics.
type fakeMQTT struct {
	mqtt.Client

	mu           sync.Mutex
	topics       []string
	payloads     [][]byte
	disconnected bool
}

func (f *fakeMQTT) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload.([]byte))
	return doneToken{}
}

func (f *fakeMQTT) Disconnect(uint) {
	f.mu.Lock()
	f.disconnected = true
	f.mu.Unlock()
}

func TestMQTTPublisherSendsRefreshedSnapshots(t *testing.T) {
	fake := &fakeMQTT{}
	p := newMQTTPublisher(fake, MQTTConfig{Topic: "udpsource/abc/telemetry", ClientID: "abc"}, logging.Nop())

	p.Report(Snapshot{Tick: 1})
	p.Report(Snapshot{Tick: 4, PowerRefreshed: true, ChannelPowerDB: -12.5})
	p.Close()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.payloads, 1)
	assert.Equal(t, "udpsource/abc/telemetry", fake.topics[0])
	assert.True(t, fake.disconnected)

	var got map[string]any
	require.NoError(t, json.Unmarshal(fake.payloads[0], &got))
	assert.Equal(t, "abc", got["instance"])
	assert.Equal(t, 4.0, got["tick"])
	assert.Equal(t, -12.5, got["channelPowerDb"])
}

func TestNewMQTTPublisherRequiresBrokerAndTopic(t *testing.T) {
	_, err := NewMQTTPublisher(MQTTConfig{Topic: "x"}, nil)
	assert.Error(t, err)
	_, err = NewMQTTPublisher(MQTTConfig{Broker: "tcp://127.0.0.1:1883"}, nil)
	assert.Error(t, err)
}

func TestMultiReporterSkipsNil(t *testing.T) {
	var got []uint64
	m := MultiReporter{nil, ReporterFunc(func(s Snapshot) { got = append(got, s.Tick) })}
	m.Report(Snapshot{Tick: 9})
	assert.Equal(t, []uint64{9}, got)
}
