package mqttx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
)

func TestPublishRestart(t *testing.T) {
	pub := &fakePublisher{}
	commands := NewCommandPublisher(pub)

	require.NoError(t, commands.PublishRestart(context.Background(), "gw1"))

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "/gw1/command", pub.messages[0].Topic)
	assert.Equal(t, "restart", pub.messages[0].Payload)
}

func TestPublishSwitch(t *testing.T) {
	pub := &fakePublisher{}
	commands := NewCommandPublisher(pub)

	require.NoError(t, commands.PublishSwitch(context.Background(), "s1", "40001", 1))

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "/s1/40001", pub.messages[0].Topic)
	assert.JSONEq(t, `{"command_name":"switch","arguments":1}`, pub.messages[0].Payload)
}

func TestLiveEventTopics(t *testing.T) {
	pub := &fakePublisher{}
	live := NewLiveEvents(pub)

	require.NoError(t, live.WidgetAlert(model.AlertEvent{Type: model.AlertDanger, WidgetID: "w1", WidgetTitle: "Boiler Pressure"}))
	require.NoError(t, live.SensorData("s1", 42.5))
	require.NoError(t, live.Traffic("u1", "off"))

	require.Len(t, pub.messages, 3)
	assert.Equal(t, "/w1/alert", pub.messages[0].Topic)
	assert.JSONEq(t, `{"type":"danger","widget_title":"Boiler Pressure"}`, pub.messages[0].Payload)
	assert.Equal(t, "/s1/data", pub.messages[1].Topic)
	assert.Equal(t, "42.5", pub.messages[1].Payload)
	assert.Equal(t, "/u1/traffic", pub.messages[2].Topic)
	assert.Equal(t, `"off"`, pub.messages[2].Payload)
}
