package mqttx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
)

// Publisher is the outbound half of the transport.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// CommandPublisher sends typed control commands to field devices. It
// replaces ad-hoc raw publishes so every device command goes through one
// audited place.
type CommandPublisher struct {
	pub Publisher
}

func NewCommandPublisher(pub Publisher) *CommandPublisher {
	return &CommandPublisher{pub: pub}
}

// PublishRestart tells a gateway to restart and stop publishing. The
// /{gatewayId}/command topic and the bare "restart" payload are what
// deployed gateways expect.
func (p *CommandPublisher) PublishRestart(_ context.Context, gatewayID string) error {
	return p.pub.Publish("/"+gatewayID+"/command", []byte("restart"))
}

// PublishSwitch actuates an on/off sensor through its modbus register.
func (p *CommandPublisher) PublishSwitch(_ context.Context, sensorID, registerAddress string, args any) error {
	payload, err := json.Marshal(map[string]any{
		"command_name": "switch",
		"arguments":    args,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal switch command: %w", err)
	}
	return p.pub.Publish("/"+sensorID+"/"+registerAddress, payload)
}

// LiveEvents pushes dashboard-facing updates out over the transport.
type LiveEvents struct {
	pub Publisher
}

func NewLiveEvents(pub Publisher) *LiveEvents {
	return &LiveEvents{pub: pub}
}

// WidgetAlert announces a fired alert on the widget's live topic.
func (l *LiveEvents) WidgetAlert(event model.AlertEvent) error {
	payload, err := json.Marshal(map[string]any{
		"type":         event.Type,
		"widget_title": event.WidgetTitle,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal widget alert: %w", err)
	}
	return l.pub.Publish("/"+event.WidgetID+"/alert", payload)
}

// SensorData publishes the parsed display value of a reading.
func (l *LiveEvents) SensorData(sensorID string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal sensor data: %w", err)
	}
	return l.pub.Publish("/"+sensorID+"/data", payload)
}

// Traffic publishes the account's remaining balance, or "off" when the
// quota ran out.
func (l *LiveEvents) Traffic(userID string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal traffic update: %w", err)
	}
	return l.pub.Publish("/"+userID+"/traffic", payload)
}
