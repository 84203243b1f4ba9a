// Package traffic meters telemetry against per-account byte quotas. Every
// inbound sensor message is billed to the owning company's admin; exhausted
// accounts get their gateway restarted so the device stops publishing.
package traffic

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/metrics"
)

// CommandPublisher sends control commands down to field gateways.
type CommandPublisher interface {
	PublishRestart(ctx context.Context, gatewayID string) error
}

// Decision is the gate's verdict for one message.
type Decision struct {
	Allowed bool
	UserID  string
	// Remaining is the combined balance after the debit; zero when the
	// message was refused.
	Remaining int64
}

type Gate struct {
	store    Store
	commands CommandPublisher
	// overhead approximates per-message transport framing cost in bytes,
	// added to the payload length before debiting.
	overhead int64
}

func NewGate(store Store, commands CommandPublisher, overheadBytes int) *Gate {
	return &Gate{store: store, commands: commands, overhead: int64(overheadBytes)}
}

// Process bills one telemetry message. A nil decision means the sensor has
// no usable billing linkage and the message must be dropped outright.
// Allowed=false means the account is out of quota; the caller still owes
// the device a traffic-off notification.
func (g *Gate) Process(ctx context.Context, sensorID string, payloadBytes int) (*Decision, error) {
	billing, err := g.store.ResolveBilling(ctx, sensorID)
	if err != nil {
		return nil, err
	}
	if billing == nil {
		metrics.TrafficDecisions.WithLabelValues("no_linkage").Inc()
		return nil, nil
	}
	if billing.UserID == "" {
		// customer has no plan at all: silence the gateway
		metrics.TrafficDecisions.WithLabelValues("no_billing").Inc()
		g.restart(ctx, billing.GatewayID)
		return nil, nil
	}

	balance := billing.CustomBytes + billing.SubscribeBytes
	if balance <= 0 {
		metrics.TrafficDecisions.WithLabelValues("off").Inc()
		g.restart(ctx, billing.GatewayID)
		return &Decision{Allowed: false, UserID: billing.UserID}, nil
	}

	cost := int64(payloadBytes) + g.overhead
	if balance-cost < 0 {
		metrics.TrafficDecisions.WithLabelValues("off").Inc()
		g.restart(ctx, billing.GatewayID)
		return &Decision{Allowed: false, UserID: billing.UserID}, nil
	}

	custom, subscribe, err := g.store.Debit(ctx, billing.UserID, cost)
	if err != nil {
		return nil, err
	}

	metrics.TrafficDecisions.WithLabelValues("allowed").Inc()
	return &Decision{Allowed: true, UserID: billing.UserID, Remaining: custom + subscribe}, nil
}

func (g *Gate) restart(ctx context.Context, gatewayID string) {
	if err := g.commands.PublishRestart(ctx, gatewayID); err != nil {
		log.Error().Err(err).Str("gateway_id", gatewayID).Msg("failed to publish gateway restart")
	}
}
