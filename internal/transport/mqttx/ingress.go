package mqttx

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/metrics"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/service/campaign"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/service/evaluator"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/traffic"
)

type SensorSource interface {
	GetSensor(ctx context.Context, id string) (*model.Sensor, error)
}

type GatewaySource interface {
	GetGateway(ctx context.Context, id string) (*model.Gateway, error)
}

type ReadingSink interface {
	Insert(ctx context.Context, sensorID string, value float64) error
}

type CompanySource interface {
	CompanyBySensor(ctx context.Context, sensorID string) (*model.Company, error)
	CompanyByGateway(ctx context.Context, gatewayID string) (*model.Company, error)
	Roster(ctx context.Context, companyID string) ([]*model.User, error)
	Admin(ctx context.Context, companyID string) (*model.User, error)
}

// QuotaGate bills a message before it is processed.
type QuotaGate interface {
	Process(ctx context.Context, sensorID string, payloadBytes int) (*traffic.Decision, error)
}

type RecipientResolver interface {
	GetPriorities(ctx context.Context, channel model.ChannelType, companyID string) ([]*model.PriorityEntry, error)
}

type CampaignStarter interface {
	Start(ctx context.Context, task *campaign.Task)
}

type AlertBroadcaster interface {
	Broadcast(ctx context.Context, company *model.Company, sensor *model.Sensor, value float64, events []model.AlertEvent, roster []*model.User)
	NotifyGatewayOffline(ctx context.Context, gateway *model.Gateway, admin *model.User)
}

// Pipeline is the telemetry ingress: quota gate, value parsing, alert
// evaluation, dispatch, persistence, live events. A malformed or orphaned
// message is dropped with a log line; it must never take the message loop
// down.
type Pipeline struct {
	gate       QuotaGate
	sensors    SensorSource
	gateways   GatewaySource
	readings   ReadingSink
	companies  CompanySource
	evaluator  *evaluator.Evaluator
	recipients RecipientResolver
	campaigns  CampaignStarter
	broadcast  AlertBroadcaster
	live       *LiveEvents

	wg sync.WaitGroup
}

func NewPipeline(gate QuotaGate, sensors SensorSource, gateways GatewaySource, readings ReadingSink, companies CompanySource, eval *evaluator.Evaluator, recipients RecipientResolver, campaigns CampaignStarter, broadcast AlertBroadcaster, live *LiveEvents) *Pipeline {
	return &Pipeline{
		gate:       gate,
		sensors:    sensors,
		gateways:   gateways,
		readings:   readings,
		companies:  companies,
		evaluator:  eval,
		recipients: recipients,
		campaigns:  campaigns,
		broadcast:  broadcast,
		live:       live,
	}
}

// Subscribe attaches the pipeline to the broker: the telemetry wildcard
// plus the broker presence topics.
func (p *Pipeline) Subscribe(client *Client) error {
	for _, topic := range []string{"#", "$aws/events/presence/connected/+", "$aws/events/presence/disconnected/+"} {
		if err := client.Subscribe(topic, 1, p.HandleMessage); err != nil {
			return err
		}
	}
	return nil
}

// HandleMessage routes one transport message by its topic shape.
func (p *Pipeline) HandleMessage(topic string, payload []byte) error {
	ctx := context.Background()
	parts := strings.Split(topic, "/")

	if len(parts) >= 5 && parts[2] == "presence" {
		switch parts[3] {
		case "connected":
			metrics.MessagesIngested.WithLabelValues("presence_connected").Inc()
			log.Debug().Str("client_id", parts[4]).Msg("gateway connected")
		case "disconnected":
			metrics.MessagesIngested.WithLabelValues("presence_disconnected").Inc()
			return p.handleGatewayOffline(ctx, parts[4])
		}
		return nil
	}

	if len(parts) >= 4 && parts[1] != "" && parts[2] == "sensor" && parts[3] == "data" {
		return p.handleSensorData(ctx, parts[1], payload)
	}
	return nil
}

// Wait blocks until all in-flight alert dispatches finish. Used on
// shutdown and in tests.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) handleSensorData(ctx context.Context, sensorID string, payload []byte) error {
	metrics.MessagesIngested.WithLabelValues("sensor_data").Inc()

	decision, err := p.gate.Process(ctx, sensorID, len(payload))
	if err != nil {
		return fmt.Errorf("traffic gate: %w", err)
	}
	if decision == nil {
		// no billing linkage: drop outright
		return nil
	}
	if !decision.Allowed {
		p.publishLive(p.live.Traffic(decision.UserID, "off"))
		return nil
	}

	raw, err := parseRawValue(payload)
	if err != nil {
		log.Warn().Err(err).Str("sensor_id", sensorID).Msg("dropping unparsable sensor payload")
		return nil
	}

	sensor, err := p.sensors.GetSensor(ctx, sensorID)
	if err != nil {
		return fmt.Errorf("load sensor: %w", err)
	}
	if sensor == nil {
		return nil
	}

	value, bits := evaluator.ParseValue(sensor, raw)

	events, configured, err := p.evaluator.Evaluate(ctx, sensor, raw)
	if err != nil {
		log.Error().Err(err).Str("sensor_id", sensorID).Msg("alert evaluation failed")
	}
	if configured && len(events) > 0 {
		for _, event := range events {
			metrics.AlertsEmitted.WithLabelValues(string(event.Type)).Inc()
			p.publishLive(p.live.WidgetAlert(event))
		}
		p.dispatchAlerts(ctx, sensor, value, events)
	}

	// persisted after evaluation so bitmask edge detection compares
	// against the previous reading, not this one
	if sensor.Bitmask != "" {
		if err := p.readings.Insert(ctx, sensorID, float64(raw)); err != nil {
			log.Error().Err(err).Str("sensor_id", sensorID).Msg("failed to store reading")
		}
		p.publishLive(p.live.SensorData(sensorID, bits))
	} else {
		if err := p.readings.Insert(ctx, sensorID, value); err != nil {
			log.Error().Err(err).Str("sensor_id", sensorID).Msg("failed to store reading")
		}
		p.publishLive(p.live.SensorData(sensorID, value))
	}

	p.publishLive(p.live.Traffic(decision.UserID, decision.Remaining))
	return nil
}

// dispatchAlerts kicks off the voice escalation campaign and the SMS/email
// broadcast without holding up the message loop.
func (p *Pipeline) dispatchAlerts(ctx context.Context, sensor *model.Sensor, value float64, events []model.AlertEvent) {
	company, err := p.companies.CompanyBySensor(ctx, sensor.ID)
	if err != nil {
		log.Error().Err(err).Str("sensor_id", sensor.ID).Msg("company lookup failed")
		return
	}
	if company == nil {
		return
	}

	roster, err := p.companies.Roster(ctx, company.ID)
	if err != nil {
		log.Error().Err(err).Str("company_id", company.ID).Msg("roster lookup failed")
		return
	}

	entries, err := p.recipients.GetPriorities(ctx, model.ChannelVoice, company.ID)
	if err != nil {
		log.Error().Err(err).Str("company_id", company.ID).Msg("voice priority lookup failed")
		entries = nil
	}
	voiceRecipients := make([]model.NotifyUser, 0, len(entries))
	for _, entry := range entries {
		if entry.User == nil {
			continue
		}
		voiceRecipients = append(voiceRecipients, model.NotifyUser{
			ID:        entry.User.ID,
			FirstName: entry.User.FirstName,
			LastName:  entry.User.LastName,
			Email:     entry.User.Email,
			Phone:     entry.User.Phone,
		})
	}

	task := campaign.NewTask(company.ID, sensor, value, events, voiceRecipients)

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.campaigns.Start(context.Background(), task)
	}()
	go func() {
		defer p.wg.Done()
		p.broadcast.Broadcast(context.Background(), company, sensor, value, events, roster)
	}()
}

func (p *Pipeline) handleGatewayOffline(ctx context.Context, clientID string) error {
	gateway, err := p.gateways.GetGateway(ctx, clientID)
	if err != nil {
		return fmt.Errorf("load gateway: %w", err)
	}
	if gateway == nil {
		return nil
	}

	company, err := p.companies.CompanyByGateway(ctx, gateway.ID)
	if err != nil {
		return fmt.Errorf("resolve gateway company: %w", err)
	}
	if company == nil {
		return nil
	}

	admin, err := p.companies.Admin(ctx, company.ID)
	if err != nil {
		return fmt.Errorf("resolve company admin: %w", err)
	}

	p.broadcast.NotifyGatewayOffline(ctx, gateway, admin)
	return nil
}

func (p *Pipeline) publishLive(err error) {
	if err != nil {
		log.Warn().Err(err).Msg("live event publish failed")
	}
}

// parseRawValue decodes the JSON scalar payload devices publish. Values
// arrive as bare integers, floats, or quoted numbers.
func parseRawValue(payload []byte) (int64, error) {
	s := strings.TrimSpace(string(payload))
	s = strings.Trim(s, `"`)
	if s == "" {
		return 0, fmt.Errorf("empty payload")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse payload %q: %w", s, err)
	}
	return int64(f), nil
}
