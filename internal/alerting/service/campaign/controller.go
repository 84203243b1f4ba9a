package campaign

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/metrics"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/provider"
)

// AlertStore is the slice of alert persistence the campaign needs.
type AlertStore interface {
	Insert(ctx context.Context, rec *model.AlertRecord) error
	LatestWithCallSID(ctx context.Context, sensorID string, bit *int, since time.Time) (*model.AlertRecord, error)
	AttachCallSID(ctx context.Context, id, sid string) error
}

// AdminSource resolves the company admin for the escalation tail.
type AdminSource interface {
	Admin(ctx context.Context, companyID string) (*model.User, error)
}

// Step outcomes, used as the campaign_steps_total label.
const (
	outcomeCalled       = "called"
	outcomeAcknowledged = "acknowledged"
	outcomeAdminCalled  = "admin_called"
	outcomeCompleted    = "completed"
	outcomeNoAdmin      = "no_admin"
)

// Controller runs voice escalation campaigns: one call per step, a fixed
// delay between steps, re-checking for acknowledgment at the start of every
// step. Campaigns for different sensors or alert types run independently.
type Controller struct {
	alerts    AlertStore
	admins    AdminSource
	voice     provider.VoiceProvider
	scheduler Scheduler

	apiBase     string
	stepDelay   time.Duration
	guardWindow time.Duration
	now         func() time.Time
}

func NewController(alerts AlertStore, admins AdminSource, voice provider.VoiceProvider, scheduler Scheduler, apiBase string, stepDelay, guardWindow time.Duration) *Controller {
	return &Controller{
		alerts:      alerts,
		admins:      admins,
		voice:       voice,
		scheduler:   scheduler,
		apiBase:     apiBase,
		stepDelay:   stepDelay,
		guardWindow: guardWindow,
		now:         time.Now,
	}
}

// Start runs the campaign's first step immediately. Later steps re-enter
// through the scheduler.
func (c *Controller) Start(ctx context.Context, task *Task) {
	c.Step(ctx, task)
}

// Step executes one state machine transition for the task and, unless the
// campaign ended, queues the next step after the configured delay.
func (c *Controller) Step(ctx context.Context, task *Task) {
	outcome := c.step(ctx, task)
	metrics.CampaignSteps.WithLabelValues(outcome).Inc()
	log.Debug().
		Str("campaign_id", task.CampaignID).
		Str("sensor_id", task.SensorID).
		Str("outcome", outcome).
		Int("attempt_user", task.AttemptUser).
		Int("attempt_alert", task.AttemptAlert).
		Msg("campaign step")
}

func (c *Controller) step(ctx context.Context, task *Task) string {
	alert, ok := task.CurrentAlert()
	if !ok {
		return outcomeCompleted
	}

	if task.AttemptUser >= len(task.Recipients) {
		return c.escalateToAdmin(ctx, task, alert)
	}

	existing, done := c.guard(ctx, task, alert)
	if done {
		return outcomeAcknowledged
	}

	recipient := task.Recipients[task.AttemptUser]
	sid, err := c.voice.PlaceCall(ctx, NormalizePhone(recipient.Phone), c.callbackURL(task, alert, false))
	if err != nil {
		// best effort: the escalation proceeds on schedule regardless
		metrics.DispatchFailures.WithLabelValues("voice").Inc()
		log.Error().Err(err).
			Str("campaign_id", task.CampaignID).
			Str("user_id", recipient.ID).
			Msg("voice call failed")
	} else {
		c.recordCall(ctx, task, alert, existing, sid)
	}

	task.AttemptUser++
	c.scheduleNext(ctx, task)
	return outcomeCalled
}

// escalateToAdmin places the tail-of-list call: the admin is told the alert
// was never acknowledged, then the campaign moves to the next alert with
// the recipient cursor reset. With no alerts left the campaign simply stops.
func (c *Controller) escalateToAdmin(ctx context.Context, task *Task, alert model.AlertEvent) string {
	admin, err := c.admins.Admin(ctx, task.CompanyID)
	if err != nil {
		log.Error().Err(err).Str("company_id", task.CompanyID).Msg("admin lookup failed")
		return outcomeNoAdmin
	}
	if admin == nil {
		return outcomeNoAdmin
	}

	existing, done := c.guard(ctx, task, alert)
	if done {
		return outcomeAcknowledged
	}

	sid, err := c.voice.PlaceCall(ctx, NormalizePhone(admin.Phone), c.callbackURL(task, alert, true))
	if err != nil {
		metrics.DispatchFailures.WithLabelValues("voice").Inc()
		log.Error().Err(err).
			Str("campaign_id", task.CampaignID).
			Str("user_id", admin.ID).
			Msg("admin escalation call failed")
	} else {
		c.recordCall(ctx, task, alert, existing, sid)
	}

	task.AttemptAlert++
	task.AttemptUser = 0
	if _, more := task.CurrentAlert(); more {
		c.scheduleNext(ctx, task)
	}
	return outcomeAdminCalled
}

// guard is the per-step acknowledgment check: the latest call-bearing alert
// for this sensor line inside the escalation window. done reports that a
// human already acknowledged and the campaign must stop.
func (c *Controller) guard(ctx context.Context, task *Task, alert model.AlertEvent) (existing *model.AlertRecord, done bool) {
	var bit *int
	if alert.Type == model.AlertBitmask {
		b := alert.Bit
		bit = &b
	}

	existing, err := c.alerts.LatestWithCallSID(ctx, task.SensorID, bit, c.now().Add(-c.guardWindow))
	if err != nil {
		log.Error().Err(err).Str("campaign_id", task.CampaignID).Msg("campaign guard lookup failed")
		return nil, false
	}
	if existing != nil && existing.Read {
		return existing, true
	}
	return existing, false
}

// recordCall attaches the call SID to the window's existing record, or
// persists a fresh record carrying it.
func (c *Controller) recordCall(ctx context.Context, task *Task, alert model.AlertEvent, existing *model.AlertRecord, sid string) {
	if existing != nil {
		if err := c.alerts.AttachCallSID(ctx, existing.ID, sid); err != nil {
			log.Error().Err(err).Str("alert_id", existing.ID).Msg("failed to attach call sid")
		}
		return
	}

	rec := model.NewRecordFromEvent(alert, task.SensorID, task.CompanyID, task.SensorValue)
	rec.CallSID = sid
	rec.Users = model.RecipientSet{Voice: task.Recipients}
	if err := c.alerts.Insert(ctx, rec); err != nil {
		log.Error().Err(err).Str("campaign_id", task.CampaignID).Msg("failed to persist voice alert")
	}
}

func (c *Controller) scheduleNext(ctx context.Context, task *Task) {
	if err := c.scheduler.Schedule(ctx, task, c.now().Add(c.stepDelay)); err != nil {
		log.Error().Err(err).Str("campaign_id", task.CampaignID).Msg("failed to schedule campaign step")
	}
}

// callbackURL serializes the spoken-message context for the call provider.
func (c *Controller) callbackURL(task *Task, alert model.AlertEvent, isAdmin bool) string {
	v := url.Values{}
	v.Set("sensor_name", task.SensorName)
	if alert.Type == model.AlertBitmask {
		v.Set("type", "bitmask")
		v.Set("sensor_value", alert.BitLabel())
		v.Set("bit", strconv.Itoa(alert.Bit))
	} else {
		v.Set("type", string(alert.Type))
		v.Set("sensor_value", strconv.FormatFloat(alert.AlertValue, 'f', -1, 64))
	}
	if isAdmin {
		v.Set("is_admin", "true")
	}
	return c.apiBase + "/public/alert/config?" + v.Encode()
}

// NormalizePhone rewrites bare Ukrainian MSISDNs to E.164.
func NormalizePhone(phone string) string {
	return model.NormalizePhone(phone)
}
