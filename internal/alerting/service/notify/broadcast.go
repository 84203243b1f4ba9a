// Package notify implements the one-shot SMS/email alert broadcast. Unlike
// voice escalation this path blasts every opted-in recipient immediately,
// with no waiting and no redelivery; a shared acknowledgment code per batch
// lets any recipient confirm for everyone.
package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/provider"
)

// AlertStore persists one record per fired event per channel batch.
type AlertStore interface {
	Insert(ctx context.Context, rec *model.AlertRecord) error
}

type Broadcaster struct {
	alerts AlertStore
	sms    provider.SMSProvider
	email  provider.EmailProvider
	appURL string
}

func NewBroadcaster(alerts AlertStore, sms provider.SMSProvider, email provider.EmailProvider, appURL string) *Broadcaster {
	return &Broadcaster{alerts: alerts, sms: sms, email: email, appURL: appURL}
}

// Broadcast sends every fired event to every eligible roster member over
// SMS and email. Each channel batch shares one acknowledgment code and
// persists its own record per event. Dispatch failures are logged and
// counted, never propagated.
func (b *Broadcaster) Broadcast(ctx context.Context, company *model.Company, sensor *model.Sensor, value float64, events []model.AlertEvent, roster []*model.User) {
	smsUsers, emailUsers := b.selectRecipients(company, roster)

	smsCode := NewAckCode()
	for _, user := range smsUsers {
		for _, event := range events {
			to := model.NormalizePhone(user.Phone)
			body := messageBody(sensor.Name, value, event) +
				fmt.Sprintf(". Click %s/sms/confirm/%s to confirm receiving this notification.", b.appURL, smsCode)
			bestEffort("sms", func() error {
				_, err := b.sms.SendSMS(ctx, to, body)
				return err
			})
		}
	}
	b.persistBatch(ctx, company, sensor, value, events, func(rec *model.AlertRecord) {
		rec.SMSCode = smsCode
		rec.Users = model.RecipientSet{SMS: smsUsers}
	})

	emailCode := NewAckCode()
	for _, user := range emailUsers {
		for _, event := range events {
			subject := "Viking SCADA Alert"
			if event.Type == model.AlertDanger {
				subject = "Danger!"
			}
			html := messageBody(sensor.Name, value, event) +
				fmt.Sprintf(`. Click <a href="%s/email/confirm/%s">this link</a> to confirm receiving this notification.`, b.appURL, emailCode)
			to := user.Email
			bestEffort("email", func() error {
				return b.email.SendEmail(ctx, to, subject, html)
			})
		}
	}
	b.persistBatch(ctx, company, sensor, value, events, func(rec *model.AlertRecord) {
		rec.EmailCode = emailCode
		rec.Users = model.RecipientSet{Email: emailUsers}
	})
}

// selectRecipients buckets the roster by the company's per-channel opt-in
// flags. Viewers follow the manager flags; that is long-standing behavior
// existing installs rely on.
func (b *Broadcaster) selectRecipients(company *model.Company, roster []*model.User) (sms, email []model.NotifyUser) {
	for _, user := range roster {
		nu := model.NotifyUser{
			ID:        user.ID,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Email:     user.Email,
			Phone:     user.Phone,
		}
		switch user.Role {
		case model.RoleAdmin:
			if company.AlertSMSAdmin {
				sms = append(sms, nu)
			}
			if company.AlertEmailAdmin {
				email = append(email, nu)
			}
		case model.RoleManager, model.RoleViewer:
			if company.AlertSMSManagers {
				sms = append(sms, nu)
			}
			if company.AlertEmailManagers {
				email = append(email, nu)
			}
		}
	}
	return sms, email
}

func (b *Broadcaster) persistBatch(ctx context.Context, company *model.Company, sensor *model.Sensor, value float64, events []model.AlertEvent, decorate func(*model.AlertRecord)) {
	for _, event := range events {
		rec := model.NewRecordFromEvent(event, sensor.ID, company.ID, value)
		decorate(rec)
		bestEffort("persist", func() error {
			return b.alerts.Insert(ctx, rec)
		})
	}
}

// NotifyGatewayOffline tells the company admin their gateway dropped off
// the network, over both SMS and email.
func (b *Broadcaster) NotifyGatewayOffline(ctx context.Context, gateway *model.Gateway, admin *model.User) {
	if admin == nil {
		return
	}
	body := fmt.Sprintf("Warning! Your gateway %q is offline.", gateway.Name)

	to := model.NormalizePhone(admin.Phone)
	bestEffort("sms", func() error {
		_, err := b.sms.SendSMS(ctx, to, body)
		return err
	})
	bestEffort("email", func() error {
		return b.email.SendEmail(ctx, admin.Email, "Gateway is offline", body)
	})
}

func messageBody(sensorName string, value float64, event model.AlertEvent) string {
	switch event.Type {
	case model.AlertBitmask:
		return fmt.Sprintf("Warning! This is a Viking SCADA Alert, %s On/Off Bit %d is in an %s State",
			sensorName, event.Bit, event.BitLabel())
	case model.AlertDanger:
		return fmt.Sprintf("Danger! This is a Viking SCADA Alert, %s has reached %s",
			sensorName, formatValue(value))
	default:
		return fmt.Sprintf("Warning! This is a Viking SCADA Alert, %s has reached %s",
			sensorName, formatValue(value))
	}
}

func formatValue(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
