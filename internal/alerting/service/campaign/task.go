package campaign

import (
	"github.com/google/uuid"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
)

// Task is the serialized state of one voice escalation campaign. It carries
// a snapshot of the call list taken when the campaign started; roster
// changes mid-campaign do not affect steps already queued.
type Task struct {
	CampaignID  string             `json:"campaign_id"`
	CompanyID   string             `json:"company_id"`
	SensorID    string             `json:"sensor_id"`
	SensorName  string             `json:"sensor_name"`
	SensorValue float64            `json:"sensor_value"`
	Alerts      []model.AlertEvent `json:"alerts"`
	Recipients  []model.NotifyUser `json:"recipients"`

	// Cursor into Recipients and Alerts. AttemptUser past the end of
	// Recipients means the campaign has escalated to the company admin.
	AttemptUser  int `json:"attempt_user"`
	AttemptAlert int `json:"attempt_alert"`
}

// NewTask starts campaign state at the first recipient of the first alert.
func NewTask(companyID string, sensor *model.Sensor, sensorValue float64, alerts []model.AlertEvent, recipients []model.NotifyUser) *Task {
	return &Task{
		CampaignID:  uuid.NewString(),
		CompanyID:   companyID,
		SensorID:    sensor.ID,
		SensorName:  sensor.Name,
		SensorValue: sensorValue,
		Alerts:      alerts,
		Recipients:  recipients,
	}
}

// CurrentAlert returns the alert the cursor points at, or false when every
// alert has been walked.
func (t *Task) CurrentAlert() (model.AlertEvent, bool) {
	if t.AttemptAlert >= len(t.Alerts) {
		return model.AlertEvent{}, false
	}
	return t.Alerts[t.AttemptAlert], true
}
