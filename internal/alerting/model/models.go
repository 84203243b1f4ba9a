package model

import (
	"strings"
	"time"
)

// AlertType classifies an emitted alert.
type AlertType string

const (
	AlertNormal  AlertType = "normal"
	AlertDanger  AlertType = "danger"
	AlertBitmask AlertType = "bitmask"
	// AlertWarning is the persisted form of a normal-tier alert.
	AlertWarning AlertType = "warning"
)

// ChannelType identifies a notification channel for priority lists.
type ChannelType string

const (
	ChannelVoice ChannelType = "voice"
	ChannelSMS   ChannelType = "sms"
	ChannelEmail ChannelType = "email"
)

// Role is a company roster role.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleViewer  Role = "viewer"
)

type Company struct {
	ID   string
	Name string

	// Per-channel opt-in flags for the one-shot SMS/email broadcast.
	AlertSMSAdmin      bool
	AlertSMSManagers   bool
	AlertSMSViewers    bool
	AlertEmailAdmin    bool
	AlertEmailManagers bool
	AlertEmailViewers  bool
}

type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	CompanyID string
	Role      Role

	// Metered data budget, in bytes. Custom is consumed before Subscribe.
	CustomBytes    int64
	SubscribeBytes int64
}

type Sensor struct {
	ID     string
	SiteID string
	Name   string

	// Bitmask holds a comma-separated list of bit positions for
	// bit-decoded sensors; empty for scalar sensors.
	Bitmask string

	ValueMultiplier   float64
	EngineerValueFrom *float64
	EngineerValueTo   *float64

	// RegisterAddress is the modbus register actuation commands target.
	RegisterAddress string
}

type Gateway struct {
	ID     string
	SiteID string
	Name   string
}

// Widget carries a rendering unit and, optionally, one alert rule.
type Widget struct {
	ID       string
	SensorID string
	Title    string
	Rule     *SensorRule
}

// BitReading is one decoded bit of a bitmask sensor value.
type BitReading struct {
	Position int
	State    int
}

// AlertEvent is the transient output of the threshold evaluator. It is never
// persisted directly; AlertRecords are built from it per channel group.
type AlertEvent struct {
	Type        AlertType `json:"type"`
	WidgetID    string    `json:"widget_id"`
	WidgetTitle string    `json:"widget_title"`
	// Bitmask alerts only.
	Bit         int `json:"bit,omitempty"`
	ExpectedBit int `json:"expected_bit,omitempty"`
	// Scalar alerts only: the threshold that fired.
	AlertValue float64 `json:"alert_value,omitempty"`
}

// BitLabel renders the expected bit state for human-facing messages.
func (e AlertEvent) BitLabel() string {
	if e.ExpectedBit == 1 {
		return "On"
	}
	return "Off"
}

// NotifyUser is the recipient snapshot embedded in an AlertRecord.
type NotifyUser struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// RecipientSet buckets the recipients an alert was dispatched to, by channel.
type RecipientSet struct {
	Voice []NotifyUser `json:"voice,omitempty"`
	SMS   []NotifyUser `json:"sms,omitempty"`
	Email []NotifyUser `json:"email,omitempty"`
}

// AlertRecord is one row of the append-only alert log. Read transitions
// false->true exactly once; the record is immutable afterwards.
type AlertRecord struct {
	ID          string
	Type        AlertType
	SensorID    string
	WidgetID    string
	WidgetTitle string
	SensorValue float64
	AlertValue  float64
	Bit         *int
	CompanyID   string
	Users       RecipientSet
	CallSID     string
	SMSCode     string
	EmailCode   string
	Read        bool
	ReadBy      string
	CreatedAt   time.Time
}

// NewRecordFromEvent builds the persisted shape for a fired alert event.
// Normal-tier events are stored as "warning"; bitmask events store the
// expected bit in alert_value and the prior (opposite) bit in sensor_value.
func NewRecordFromEvent(e AlertEvent, sensorID, companyID string, sensorValue float64) *AlertRecord {
	rec := &AlertRecord{
		Type:        e.Type,
		SensorID:    sensorID,
		WidgetID:    e.WidgetID,
		WidgetTitle: e.WidgetTitle,
		CompanyID:   companyID,
	}
	if e.Type == AlertBitmask {
		bit := e.Bit
		rec.Bit = &bit
		rec.AlertValue = float64(e.ExpectedBit)
		rec.SensorValue = float64(1 - e.ExpectedBit)
		return rec
	}
	if e.Type == AlertNormal {
		rec.Type = AlertWarning
	}
	rec.SensorValue = sensorValue
	rec.AlertValue = e.AlertValue
	return rec
}

// NormalizePhone rewrites bare Ukrainian MSISDNs to E.164. Fixed rule, not
// configurable.
func NormalizePhone(phone string) string {
	if strings.HasPrefix(phone, "380") {
		return "+" + phone
	}
	return phone
}

// PriorityEntry orders one recipient within a (company, channel) call list.
// Priorities are dense and 1-based per (company, channel).
type PriorityEntry struct {
	ID        string
	CompanyID string
	Type      ChannelType
	UserID    string
	Priority  int
	Enabled   bool

	// User is populated by list queries; nil when the underlying user
	// no longer exists (repaired away by the next fix pass).
	User *User
}
