package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
)

type fakeAlertStore struct {
	inserted []*model.AlertRecord
}

func (s *fakeAlertStore) Insert(_ context.Context, rec *model.AlertRecord) error {
	s.inserted = append(s.inserted, rec)
	return nil
}

type sentSMS struct {
	to   string
	body string
}

type fakeSMS struct {
	sent []sentSMS
	err  error
}

func (f *fakeSMS) SendSMS(_ context.Context, to, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentSMS{to: to, body: body})
	return "SM1", nil
}

type sentEmail struct {
	to      string
	subject string
	html    string
}

type fakeEmail struct {
	sent []sentEmail
	err  error
}

func (f *fakeEmail) SendEmail(_ context.Context, to, subject, html string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{to: to, subject: subject, html: html})
	return nil
}

func broadcastFixture() (*model.Company, *model.Sensor, []*model.User, []model.AlertEvent) {
	company := &model.Company{
		ID:                 "c1",
		AlertSMSAdmin:      true,
		AlertSMSManagers:   true,
		AlertEmailAdmin:    true,
		AlertEmailManagers: false,
	}
	sensor := &model.Sensor{ID: "s1", Name: "Boiler Pressure"}
	roster := []*model.User{
		{ID: "adm", Role: model.RoleAdmin, Phone: "380501112233", Email: "adm@x.com"},
		{ID: "mgr", Role: model.RoleManager, Phone: "+15550100", Email: "mgr@x.com"},
		{ID: "vwr", Role: model.RoleViewer, Phone: "+15550111", Email: "vwr@x.com"},
	}
	events := []model.AlertEvent{{
		Type:        model.AlertDanger,
		WidgetID:    "w1",
		WidgetTitle: "Boiler",
		AlertValue:  80,
	}}
	return company, sensor, roster, events
}

func TestBroadcastSendsToOptedInRecipients(t *testing.T) {
	store := &fakeAlertStore{}
	sms := &fakeSMS{}
	email := &fakeEmail{}
	b := NewBroadcaster(store, sms, email, "http://app.example.com")

	company, sensor, roster, events := broadcastFixture()
	b.Broadcast(context.Background(), company, sensor, 95, events, roster)

	// admin + manager + viewer all take the SMS path; viewers follow the
	// manager flag
	require.Len(t, sms.sent, 3)
	assert.Equal(t, "+380501112233", sms.sent[0].to)
	assert.Contains(t, sms.sent[0].body, "Danger! This is a Viking SCADA Alert, Boiler Pressure has reached 95")
	assert.Contains(t, sms.sent[0].body, "http://app.example.com/sms/confirm/")

	// email goes to the admin only
	require.Len(t, email.sent, 1)
	assert.Equal(t, "adm@x.com", email.sent[0].to)
	assert.Equal(t, "Danger!", email.sent[0].subject)
	assert.Contains(t, email.sent[0].html, "/email/confirm/")
}

func TestBroadcastPersistsOneRecordPerEventPerChannel(t *testing.T) {
	store := &fakeAlertStore{}
	b := NewBroadcaster(store, &fakeSMS{}, &fakeEmail{}, "http://app.example.com")

	company, sensor, roster, events := broadcastFixture()
	b.Broadcast(context.Background(), company, sensor, 95, events, roster)

	require.Len(t, store.inserted, 2)

	smsRec := store.inserted[0]
	assert.Equal(t, model.AlertDanger, smsRec.Type)
	assert.Equal(t, 95.0, smsRec.SensorValue)
	assert.Equal(t, 80.0, smsRec.AlertValue)
	assert.NotEmpty(t, smsRec.SMSCode)
	assert.Empty(t, smsRec.EmailCode)
	assert.Len(t, smsRec.Users.SMS, 3)

	emailRec := store.inserted[1]
	assert.NotEmpty(t, emailRec.EmailCode)
	assert.Empty(t, emailRec.SMSCode)
	assert.Len(t, emailRec.Users.Email, 1)
	assert.NotEqual(t, smsRec.SMSCode, emailRec.EmailCode)
}

func TestBroadcastNormalEventStoredAsWarning(t *testing.T) {
	store := &fakeAlertStore{}
	sms := &fakeSMS{}
	b := NewBroadcaster(store, sms, &fakeEmail{}, "http://app.example.com")

	company, sensor, roster, _ := broadcastFixture()
	events := []model.AlertEvent{{Type: model.AlertNormal, WidgetID: "w1", AlertValue: 50}}
	b.Broadcast(context.Background(), company, sensor, 60, events, roster)

	assert.Contains(t, sms.sent[0].body, "Warning! This is a Viking SCADA Alert")
	require.Len(t, store.inserted, 2)
	assert.Equal(t, model.AlertWarning, store.inserted[0].Type)
}

func TestBroadcastBitmaskMessage(t *testing.T) {
	store := &fakeAlertStore{}
	sms := &fakeSMS{}
	b := NewBroadcaster(store, sms, &fakeEmail{}, "http://app.example.com")

	company, sensor, roster, _ := broadcastFixture()
	events := []model.AlertEvent{{Type: model.AlertBitmask, WidgetID: "w1", Bit: 3, ExpectedBit: 1}}
	b.Broadcast(context.Background(), company, sensor, 0, events, roster)

	require.NotEmpty(t, sms.sent)
	assert.Contains(t, sms.sent[0].body, "On/Off Bit 3 is in an On State")

	rec := store.inserted[0]
	require.NotNil(t, rec.Bit)
	assert.Equal(t, 3, *rec.Bit)
	assert.Equal(t, 1.0, rec.AlertValue)
	assert.Equal(t, 0.0, rec.SensorValue)
}

func TestBroadcastSurvivesProviderFailure(t *testing.T) {
	store := &fakeAlertStore{}
	sms := &fakeSMS{err: errors.New("twilio down")}
	email := &fakeEmail{}
	b := NewBroadcaster(store, sms, email, "http://app.example.com")

	company, sensor, roster, events := broadcastFixture()
	b.Broadcast(context.Background(), company, sensor, 95, events, roster)

	// records are still written and email still goes out
	assert.Len(t, store.inserted, 2)
	assert.Len(t, email.sent, 1)
}

func TestNotifyGatewayOffline(t *testing.T) {
	sms := &fakeSMS{}
	email := &fakeEmail{}
	b := NewBroadcaster(&fakeAlertStore{}, sms, email, "http://app.example.com")

	gateway := &model.Gateway{ID: "g1", Name: "North Field"}
	admin := &model.User{ID: "adm", Phone: "380501112233", Email: "adm@x.com"}
	b.NotifyGatewayOffline(context.Background(), gateway, admin)

	require.Len(t, sms.sent, 1)
	assert.Equal(t, "+380501112233", sms.sent[0].to)
	assert.Contains(t, sms.sent[0].body, `gateway "North Field" is offline`)
	require.Len(t, email.sent, 1)
	assert.Equal(t, "Gateway is offline", email.sent[0].subject)
}

func TestNewAckCodeUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code := NewAckCode()
		assert.False(t, seen[code])
		seen[code] = true
	}
}
