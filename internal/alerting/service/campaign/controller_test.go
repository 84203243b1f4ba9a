package campaign

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
)

type fakeAlertStore struct {
	latest   *model.AlertRecord
	inserted []*model.AlertRecord
	attached map[string]string
}

func newFakeAlertStore() *fakeAlertStore {
	return &fakeAlertStore{attached: map[string]string{}}
}

func (s *fakeAlertStore) Insert(_ context.Context, rec *model.AlertRecord) error {
	s.inserted = append(s.inserted, rec)
	return nil
}

func (s *fakeAlertStore) LatestWithCallSID(_ context.Context, _ string, _ *int, _ time.Time) (*model.AlertRecord, error) {
	return s.latest, nil
}

func (s *fakeAlertStore) AttachCallSID(_ context.Context, id, sid string) error {
	s.attached[id] = sid
	return nil
}

type fakeAdminSource struct {
	admin *model.User
}

func (s *fakeAdminSource) Admin(_ context.Context, _ string) (*model.User, error) {
	return s.admin, nil
}

type placedCall struct {
	to  string
	url string
}

type fakeVoice struct {
	calls []placedCall
	err   error
}

func (v *fakeVoice) PlaceCall(_ context.Context, to, callbackURL string) (string, error) {
	if v.err != nil {
		return "", v.err
	}
	v.calls = append(v.calls, placedCall{to: to, url: callbackURL})
	return "CA0001", nil
}

type scheduled struct {
	task *Task
	due  time.Time
}

type fakeScheduler struct {
	queue []scheduled
}

func (s *fakeScheduler) Schedule(_ context.Context, task *Task, due time.Time) error {
	copied := *task
	s.queue = append(s.queue, scheduled{task: &copied, due: due})
	return nil
}

var testNow = time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestController(alerts AlertStore, admins AdminSource, voice *fakeVoice, sched *fakeScheduler) *Controller {
	c := NewController(alerts, admins, voice, sched, "http://api.example.com", time.Minute, time.Hour)
	c.now = func() time.Time { return testNow }
	return c
}

func dangerTask() *Task {
	sensor := &model.Sensor{ID: "s1", Name: "Boiler Pressure"}
	return NewTask("c1", sensor, 95, []model.AlertEvent{{
		Type:        model.AlertDanger,
		WidgetID:    "w1",
		WidgetTitle: "Boiler",
		AlertValue:  80,
	}}, []model.NotifyUser{
		{ID: "u1", Phone: "380501112233"},
		{ID: "u2", Phone: "+15550100"},
	})
}

func TestStepCallsFirstRecipientAndSchedulesNext(t *testing.T) {
	alerts := newFakeAlertStore()
	voice := &fakeVoice{}
	sched := &fakeScheduler{}
	c := newTestController(alerts, &fakeAdminSource{}, voice, sched)

	task := dangerTask()
	c.Step(context.Background(), task)

	require.Len(t, voice.calls, 1)
	assert.Equal(t, "+380501112233", voice.calls[0].to)

	parsed, err := url.Parse(voice.calls[0].url)
	require.NoError(t, err)
	assert.Equal(t, "/public/alert/config", parsed.Path)
	assert.Equal(t, "danger", parsed.Query().Get("type"))
	assert.Equal(t, "Boiler Pressure", parsed.Query().Get("sensor_name"))
	assert.Equal(t, "80", parsed.Query().Get("sensor_value"))
	assert.Empty(t, parsed.Query().Get("is_admin"))

	require.Len(t, alerts.inserted, 1)
	rec := alerts.inserted[0]
	assert.Equal(t, "CA0001", rec.CallSID)
	assert.Equal(t, model.AlertDanger, rec.Type)
	assert.Equal(t, 95.0, rec.SensorValue)
	assert.Equal(t, 80.0, rec.AlertValue)
	require.Len(t, rec.Users.Voice, 2)

	require.Len(t, sched.queue, 1)
	assert.Equal(t, 1, sched.queue[0].task.AttemptUser)
	assert.Equal(t, 0, sched.queue[0].task.AttemptAlert)
	assert.Equal(t, testNow.Add(time.Minute), sched.queue[0].due)
}

func TestStepStopsWhenAcknowledged(t *testing.T) {
	alerts := newFakeAlertStore()
	alerts.latest = &model.AlertRecord{ID: "a1", CallSID: "CA9", Read: true}
	voice := &fakeVoice{}
	sched := &fakeScheduler{}
	c := newTestController(alerts, &fakeAdminSource{}, voice, sched)

	c.Step(context.Background(), dangerTask())

	assert.Empty(t, voice.calls)
	assert.Empty(t, sched.queue)
	assert.Empty(t, alerts.inserted)
}

func TestStepAttachesSIDToExistingUnreadRecord(t *testing.T) {
	alerts := newFakeAlertStore()
	alerts.latest = &model.AlertRecord{ID: "a1", CallSID: "CA9", Read: false}
	voice := &fakeVoice{}
	sched := &fakeScheduler{}
	c := newTestController(alerts, &fakeAdminSource{}, voice, sched)

	c.Step(context.Background(), dangerTask())

	require.Len(t, voice.calls, 1)
	assert.Empty(t, alerts.inserted)
	assert.Equal(t, "CA0001", alerts.attached["a1"])
	require.Len(t, sched.queue, 1)
}

func TestStepEscalatesToAdminPastListEnd(t *testing.T) {
	alerts := newFakeAlertStore()
	voice := &fakeVoice{}
	sched := &fakeScheduler{}
	admins := &fakeAdminSource{admin: &model.User{ID: "adm", Phone: "380671234567"}}
	c := newTestController(alerts, admins, voice, sched)

	task := dangerTask()
	task.AttemptUser = 2

	c.Step(context.Background(), task)

	require.Len(t, voice.calls, 1)
	assert.Equal(t, "+380671234567", voice.calls[0].to)
	parsed, err := url.Parse(voice.calls[0].url)
	require.NoError(t, err)
	assert.Equal(t, "true", parsed.Query().Get("is_admin"))

	// single alert exhausted: no further step is queued
	assert.Empty(t, sched.queue)
	assert.Equal(t, 1, task.AttemptAlert)
	assert.Equal(t, 0, task.AttemptUser)
}

func TestAdminEscalationAdvancesToNextAlert(t *testing.T) {
	alerts := newFakeAlertStore()
	voice := &fakeVoice{}
	sched := &fakeScheduler{}
	admins := &fakeAdminSource{admin: &model.User{ID: "adm", Phone: "+15550111"}}
	c := newTestController(alerts, admins, voice, sched)

	task := dangerTask()
	task.Alerts = append(task.Alerts, model.AlertEvent{
		Type: model.AlertNormal, WidgetID: "w2", WidgetTitle: "Boiler", AlertValue: 50,
	})
	task.AttemptUser = 2

	c.Step(context.Background(), task)

	require.Len(t, sched.queue, 1)
	assert.Equal(t, 1, sched.queue[0].task.AttemptAlert)
	assert.Equal(t, 0, sched.queue[0].task.AttemptUser)
}

func TestAdminEscalationWithoutAdminStops(t *testing.T) {
	alerts := newFakeAlertStore()
	voice := &fakeVoice{}
	sched := &fakeScheduler{}
	c := newTestController(alerts, &fakeAdminSource{}, voice, sched)

	task := dangerTask()
	task.AttemptUser = 2

	c.Step(context.Background(), task)

	assert.Empty(t, voice.calls)
	assert.Empty(t, sched.queue)
}

func TestStepAdvancesPastProviderFailure(t *testing.T) {
	alerts := newFakeAlertStore()
	voice := &fakeVoice{err: errors.New("twilio unavailable")}
	sched := &fakeScheduler{}
	c := newTestController(alerts, &fakeAdminSource{}, voice, sched)

	c.Step(context.Background(), dangerTask())

	assert.Empty(t, alerts.inserted)
	require.Len(t, sched.queue, 1)
	assert.Equal(t, 1, sched.queue[0].task.AttemptUser)
}

func TestBitmaskCallbackURL(t *testing.T) {
	alerts := newFakeAlertStore()
	voice := &fakeVoice{}
	sched := &fakeScheduler{}
	c := newTestController(alerts, &fakeAdminSource{}, voice, sched)

	sensor := &model.Sensor{ID: "s1", Name: "Valve", Bitmask: "2"}
	task := NewTask("c1", sensor, 0, []model.AlertEvent{{
		Type:        model.AlertBitmask,
		WidgetID:    "w1",
		Bit:         2,
		ExpectedBit: 1,
	}}, []model.NotifyUser{{ID: "u1", Phone: "+15550100"}})

	c.Step(context.Background(), task)

	require.Len(t, voice.calls, 1)
	parsed, err := url.Parse(voice.calls[0].url)
	require.NoError(t, err)
	assert.Equal(t, "bitmask", parsed.Query().Get("type"))
	assert.Equal(t, "On", parsed.Query().Get("sensor_value"))
	assert.Equal(t, "2", parsed.Query().Get("bit"))

	require.Len(t, alerts.inserted, 1)
	rec := alerts.inserted[0]
	require.NotNil(t, rec.Bit)
	assert.Equal(t, 2, *rec.Bit)
	assert.Equal(t, 1.0, rec.AlertValue)
	assert.Equal(t, 0.0, rec.SensorValue)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+380501112233", NormalizePhone("380501112233"))
	assert.Equal(t, "+15550100", NormalizePhone("+15550100"))
	assert.Equal(t, "15550100", NormalizePhone("15550100"))
}

func TestCampaignsConvergeWithinOneStepOfAck(t *testing.T) {
	alerts := newFakeAlertStore()
	voice := &fakeVoice{}
	sched := &fakeScheduler{}
	c := newTestController(alerts, &fakeAdminSource{}, voice, sched)

	task := dangerTask()
	c.Step(context.Background(), task)
	require.Len(t, sched.queue, 1)

	// acknowledgment races in from another channel
	alerts.latest = &model.AlertRecord{ID: "a1", CallSID: "CA0001", Read: true}

	next := sched.queue[0].task
	sched.queue = nil
	c.Step(context.Background(), next)

	// no second call was placed and nothing further is queued
	assert.True(t, strings.HasPrefix(voice.calls[0].to, "+380"))
	require.Len(t, voice.calls, 1)
	assert.Empty(t, sched.queue)
}
