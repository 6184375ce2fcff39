package policy

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"newsdesk/pressroom/internal/models"
)

// noon on a fixed date, UTC policies unless stated otherwise
var noon = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func basePolicy() *models.PublishingPolicy {
	return models.NewPublishingPolicy("web")
}

func TestEvaluateDisabledPlatform(t *testing.T) {
	p := basePolicy()
	p.IsEnabled = false

	v := Evaluate(p, noon, false, Usage{})
	assert.False(t, v.Allowed)
	assert.Equal(t, ReasonDisabled, v.Reason)

	// Emergency override does not resurrect a disabled platform.
	p.EmergencyOverride = true
	v = Evaluate(p, noon, true, Usage{})
	assert.False(t, v.Allowed)
}

func TestEvaluateAllowsByDefault(t *testing.T) {
	v := Evaluate(basePolicy(), noon, false, Usage{})
	assert.True(t, v.Allowed)
	assert.False(t, v.SilencePush)
}

func TestEvaluateAllowedWindows(t *testing.T) {
	p := basePolicy()
	p.AllowedWindows = models.WindowList{{Start: "08:00", End: "10:00"}, {Start: "14:00", End: "16:00"}}

	v := Evaluate(p, noon, false, Usage{})
	assert.False(t, v.Allowed)
	assert.Equal(t, ReasonOutsideWindow, v.Reason)

	inWin := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	assert.True(t, Evaluate(p, inWin, false, Usage{}).Allowed)

	// Window end is exclusive.
	atEnd := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	assert.False(t, Evaluate(p, atEnd, false, Usage{}).Allowed)
}

func TestEvaluateWindowWrapsMidnight(t *testing.T) {
	p := basePolicy()
	p.AllowedWindows = models.WindowList{{Start: "22:00", End: "02:00"}}

	late := time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC)
	early := time.Date(2025, 6, 2, 1, 0, 0, 0, time.UTC)

	assert.True(t, Evaluate(p, late, false, Usage{}).Allowed)
	assert.True(t, Evaluate(p, early, false, Usage{}).Allowed)
	assert.False(t, Evaluate(p, noon, false, Usage{}).Allowed)
}

func TestEvaluateDailyLimit(t *testing.T) {
	p := basePolicy()
	p.DailyLimit = 3

	v := Evaluate(p, noon, false, Usage{PublishedToday: 3})
	assert.False(t, v.Allowed)
	assert.Equal(t, ReasonDailyLimitReached, v.Reason)

	assert.True(t, Evaluate(p, noon, false, Usage{PublishedToday: 2}).Allowed)

	p.DailyLimit = 0
	assert.True(t, Evaluate(p, noon, false, Usage{PublishedToday: 500}).Allowed, "zero means unlimited")
}

func TestEvaluateMinInterval(t *testing.T) {
	p := basePolicy()
	p.MinIntervalMinutes = 30

	recent := noon.Add(-10 * time.Minute)
	v := Evaluate(p, noon, false, Usage{LastSuccessAt: &recent})
	assert.False(t, v.Allowed)
	assert.Equal(t, ReasonMinInterval, v.Reason)

	old := noon.Add(-31 * time.Minute)
	assert.True(t, Evaluate(p, noon, false, Usage{LastSuccessAt: &old}).Allowed)

	assert.True(t, Evaluate(p, noon, false, Usage{}).Allowed, "no prior success means no interval to honor")
}

func nightPolicy(silence, queueForMorning bool) *models.PublishingPolicy {
	p := basePolicy()
	p.NightStart = sql.NullString{String: "23:00", Valid: true}
	p.NightEnd = sql.NullString{String: "06:00", Valid: true}
	p.NightSilencePush = silence
	p.NightQueueForMorning = queueForMorning
	return p
}

func TestEvaluateNightSilencePush(t *testing.T) {
	p := nightPolicy(true, false)
	night := time.Date(2025, 6, 2, 23, 30, 0, 0, time.UTC)

	v := Evaluate(p, night, false, Usage{})
	assert.True(t, v.Allowed)
	assert.True(t, v.SilencePush)

	v = Evaluate(p, noon, false, Usage{})
	assert.True(t, v.Allowed)
	assert.False(t, v.SilencePush)
}

func TestEvaluateNightQueueForMorningWinsOverSilence(t *testing.T) {
	p := nightPolicy(true, true)
	night := time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC)

	v := Evaluate(p, night, false, Usage{})
	assert.False(t, v.Allowed)
	assert.Equal(t, ReasonQueuedForMorning, v.Reason)
}

func TestEvaluateEmergencyOverride(t *testing.T) {
	p := nightPolicy(false, true)
	p.DailyLimit = 1
	p.EmergencyOverride = true
	night := time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC)

	v := Evaluate(p, night, true, Usage{PublishedToday: 10})
	assert.True(t, v.Allowed, "emergency bypasses night mode and limits")

	v = Evaluate(p, night, false, Usage{PublishedToday: 10})
	assert.False(t, v.Allowed, "non-emergency still gated")

	p.EmergencyOverride = false
	v = Evaluate(p, night, true, Usage{})
	assert.False(t, v.Allowed, "emergency without the override flag is gated normally")
}

func TestEvaluateTimezone(t *testing.T) {
	p := basePolicy()
	p.Timezone = "Europe/Berlin"
	p.AllowedWindows = models.WindowList{{Start: "13:00", End: "15:00"}}

	// 12:00 UTC is 14:00 in Berlin during summer.
	v := Evaluate(p, noon, false, Usage{})
	assert.True(t, v.Allowed)

	// 10:00 UTC is 12:00 in Berlin, outside the window.
	morning := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	assert.False(t, Evaluate(p, morning, false, Usage{}).Allowed)
}
