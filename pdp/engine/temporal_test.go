// pdp/engine/temporal_test.go
package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aegis-authz/aegis/model"
)

func businessHours(days ...int) *model.TemporalRule {
	return &model.TemporalRule{
		StartTime:  "09:00",
		EndTime:    "17:00",
		DaysOfWeek: days,
		Timezone:   "UTC",
	}
}

func TestTemporalMatchesWithinWindow(t *testing.T) {
	rule := businessHours(1, 2, 3, 4, 5)

	// Wednesday 2024-07-03.
	assert.True(t, TemporalMatches(rule, time.Date(2024, 7, 3, 9, 0, 0, 0, time.UTC)))
	assert.True(t, TemporalMatches(rule, time.Date(2024, 7, 3, 16, 59, 0, 0, time.UTC)))
	assert.False(t, TemporalMatches(rule, time.Date(2024, 7, 3, 17, 0, 0, 0, time.UTC)), "end is exclusive")
	assert.False(t, TemporalMatches(rule, time.Date(2024, 7, 3, 8, 59, 0, 0, time.UTC)))
}

func TestTemporalMatchesDayMembership(t *testing.T) {
	rule := businessHours(1, 2, 3, 4, 5)

	// Saturday and Sunday are days 6 and 7.
	assert.False(t, TemporalMatches(rule, time.Date(2024, 7, 6, 10, 0, 0, 0, time.UTC)))
	assert.False(t, TemporalMatches(rule, time.Date(2024, 7, 7, 10, 0, 0, 0, time.UTC)))
	assert.True(t, TemporalMatches(businessHours(7), time.Date(2024, 7, 7, 10, 0, 0, 0, time.UTC)))
}

func TestTemporalMatchesTimezone(t *testing.T) {
	rule := &model.TemporalRule{
		StartTime:  "09:00",
		EndTime:    "17:00",
		DaysOfWeek: []int{3},
		Timezone:   "America/New_York",
	}

	// 14:00 UTC on a Wednesday is 10:00 in New York (EDT): inside.
	assert.True(t, TemporalMatches(rule, time.Date(2024, 7, 3, 14, 0, 0, 0, time.UTC)))
	// 12:00 UTC is 08:00 in New York: outside.
	assert.False(t, TemporalMatches(rule, time.Date(2024, 7, 3, 12, 0, 0, 0, time.UTC)))
}

func TestTemporalMatchesOvernightWrap(t *testing.T) {
	rule := &model.TemporalRule{
		StartTime:  "22:00",
		EndTime:    "06:00",
		DaysOfWeek: []int{3},
		Timezone:   "UTC",
	}

	// Late segment on Wednesday.
	assert.True(t, TemporalMatches(rule, time.Date(2024, 7, 3, 22, 30, 0, 0, time.UTC)))
	// Early segment on Thursday belongs to Wednesday's window.
	assert.True(t, TemporalMatches(rule, time.Date(2024, 7, 4, 5, 59, 0, 0, time.UTC)))
	assert.False(t, TemporalMatches(rule, time.Date(2024, 7, 4, 6, 0, 0, 0, time.UTC)))
	// Wednesday's own early morning is Tuesday's spill, not listed.
	assert.False(t, TemporalMatches(rule, time.Date(2024, 7, 3, 2, 0, 0, 0, time.UTC)))
	// Midday is outside both segments.
	assert.False(t, TemporalMatches(rule, time.Date(2024, 7, 3, 12, 0, 0, 0, time.UTC)))
}

func TestTemporalMatchesSundayWrapToMonday(t *testing.T) {
	rule := &model.TemporalRule{
		StartTime:  "22:00",
		EndTime:    "02:00",
		DaysOfWeek: []int{7},
		Timezone:   "UTC",
	}

	// Sunday 2024-07-07 late evening.
	assert.True(t, TemporalMatches(rule, time.Date(2024, 7, 7, 23, 0, 0, 0, time.UTC)))
	// Monday early morning still belongs to Sunday's window.
	assert.True(t, TemporalMatches(rule, time.Date(2024, 7, 8, 1, 0, 0, 0, time.UTC)))
	assert.False(t, TemporalMatches(rule, time.Date(2024, 7, 8, 3, 0, 0, 0, time.UTC)))
}

func TestTemporalMatchesUnknownTimezone(t *testing.T) {
	rule := businessHours(3)
	rule.Timezone = "Not/AZone"
	assert.False(t, TemporalMatches(rule, time.Date(2024, 7, 3, 10, 0, 0, 0, time.UTC)))
}

func TestAnyTemporalMatch(t *testing.T) {
	weekday := businessHours(1, 2, 3, 4, 5)
	weekend := businessHours(6, 7)

	saturday := time.Date(2024, 7, 6, 10, 0, 0, 0, time.UTC)
	assert.False(t, anyTemporalMatch([]*model.TemporalRule{weekday}, saturday))
	assert.True(t, anyTemporalMatch([]*model.TemporalRule{weekday, weekend}, saturday))
	assert.False(t, anyTemporalMatch(nil, saturday))
}
