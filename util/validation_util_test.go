// util/validation_util_test.go

package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-authz/aegis/model"
)

func temporalRule() model.TemporalRule {
	return model.TemporalRule{
		Name:         "business-hours",
		SubjectType:  model.SubjectRole,
		SubjectID:    "role-1",
		ResourceID:   "doc-1",
		PermissionID: "perm-1",
		StartTime:    "09:00",
		EndTime:      "17:00",
		DaysOfWeek:   []int{1, 2, 3, 4, 5},
		Timezone:     "UTC",
	}
}

func TestValidateTemporalRule(t *testing.T) {
	v := NewValidationUtil()

	assert.NoError(t, v.ValidateTemporalRule(temporalRule()))

	overnight := temporalRule()
	overnight.StartTime = "22:00"
	overnight.EndTime = "06:00"
	assert.NoError(t, v.ValidateTemporalRule(overnight), "wraparound windows are valid")

	bad := temporalRule()
	bad.StartTime = "25:00"
	assert.Error(t, v.ValidateTemporalRule(bad))

	bad = temporalRule()
	bad.EndTime = bad.StartTime
	assert.Error(t, v.ValidateTemporalRule(bad), "zero-length window")

	bad = temporalRule()
	bad.DaysOfWeek = []int{0}
	assert.Error(t, v.ValidateTemporalRule(bad))

	bad = temporalRule()
	bad.DaysOfWeek = []int{8}
	assert.Error(t, v.ValidateTemporalRule(bad))

	bad = temporalRule()
	bad.DaysOfWeek = nil
	assert.Error(t, v.ValidateTemporalRule(bad))

	bad = temporalRule()
	bad.Timezone = "Not/AZone"
	assert.Error(t, v.ValidateTemporalRule(bad))

	bad = temporalRule()
	bad.SubjectType = "team"
	assert.Error(t, v.ValidateTemporalRule(bad))
}

func TestValidateConditionalRule(t *testing.T) {
	v := NewValidationUtil()
	mfa := true

	rule := model.ConditionalRule{
		Name:            "corp-network",
		SubjectType:     model.SubjectPrincipal,
		SubjectID:       "alice",
		ResourceID:      "doc-1",
		PermissionID:    "perm-1",
		AllowedIPRanges: []string{"10.0.0.0/8"},
		RequireMFA:      &mfa,
	}
	assert.NoError(t, v.ValidateConditionalRule(rule))

	empty := rule
	empty.AllowedIPRanges = nil
	empty.RequireMFA = nil
	assert.Error(t, v.ValidateConditionalRule(empty), "predicate bundle must not be empty")

	badCIDR := rule
	badCIDR.AllowedIPRanges = []string{"10.0.0.0/40"}
	assert.Error(t, v.ValidateConditionalRule(badCIDR))

	badSessions := rule
	zero := 0
	badSessions.MaxConcurrentSessions = &zero
	assert.Error(t, v.ValidateConditionalRule(badSessions))
}

func TestValidateGrant(t *testing.T) {
	v := NewValidationUtil()

	grant := model.ResourceGrant{
		PrincipalID:  "bob",
		ResourceID:   "doc-1",
		PermissionID: "perm-1",
		GrantedBy:    "admin",
	}
	assert.NoError(t, v.ValidateGrant(grant))

	grant.GrantedBy = ""
	assert.Error(t, v.ValidateGrant(grant))
}

func TestParseClock(t *testing.T) {
	minutes, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9*60+30, minutes)

	minutes, err = ParseClock("00:00")
	require.NoError(t, err)
	assert.Equal(t, 0, minutes)

	_, err = ParseClock("9:30am")
	assert.Error(t, err)
	_, err = ParseClock("24:00")
	assert.Error(t, err)
}
