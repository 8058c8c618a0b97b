// util/validation_util.go

package util

import (
	"fmt"
	"net"
	"time"

	"github.com/aegis-authz/aegis/model"
)

type ValidationUtil struct{}

func NewValidationUtil() *ValidationUtil {
	return &ValidationUtil{}
}

func (v *ValidationUtil) ValidateRole(role model.Role) error {
	if role.Name == "" {
		return fmt.Errorf("role name cannot be empty")
	}
	if role.Level < 0 {
		return fmt.Errorf("role level cannot be negative")
	}
	return nil
}

func (v *ValidationUtil) ValidatePermission(permission model.Permission) error {
	if permission.Name == "" {
		return fmt.Errorf("permission name cannot be empty")
	}
	if permission.ResourceType == "" {
		return fmt.Errorf("permission resource type cannot be empty")
	}
	if len(permission.Actions) == 0 {
		return fmt.Errorf("permission must have at least one action")
	}
	for _, action := range permission.Actions {
		if action == "" {
			return fmt.Errorf("permission action cannot be empty")
		}
	}
	return nil
}

func (v *ValidationUtil) ValidateResource(resource model.Resource) error {
	if resource.Name == "" {
		return fmt.Errorf("resource name cannot be empty")
	}
	if resource.Type == "" {
		return fmt.Errorf("resource type cannot be empty")
	}
	if resource.Classification == "" {
		return fmt.Errorf("resource classification cannot be empty")
	}
	if resource.OwnerID == "" {
		return fmt.Errorf("resource owner ID cannot be empty")
	}
	return nil
}

func (v *ValidationUtil) ValidateGrant(grant model.ResourceGrant) error {
	if grant.PrincipalID == "" {
		return fmt.Errorf("grant principal ID cannot be empty")
	}
	if grant.ResourceID == "" {
		return fmt.Errorf("grant resource ID cannot be empty")
	}
	if grant.PermissionID == "" {
		return fmt.Errorf("grant permission ID cannot be empty")
	}
	if grant.GrantedBy == "" {
		return fmt.Errorf("grant must record who granted it")
	}
	return nil
}

// ValidateTemporalRule rejects malformed windows before storage: bad clock
// values, unknown IANA timezones, day numbers outside 1-7, zero-length
// windows. A window with end before start is valid and wraps past midnight.
func (v *ValidationUtil) ValidateTemporalRule(rule model.TemporalRule) error {
	if rule.Name == "" {
		return fmt.Errorf("temporal rule name cannot be empty")
	}
	if err := v.validateRuleBinding(rule.SubjectType, rule.SubjectID, rule.ResourceID, rule.PermissionID); err != nil {
		return err
	}
	start, err := ParseClock(rule.StartTime)
	if err != nil {
		return fmt.Errorf("invalid start_time %q: %w", rule.StartTime, err)
	}
	end, err := ParseClock(rule.EndTime)
	if err != nil {
		return fmt.Errorf("invalid end_time %q: %w", rule.EndTime, err)
	}
	if start == end {
		return fmt.Errorf("temporal window cannot be zero-length")
	}
	if len(rule.DaysOfWeek) == 0 {
		return fmt.Errorf("temporal rule must name at least one day of week")
	}
	for _, day := range rule.DaysOfWeek {
		if day < 1 || day > 7 {
			return fmt.Errorf("day of week %d out of range 1-7", day)
		}
	}
	if rule.Timezone == "" {
		return fmt.Errorf("temporal rule timezone cannot be empty")
	}
	if _, err := time.LoadLocation(rule.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", rule.Timezone, err)
	}
	return nil
}

// ValidateConditionalRule rejects empty predicate bundles and malformed
// predicate values before storage.
func (v *ValidationUtil) ValidateConditionalRule(rule model.ConditionalRule) error {
	if rule.Name == "" {
		return fmt.Errorf("conditional rule name cannot be empty")
	}
	if err := v.validateRuleBinding(rule.SubjectType, rule.SubjectID, rule.ResourceID, rule.PermissionID); err != nil {
		return err
	}
	if !rule.HasPredicates() {
		return fmt.Errorf("conditional rule must carry at least one predicate")
	}
	for _, cidr := range rule.AllowedIPRanges {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid CIDR range %q: %w", cidr, err)
		}
	}
	for _, device := range rule.AllowedDeviceTypes {
		if device == "" {
			return fmt.Errorf("allowed device type cannot be empty")
		}
	}
	if rule.MaxConcurrentSessions != nil && *rule.MaxConcurrentSessions < 1 {
		return fmt.Errorf("max concurrent sessions must be at least 1")
	}
	return nil
}

func (v *ValidationUtil) validateRuleBinding(subjectType model.SubjectType, subjectID, resourceID, permissionID string) error {
	if subjectType != model.SubjectPrincipal && subjectType != model.SubjectRole {
		return fmt.Errorf("subject type must be %q or %q", model.SubjectPrincipal, model.SubjectRole)
	}
	if subjectID == "" {
		return fmt.Errorf("rule subject ID cannot be empty")
	}
	if resourceID == "" {
		return fmt.Errorf("rule resource ID cannot be empty")
	}
	if permissionID == "" {
		return fmt.Errorf("rule permission ID cannot be empty")
	}
	return nil
}

// ParseClock parses an "HH:MM" wall-clock value into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
