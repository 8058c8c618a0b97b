package engine

import (
	"net"

	"github.com/aegis-authz/aegis/model"
	pdp_model "github.com/aegis-authz/aegis/pdp/model"
)

// Predicate names reported in traces when a conditional rule rejects a path.
const (
	PredicateIPAddress  = "ip_address"
	PredicateDeviceType = "device_type"
	PredicateMFA        = "mfa"
	PredicateSessionCap = "max_concurrent_sessions"
)

// ConditionSatisfied evaluates one conditional rule against the request
// context. Every predicate present in the rule must hold; absent predicates
// are skipped. Returns the name of the first failing predicate on rejection.
func ConditionSatisfied(rule *model.ConditionalRule, rc pdp_model.RequestContext) (bool, string) {
	if len(rule.AllowedIPRanges) > 0 {
		if !ipInRanges(rc.IPAddress, rule.AllowedIPRanges) {
			return false, PredicateIPAddress
		}
	}
	if len(rule.AllowedDeviceTypes) > 0 {
		if !stringIn(rule.AllowedDeviceTypes, rc.DeviceType) {
			return false, PredicateDeviceType
		}
	}
	if rule.RequireMFA != nil && *rule.RequireMFA && !rc.MFAVerified {
		return false, PredicateMFA
	}
	if rule.MaxConcurrentSessions != nil && rc.SessionCount > *rule.MaxConcurrentSessions {
		return false, PredicateSessionCap
	}
	return true, ""
}

// anyConditionSatisfied ORs a rule set: any fully-satisfied rule activates
// the path. On rejection the failing predicate of the last evaluated rule is
// surfaced, as the most specific explanation.
func anyConditionSatisfied(rules []*model.ConditionalRule, rc pdp_model.RequestContext) (bool, string) {
	failed := ""
	for _, rule := range rules {
		ok, predicate := ConditionSatisfied(rule, rc)
		if ok {
			return true, ""
		}
		failed = predicate
	}
	return false, failed
}

func ipInRanges(ipAddress string, ranges []string) bool {
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return false
	}
	for _, cidr := range ranges {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			// Malformed ranges are rejected at validation; treat any
			// survivor as matching nothing.
			continue
		}
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func stringIn(set []string, value string) bool {
	for _, s := range set {
		if s == value {
			return true
		}
	}
	return false
}
