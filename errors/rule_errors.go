// errors/rule_errors.go
package errors

import "errors"

var (
	ErrTemporalRuleNotFound    = errors.New("temporal rule not found")
	ErrTemporalRuleConflict    = errors.New("temporal rule conflict")
	ErrInvalidTemporalRuleData = errors.New("invalid temporal rule data")

	ErrConditionalRuleNotFound    = errors.New("conditional rule not found")
	ErrConditionalRuleConflict    = errors.New("conditional rule conflict")
	ErrInvalidConditionalRuleData = errors.New("invalid conditional rule data")
)
