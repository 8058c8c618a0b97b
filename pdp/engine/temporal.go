package engine

import (
	"time"

	"github.com/aegis-authz/aegis/model"
	"github.com/aegis-authz/aegis/util"
)

// TemporalMatches reports whether the instant falls inside the rule's
// window, evaluated in the rule's timezone. Day-of-week membership uses ISO
// numbering (1=Monday..7=Sunday). A window with end before start wraps past
// midnight; its early-morning segment belongs to the day the window started,
// so that portion checks the previous day's membership.
func TemporalMatches(rule *model.TemporalRule, instant time.Time) bool {
	loc, err := time.LoadLocation(rule.Timezone)
	if err != nil {
		// Unknown timezones are rejected at validation; a rule that
		// somehow carries one activates nothing.
		return false
	}
	local := instant.In(loc)

	start, err := util.ParseClock(rule.StartTime)
	if err != nil {
		return false
	}
	end, err := util.ParseClock(rule.EndTime)
	if err != nil {
		return false
	}

	minuteOfDay := local.Hour()*60 + local.Minute()
	today := isoWeekday(local.Weekday())

	if start < end {
		return dayIn(rule.DaysOfWeek, today) && minuteOfDay >= start && minuteOfDay < end
	}

	// Overnight window: [start, midnight) on the listed day, then
	// [midnight, end) spilling into the next calendar day.
	if minuteOfDay >= start {
		return dayIn(rule.DaysOfWeek, today)
	}
	if minuteOfDay < end {
		return dayIn(rule.DaysOfWeek, previousDay(today))
	}
	return false
}

// anyTemporalMatch ORs a rule set: any matching window activates the path.
func anyTemporalMatch(rules []*model.TemporalRule, instant time.Time) bool {
	for _, rule := range rules {
		if TemporalMatches(rule, instant) {
			return true
		}
	}
	return false
}

func isoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

func previousDay(isoDay int) int {
	if isoDay == 1 {
		return 7
	}
	return isoDay - 1
}

func dayIn(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
