package routing

import (
	"context"
	"fmt"
	"time"

	"cloudcall-platform/internal/numbers"
	"cloudcall-platform/pkg/logger"
)

// EvaluateBusinessHours reports whether now falls inside the policy's hours.
//
// A nil or disabled policy means the number is always in hours. Schedules are
// OR'd: any single match puts the call in hours. A schedule with a broken
// timezone or clock string is skipped with a warning rather than failing the
// whole evaluation, because stored configs may predate a validation rule.
func EvaluateBusinessHours(ctx context.Context, p *numbers.BusinessHoursPolicy, now time.Time) bool {
	if p == nil || !p.Enabled {
		return true
	}
	log := logger.From(ctx)
	for i, s := range p.Schedules {
		ok, err := scheduleMatches(s, now)
		if err != nil {
			log.Warn("skipping malformed business-hours schedule",
				"schedule", i, "error", err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// scheduleMatches converts now into the schedule's timezone and checks
// weekday membership plus the [start, end) local-time window. Start is
// inclusive, end is exclusive: a 09:00-17:00 window admits 09:00:00 and
// excludes 17:00:00 exactly.
func scheduleMatches(s numbers.Schedule, now time.Time) (bool, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return false, fmt.Errorf("timezone %q: %w", s.Timezone, err)
	}
	start, err := numbers.ParseClock(s.StartTime)
	if err != nil {
		return false, fmt.Errorf("start_time %q: %w", s.StartTime, err)
	}
	end, err := numbers.ParseClock(s.EndTime)
	if err != nil {
		return false, fmt.Errorf("end_time %q: %w", s.EndTime, err)
	}

	local := now.In(loc)
	weekdayOK := false
	for _, d := range s.DaysOfWeek {
		if local.Weekday() == d {
			weekdayOK = true
			break
		}
	}
	if !weekdayOK {
		return false, nil
	}

	minutes := local.Hour()*60 + local.Minute()
	return minutes >= start && minutes < end, nil
}
