package scheduler

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// scheduleFields is the classic 5-field cron format:
// minute hour day-of-month month day-of-week.
const scheduleFields = 5

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Schedule is a validated cron expression bound to a timezone. Next-fire
// times are computed in that zone, so DST transitions shift wall-clock
// fire times without distorting elapsed real time.
type Schedule struct {
	Expr     string
	Timezone string

	loc  *time.Location
	spec cron.Schedule
}

// ParseSchedule validates expr and timezone and returns a Schedule.
// Validation is synchronous; it is never deferred to first fire.
func ParseSchedule(expr, timezone string) (*Schedule, error) {
	expr = strings.TrimSpace(expr)
	if fields := strings.Fields(expr); len(fields) != scheduleFields {
		return nil, &ScheduleValidationError{
			Expr:     expr,
			Timezone: timezone,
			Reason:   "cron expression must have exactly 5 fields",
		}
	}

	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, &ScheduleValidationError{
			Expr:     expr,
			Timezone: timezone,
			Reason:   "unrecognized timezone",
			Err:      err,
		}
	}

	spec, err := cronParser.Parse(expr)
	if err != nil {
		return nil, &ScheduleValidationError{
			Expr:     expr,
			Timezone: timezone,
			Reason:   err.Error(),
			Err:      err,
		}
	}

	return &Schedule{
		Expr:     expr,
		Timezone: timezone,
		loc:      loc,
		spec:     spec,
	}, nil
}

// Next returns the smallest matching instant strictly greater than from,
// evaluated in the schedule's timezone.
func (s *Schedule) Next(from time.Time) time.Time {
	return s.spec.Next(from.In(s.loc))
}
