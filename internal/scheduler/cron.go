package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vultisig/sip/types"
)

// Cron-day ceiling for monthly triggers: every month has a 28th.
const maxMonthDay = 28

// CronBuilder turns a plan's cadence into a cron expression anchored to the
// time-of-day of its next execution.
type CronBuilder struct {
	location *time.Location
	override string
}

// NewCronBuilder validates override up front. An empty override means the true
// plan cadence is used; a non-empty one replaces it for every plan.
func NewCronBuilder(location *time.Location, override string) (*CronBuilder, error) {
	if location == nil {
		location = time.UTC
	}
	if override != "" {
		if _, err := cron.ParseStandard(override); err != nil {
			return nil, fmt.Errorf("invalid cron override %q: %w", override, err)
		}
	}
	return &CronBuilder{
		location: location,
		override: override,
	}, nil
}

func (b *CronBuilder) Location() *time.Location {
	return b.location
}

func (b *CronBuilder) Spec(cadence types.Cadence, anchor time.Time) (string, error) {
	if b.override != "" {
		return b.override, nil
	}

	at := anchor.In(b.location)
	var spec string
	switch cadence {
	case types.CadenceDaily:
		spec = fmt.Sprintf("%d %d * * *", at.Minute(), at.Hour())
	case types.CadenceWeekly:
		spec = fmt.Sprintf("%d %d * * %d", at.Minute(), at.Hour(), int(at.Weekday()))
	case types.CadenceMonthly:
		day := at.Day()
		if day > maxMonthDay {
			day = maxMonthDay
		}
		spec = fmt.Sprintf("%d %d %d * *", at.Minute(), at.Hour(), day)
	default:
		return "", fmt.Errorf("invalid cadence: %q", string(cadence))
	}

	if _, err := cron.ParseStandard(spec); err != nil {
		return "", fmt.Errorf("failed to build cron spec for %s: %w", cadence, err)
	}
	return spec, nil
}

// NextFire previews when spec fires next after from.
func (b *CronBuilder) NextFire(spec string, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse cron spec %q: %w", spec, err)
	}
	return sched.Next(from.In(b.location)), nil
}
