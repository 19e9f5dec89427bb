package routing

import (
	"context"
	"testing"
	"time"

	"cloudcall-platform/internal/numbers"
)

func weekdayPolicy() *numbers.BusinessHoursPolicy {
	return &numbers.BusinessHoursPolicy{
		Enabled: true,
		Schedules: []numbers.Schedule{{
			DaysOfWeek: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			StartTime:  "09:00",
			EndTime:    "17:00",
			Timezone:   "UTC",
		}},
		AfterHours: numbers.AfterHoursRouting{Type: numbers.AfterHoursVoicemail},
	}
}

func TestEvaluateBusinessHoursBoundaries(t *testing.T) {
	ctx := context.Background()
	p := weekdayPolicy()

	// 2025-06-02 is a Monday.
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"one second before open", time.Date(2025, 6, 2, 8, 59, 59, 0, time.UTC), false},
		{"exactly at open", time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), true},
		{"one second before close", time.Date(2025, 6, 2, 16, 59, 59, 0, time.UTC), true},
		{"exactly at close", time.Date(2025, 6, 2, 17, 0, 0, 0, time.UTC), false},
		{"saturday inside window", time.Date(2025, 6, 7, 12, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvaluateBusinessHours(ctx, p, tt.now); got != tt.want {
				t.Fatalf("EvaluateBusinessHours(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestEvaluateBusinessHoursDisabledOrNil(t *testing.T) {
	ctx := context.Background()
	midnight := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	if !EvaluateBusinessHours(ctx, nil, midnight) {
		t.Fatal("nil policy should always be in hours")
	}
	p := weekdayPolicy()
	p.Enabled = false
	if !EvaluateBusinessHours(ctx, p, midnight) {
		t.Fatal("disabled policy should always be in hours")
	}
}

func TestEvaluateBusinessHoursTimezoneConversion(t *testing.T) {
	ctx := context.Background()
	p := &numbers.BusinessHoursPolicy{
		Enabled: true,
		Schedules: []numbers.Schedule{{
			DaysOfWeek: []time.Weekday{time.Monday},
			StartTime:  "09:00",
			EndTime:    "17:00",
			Timezone:   "America/New_York",
		}},
	}

	// 14:00 UTC on Monday 2025-06-02 is 10:00 in New York (EDT): in hours.
	if !EvaluateBusinessHours(ctx, p, time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)) {
		t.Fatal("10:00 New York local should be in hours")
	}
	// 12:00 UTC is 08:00 in New York: before open.
	if EvaluateBusinessHours(ctx, p, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)) {
		t.Fatal("08:00 New York local should be after hours")
	}
	// 22:00 UTC Monday is 18:00 Monday in New York: after close even though
	// it is already Tuesday nowhere yet.
	if EvaluateBusinessHours(ctx, p, time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC)) {
		t.Fatal("18:00 New York local should be after hours")
	}
}

func TestEvaluateBusinessHoursSkipsBrokenSchedules(t *testing.T) {
	ctx := context.Background()
	p := &numbers.BusinessHoursPolicy{
		Enabled: true,
		Schedules: []numbers.Schedule{
			{DaysOfWeek: []time.Weekday{time.Monday}, StartTime: "09:00", EndTime: "17:00", Timezone: "Mars/Olympus"},
			{DaysOfWeek: []time.Weekday{time.Monday}, StartTime: "09:00", EndTime: "17:00", Timezone: "UTC"},
		},
	}

	// The broken first schedule must not poison evaluation of the second.
	if !EvaluateBusinessHours(ctx, p, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)) {
		t.Fatal("valid schedule should still match")
	}

	// With only broken schedules nothing matches: after hours.
	p.Schedules = p.Schedules[:1]
	if EvaluateBusinessHours(ctx, p, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)) {
		t.Fatal("all-broken schedules should evaluate to after hours")
	}
}

func TestEvaluateBusinessHoursMultipleSchedules(t *testing.T) {
	ctx := context.Background()
	p := &numbers.BusinessHoursPolicy{
		Enabled: true,
		Schedules: []numbers.Schedule{
			{DaysOfWeek: []time.Weekday{time.Monday}, StartTime: "09:00", EndTime: "12:00", Timezone: "UTC"},
			{DaysOfWeek: []time.Weekday{time.Monday}, StartTime: "13:00", EndTime: "17:00", Timezone: "UTC"},
		},
	}

	if !EvaluateBusinessHours(ctx, p, time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)) {
		t.Fatal("morning window should match")
	}
	if EvaluateBusinessHours(ctx, p, time.Date(2025, 6, 2, 12, 30, 0, 0, time.UTC)) {
		t.Fatal("lunch gap should be after hours")
	}
	if !EvaluateBusinessHours(ctx, p, time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)) {
		t.Fatal("afternoon window should match")
	}
}
