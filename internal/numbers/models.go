package numbers

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// PhoneNumber is an org-owned number with its voice and SMS routing settings.
//
// Multi-tenant invariant: OrgID is required on every row.
//
// Lifecycle: created on purchase, mutated by configuration updates, and
// soft-retired on release. Rows are never hard-deleted while historical call or
// message records still reference the number.
type PhoneNumber struct {
	ID    string `json:"id" db:"id"`
	OrgID string `json:"org_id" db:"org_id"`

	// Number is E.164 and unique across the platform.
	Number string `json:"number" db:"number"`
	Label  string `json:"label,omitempty" db:"label"`

	Country    string `json:"country" db:"country"`
	NumberType string `json:"number_type" db:"number_type"` // local, toll-free, mobile

	// Optional direct assignment; participates in the permission gate.
	AssignedUserID string `json:"assigned_user_id,omitempty" db:"assigned_user_id"`
	AssignedTeamID string `json:"assigned_team_id,omitempty" db:"assigned_team_id"`

	VoiceEnabled     bool `json:"voice_enabled" db:"voice_enabled"`
	SMSEnabled       bool `json:"sms_enabled" db:"sms_enabled"`
	VoicemailEnabled bool `json:"voicemail_enabled" db:"voicemail_enabled"`
	RecordingEnabled bool `json:"recording_enabled" db:"recording_enabled"`

	Routing RoutingConfig `json:"routing"`
	SMS     SMSConfig     `json:"sms"`

	Active      bool       `json:"active" db:"active"`
	PurchasedAt time.Time  `json:"purchased_at" db:"purchased_at"`
	PurchasedBy string     `json:"purchased_by,omitempty" db:"purchased_by"`
	ReleasedAt  *time.Time `json:"released_at,omitempty" db:"released_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type RouteType string

const (
	RouteTypeUser RouteType = "user"
	RouteTypeTeam RouteType = "team"
	RouteTypeIVR  RouteType = "ivr"
)

// RoutingConfig is a tagged variant: Type selects which target field must be
// set. Validate enforces the tag/field pairing so resolution code can match
// exhaustively without re-checking shape.
type RoutingConfig struct {
	Type RouteType `json:"type"`

	UserID string `json:"user_id,omitempty"`
	TeamID string `json:"team_id,omitempty"`
	IVRID  string `json:"ivr_id,omitempty"`

	// WelcomeMessage is spoken before IVR digit collection.
	WelcomeMessage string `json:"welcome_message,omitempty"`

	// IVROptions maps collected digits to destinations; only meaningful
	// when Type == "ivr".
	IVROptions []IVROption `json:"ivr_options,omitempty"`

	Failover      *FailoverPolicy      `json:"failover,omitempty"`
	BusinessHours *BusinessHoursPolicy `json:"business_hours,omitempty"`
}

type IVRActionType string

const (
	IVRActionUser      IVRActionType = "user"
	IVRActionTeam      IVRActionType = "team"
	IVRActionVoicemail IVRActionType = "voicemail"
)

// IVROption is one menu entry: press Digit, reach the configured destination.
type IVROption struct {
	Digit string        `json:"digit"`
	Type  IVRActionType `json:"type"`

	UserID string `json:"user_id,omitempty"`
	TeamID string `json:"team_id,omitempty"`
}

type FailoverType string

const (
	FailoverTypeVoicemail FailoverType = "voicemail"
	FailoverTypeUser      FailoverType = "user"
	FailoverTypeTeam      FailoverType = "team"
)

// FailoverPolicy is the secondary target used only when the primary target
// resolves to zero reachable destinations. Failover never cascades.
type FailoverPolicy struct {
	Enabled bool         `json:"enabled"`
	Type    FailoverType `json:"type"`

	UserID string `json:"user_id,omitempty"`
	TeamID string `json:"team_id,omitempty"`
}

type BusinessHoursPolicy struct {
	Enabled   bool       `json:"enabled"`
	Schedules []Schedule `json:"schedules,omitempty"`

	AfterHours AfterHoursRouting `json:"after_hours"`
}

// Schedule is a weekly window in a named timezone.
// StartTime/EndTime are "HH:MM" local time; the window is [start, end).
type Schedule struct {
	DaysOfWeek []time.Weekday `json:"days_of_week"`
	StartTime  string         `json:"start_time"`
	EndTime    string         `json:"end_time"`
	Timezone   string         `json:"timezone"`
}

type AfterHoursType string

const (
	AfterHoursVoicemail AfterHoursType = "voicemail"
	AfterHoursUser      AfterHoursType = "user"
	AfterHoursTeam      AfterHoursType = "team"
	AfterHoursMessage   AfterHoursType = "message"
)

type AfterHoursRouting struct {
	Type AfterHoursType `json:"type"`

	UserID string `json:"user_id,omitempty"`
	TeamID string `json:"team_id,omitempty"`

	// Message is spoken before disconnecting when Type == "message".
	Message string `json:"message,omitempty"`
}

type SMSRouteType string

const (
	SMSRouteUser       SMSRouteType = "user"
	SMSRouteTeam       SMSRouteType = "team"
	SMSRouteRoundRobin SMSRouteType = "round-robin"
)

type SMSConfig struct {
	Enabled bool `json:"enabled"`

	RoutingType SMSRouteType `json:"routing_type"`
	UserID      string       `json:"user_id,omitempty"`
	TeamID      string       `json:"team_id,omitempty"`

	AutoReplyEnabled        bool   `json:"auto_reply_enabled"`
	AutoReplyMessage        string `json:"auto_reply_message,omitempty"`
	AutoReplyOnlyAfterHours bool   `json:"auto_reply_only_after_hours"`
}

var (
	ErrNotFound         = errors.New("numbers: not found")
	ErrInvalidConfig    = errors.New("numbers: invalid configuration")
	ErrPermissionDenied = errors.New("numbers: permission denied")
)

// Validate checks the tag/field invariants of the routing variant.
func (c RoutingConfig) Validate() error {
	switch c.Type {
	case RouteTypeUser:
		if c.UserID == "" {
			return fmt.Errorf("%w: routing type user requires user_id", ErrInvalidConfig)
		}
	case RouteTypeTeam:
		if c.TeamID == "" {
			return fmt.Errorf("%w: routing type team requires team_id", ErrInvalidConfig)
		}
	case RouteTypeIVR:
		if c.IVRID == "" {
			return fmt.Errorf("%w: routing type ivr requires ivr_id", ErrInvalidConfig)
		}
		seen := map[string]bool{}
		for i, opt := range c.IVROptions {
			if err := opt.Validate(); err != nil {
				return fmt.Errorf("ivr option %d: %w", i, err)
			}
			if seen[opt.Digit] {
				return fmt.Errorf("%w: duplicate ivr digit %q", ErrInvalidConfig, opt.Digit)
			}
			seen[opt.Digit] = true
		}
	default:
		return fmt.Errorf("%w: unknown routing type %q", ErrInvalidConfig, c.Type)
	}

	if c.Failover != nil && c.Failover.Enabled {
		switch c.Failover.Type {
		case FailoverTypeVoicemail:
		case FailoverTypeUser:
			if c.Failover.UserID == "" {
				return fmt.Errorf("%w: failover type user requires user_id", ErrInvalidConfig)
			}
		case FailoverTypeTeam:
			if c.Failover.TeamID == "" {
				return fmt.Errorf("%w: failover type team requires team_id", ErrInvalidConfig)
			}
		default:
			return fmt.Errorf("%w: unknown failover type %q", ErrInvalidConfig, c.Failover.Type)
		}
	}

	if c.BusinessHours != nil && c.BusinessHours.Enabled {
		if len(c.BusinessHours.Schedules) == 0 {
			return fmt.Errorf("%w: business hours enabled without schedules", ErrInvalidConfig)
		}
		for i, s := range c.BusinessHours.Schedules {
			if err := s.Validate(); err != nil {
				return fmt.Errorf("schedule %d: %w", i, err)
			}
		}
		switch c.BusinessHours.AfterHours.Type {
		case AfterHoursVoicemail:
		case AfterHoursUser:
			if c.BusinessHours.AfterHours.UserID == "" {
				return fmt.Errorf("%w: after-hours type user requires user_id", ErrInvalidConfig)
			}
		case AfterHoursTeam:
			if c.BusinessHours.AfterHours.TeamID == "" {
				return fmt.Errorf("%w: after-hours type team requires team_id", ErrInvalidConfig)
			}
		case AfterHoursMessage:
			if c.BusinessHours.AfterHours.Message == "" {
				return fmt.Errorf("%w: after-hours type message requires message text", ErrInvalidConfig)
			}
		default:
			return fmt.Errorf("%w: unknown after-hours type %q", ErrInvalidConfig, c.BusinessHours.AfterHours.Type)
		}
	}

	return nil
}

func (o IVROption) Validate() error {
	if len(o.Digit) != 1 || !strings.ContainsAny(o.Digit, "0123456789*#") {
		return fmt.Errorf("%w: ivr digit must be one of 0-9, * or #", ErrInvalidConfig)
	}
	switch o.Type {
	case IVRActionUser:
		if o.UserID == "" {
			return fmt.Errorf("%w: ivr option type user requires user_id", ErrInvalidConfig)
		}
	case IVRActionTeam:
		if o.TeamID == "" {
			return fmt.Errorf("%w: ivr option type team requires team_id", ErrInvalidConfig)
		}
	case IVRActionVoicemail:
	default:
		return fmt.Errorf("%w: unknown ivr option type %q", ErrInvalidConfig, o.Type)
	}
	return nil
}

func (s Schedule) Validate() error {
	if len(s.DaysOfWeek) == 0 {
		return fmt.Errorf("%w: schedule requires days_of_week", ErrInvalidConfig)
	}
	for _, d := range s.DaysOfWeek {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: invalid weekday %d", ErrInvalidConfig, d)
		}
	}
	if _, err := ParseClock(s.StartTime); err != nil {
		return fmt.Errorf("%w: bad start_time %q", ErrInvalidConfig, s.StartTime)
	}
	if _, err := ParseClock(s.EndTime); err != nil {
		return fmt.Errorf("%w: bad end_time %q", ErrInvalidConfig, s.EndTime)
	}
	if s.Timezone == "" {
		return fmt.Errorf("%w: schedule requires timezone", ErrInvalidConfig)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidConfig, s.Timezone)
	}
	return nil
}

// Validate checks the SMS routing variant the same way.
func (c SMSConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.RoutingType {
	case SMSRouteUser:
		if c.UserID == "" {
			return fmt.Errorf("%w: sms routing type user requires user_id", ErrInvalidConfig)
		}
	case SMSRouteTeam, SMSRouteRoundRobin:
		if c.TeamID == "" {
			return fmt.Errorf("%w: sms routing type %s requires team_id", ErrInvalidConfig, c.RoutingType)
		}
	default:
		return fmt.Errorf("%w: unknown sms routing type %q", ErrInvalidConfig, c.RoutingType)
	}
	if c.AutoReplyEnabled && c.AutoReplyMessage == "" {
		return fmt.Errorf("%w: auto-reply enabled without message", ErrInvalidConfig)
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
