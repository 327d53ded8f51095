package appointment

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TypeConsultation is the only appointment type that slot availability
// rules apply to.
const TypeConsultation = "consultation"

// ProvisionalPrefix marks ids generated locally while a create is in flight.
// Durable ids are uuids assigned by the backing store and never carry it.
const ProvisionalPrefix = "tmp-"

const dateLayout = "2006-01-02"

type Appointment struct {
	ID               string     `json:"id"`
	Date             string     `json:"date"`
	StartTime        string     `json:"start_time"`
	EndTime          string     `json:"end_time"`
	Type             string     `json:"type"`
	Subtype          string     `json:"subtype,omitempty"`
	StatusCode       StatusCode `json:"status_code"`
	PatientID        string     `json:"patient_id,omitempty"`
	PatientName      string     `json:"patient_name,omitempty"`
	AssignedUserID   string     `json:"assigned_user_id,omitempty"`
	AssignedUserName string     `json:"assigned_user_name,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Status returns the human readable label for the record's status code.
func (a Appointment) Status() string {
	return a.StatusCode.Label()
}

// Provisional reports whether the record is still waiting for its durable id.
func (a Appointment) Provisional() bool {
	return IsProvisional(a.ID)
}

var leadPattern = regexp.MustCompile(`(?i)\blead:\s*([0-9a-f-]{8,})`)

// LeadReference extracts an originating lead id embedded in the notes.
func (a Appointment) LeadReference() (string, bool) {
	m := leadPattern.FindStringSubmatch(a.Notes)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

// Patch carries a partial field set for an update. Nil fields are left as is.
type Patch struct {
	Date           *string     `json:"date,omitempty"`
	StartTime      *string     `json:"start_time,omitempty"`
	EndTime        *string     `json:"end_time,omitempty"`
	Type           *string     `json:"type,omitempty"`
	Subtype        *string     `json:"subtype,omitempty"`
	StatusCode     *StatusCode `json:"status_code,omitempty"`
	PatientID      *string     `json:"patient_id,omitempty"`
	PatientName    *string     `json:"patient_name,omitempty"`
	AssignedUserID *string     `json:"assigned_user_id,omitempty"`
	Notes          *string     `json:"notes,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Date == nil && p.StartTime == nil && p.EndTime == nil &&
		p.Type == nil && p.Subtype == nil && p.StatusCode == nil &&
		p.PatientID == nil && p.PatientName == nil &&
		p.AssignedUserID == nil && p.Notes == nil
}

// NewProvisionalID returns an id that cannot collide with a durable one.
func NewProvisionalID() string {
	return ProvisionalPrefix + uuid.NewString()
}

func IsProvisional(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// ParseClock converts "HH:MM" (or "HH:MM:SS" as Postgres renders it) into
// minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 || len(parts[0]) != 2 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// NormalizeClock rewrites "HH:MM:SS" into the canonical "HH:MM".
func NormalizeClock(s string) string {
	m, err := ParseClock(s)
	if err != nil {
		return s
	}
	return FormatClock(m)
}

// ParseDate parses a calendar date in the given location.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// FormatDate renders t as YYYY-MM-DD in its own location.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// normalize brings remote field representations into canonical form.
func normalize(a Appointment) Appointment {
	a.StartTime = NormalizeClock(a.StartTime)
	a.EndTime = NormalizeClock(a.EndTime)
	if len(a.Date) > len(dateLayout) {
		a.Date = a.Date[:len(dateLayout)]
	}
	if a.StatusCode == "" {
		a.StatusCode = StatusUnconfirmed
	}
	return a
}

// Normalize is exported for collaborators decoding records off the wire.
func Normalize(a Appointment) Appointment {
	return normalize(a)
}
