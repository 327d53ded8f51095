package appointment

import "fmt"

// StatusCode is the closed set of appointment states. Any code may follow any
// other; transition rules belong to the caller.
type StatusCode string

const (
	StatusUnconfirmed  StatusCode = "?????"
	StatusFirm         StatusCode = "FIRM"
	StatusEmailFirm    StatusCode = "EFIRM"
	StatusEmergency    StatusCode = "EMER"
	StatusHere         StatusCode = "HERE"
	StatusReady        StatusCode = "READY"
	StatusLeftMessage1 StatusCode = "LM1"
	StatusLeftMessage2 StatusCode = "LM2"
	StatusMultiple     StatusCode = "MULTI"
	StatusTwoWeek      StatusCode = "2wk"
	StatusNoShow       StatusCode = "NSHOW"
	StatusReschedule   StatusCode = "RESCH"
	StatusCancelled    StatusCode = "CANCL"
	StatusCompleted    StatusCode = "CMPLT"
)

var statusLabels = map[StatusCode]string{
	StatusUnconfirmed:  "Unconfirmed",
	StatusFirm:         "Confirmed",
	StatusEmailFirm:    "Confirmed by Email",
	StatusEmergency:    "Emergency",
	StatusHere:         "Arrived",
	StatusReady:        "Ready",
	StatusLeftMessage1: "Left Message 1",
	StatusLeftMessage2: "Left Message 2",
	StatusMultiple:     "Multiple Appointments",
	StatusTwoWeek:      "Two Week Follow-up",
	StatusNoShow:       "No Show",
	StatusReschedule:   "Needs Reschedule",
	StatusCancelled:    "Cancelled",
	StatusCompleted:    "Completed",
}

// StatusCodes lists every known code in display order.
func StatusCodes() []StatusCode {
	return []StatusCode{
		StatusUnconfirmed, StatusFirm, StatusEmailFirm, StatusEmergency,
		StatusHere, StatusReady, StatusLeftMessage1, StatusLeftMessage2,
		StatusMultiple, StatusTwoWeek, StatusNoShow, StatusReschedule,
		StatusCancelled, StatusCompleted,
	}
}

func (c StatusCode) Valid() bool {
	_, ok := statusLabels[c]
	return ok
}

// Label is derived from the code and is never stored.
func (c StatusCode) Label() string {
	if l, ok := statusLabels[c]; ok {
		return l
	}
	return "Unknown"
}

// Terminal reports codes after which the application stops offering edits.
// The store itself accepts writes to terminal records.
func (c StatusCode) Terminal() bool {
	return c == StatusCompleted || c == StatusCancelled
}

func ParseStatusCode(s string) (StatusCode, error) {
	c := StatusCode(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown status code %q", s)
	}
	return c, nil
}
