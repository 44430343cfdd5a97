package fetch

import (
	"strconv"
	"time"
)

// Outcome classifies one attempt.
type Outcome string

const (
	OutcomeOK         Outcome = "ok"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeConnection Outcome = "connection"
	OutcomeStatus     Outcome = "status"
	OutcomeDecode     Outcome = "decode"
)

// Attempt is the diagnostic record of one candidate tried during a call.
type Attempt struct {
	CallID   string        `json:"call_id"`
	Index    int           `json:"index"`
	Endpoint Endpoint      `json:"endpoint"`
	Outcome  Outcome       `json:"outcome"`
	Status   int           `json:"status,omitempty"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the attempt did not produce the result.
func (a Attempt) Failed() bool {
	return a.Outcome != OutcomeOK
}

// String renders the attempt as "name:outcome", with the status code appended for
// status failures, e.g. "B:status500".
func (a Attempt) String() string {
	s := a.Endpoint.Name() + ":" + string(a.Outcome)
	if a.Outcome == OutcomeStatus {
		s += strconv.Itoa(a.Status)
	}
	return s
}

// Summaries renders attempts with Attempt.String.
func Summaries(attempts []Attempt) []string {
	out := make([]string, len(attempts))
	for i, a := range attempts {
		out[i] = a.String()
	}
	return out
}
