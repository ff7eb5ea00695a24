package models

import "fmt"

// OutcomeKind classifies the result of one remediation action.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "SUCCESS"
	OutcomePartial OutcomeKind = "PARTIAL"
	OutcomeFailed  OutcomeKind = "FAILED"
	OutcomeError   OutcomeKind = "ERROR"
	OutcomeTimeout OutcomeKind = "TIMEOUT"
)

// Outcome records what happened to one target (or group) during a remediation pass.
type Outcome struct {
	Key     string      `json:"key"`
	Kind    OutcomeKind `json:"kind"`
	Message string      `json:"message"`
}

func (o Outcome) String() string {
	return fmt.Sprintf("%s -> %s: %s", o.Key, o.Kind, o.Message)
}
