package domain

import "time"

// FlowSession is the caller-owned progress through a scripted flow.
type FlowSession struct {
	Step      int               `json:"step"`
	Answers   map[string]string `json:"answers"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewFlowSession returns a session positioned at the first step.
func NewFlowSession() FlowSession {
	return FlowSession{Answers: map[string]string{}}
}
