package flow

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"handbook-agent/internal/domain"
)

const (
	summaryHeader = "Here's a summary of your information:\n\n"
	summaryFooter = "Thank you for providing this information! We'll get back to you soon."
	invalidStep   = "Invalid step"
)

var (
	ErrStepMismatch = errors.New("flow: answer is for a different step")
	ErrComplete     = errors.New("flow: all steps are answered")
)

// ValidationError reports an answer rejected by its step's rule.
type ValidationError struct {
	StepID  string
	Message string
}

func (e *ValidationError) Error() string {
	return "flow: invalid answer for " + e.StepID + ": " + e.Message
}

// Question is the prompt for one step with its 1-based position.
type Question struct {
	ID         string
	Prompt     string
	StepNumber int
	TotalSteps int
}

type compiledStep struct {
	Step
	valid validator
}

// Engine walks a fixed sequence of steps. It holds no per-session state and
// is safe to share.
type Engine struct {
	steps []compiledStep
	byID  map[string]int
	now   func() time.Time
}

func NewEngine(def Definition) (*Engine, error) {
	if len(def.Steps) == 0 {
		return nil, errors.New("flow: definition has no steps")
	}
	e := &Engine{
		steps: make([]compiledStep, 0, len(def.Steps)),
		byID:  make(map[string]int, len(def.Steps)),
		now:   time.Now,
	}
	for i, s := range def.Steps {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return nil, errors.Errorf("flow: step %d has no id", i)
		}
		if _, dup := e.byID[id]; dup {
			return nil, errors.Errorf("flow: duplicate step id %q", id)
		}
		if strings.TrimSpace(s.Prompt) == "" {
			return nil, errors.Errorf("flow: step %q has no prompt", id)
		}
		valid, err := compileRule(s.Rule)
		if err != nil {
			return nil, errors.Wrapf(err, "flow: step %q", id)
		}
		s.ID = id
		e.byID[id] = i
		e.steps = append(e.steps, compiledStep{Step: s, valid: valid})
	}
	return e, nil
}

func (e *Engine) TotalSteps() int { return len(e.steps) }

// NextQuestion returns the question at step, or false once every step is
// answered.
func (e *Engine) NextQuestion(step int) (Question, bool) {
	if step < 0 || step >= len(e.steps) {
		return Question{}, false
	}
	s := e.steps[step]
	return Question{
		ID:         s.ID,
		Prompt:     s.Prompt,
		StepNumber: step + 1,
		TotalSteps: len(e.steps),
	}, true
}

func (e *Engine) ValidateAnswer(stepID, answer string) (bool, string) {
	i, ok := e.byID[stepID]
	if !ok {
		return false, invalidStep
	}
	s := e.steps[i]
	if s.valid(answer) {
		return true, ""
	}
	return false, s.ErrorMessage
}

// Advance records a valid answer for the current step and moves to the
// next. The input state is not modified.
func (e *Engine) Advance(state domain.FlowSession, stepID, answer string) (domain.FlowSession, error) {
	if state.Step >= len(e.steps) {
		return state, ErrComplete
	}
	if state.Step < 0 || e.steps[state.Step].ID != stepID {
		return state, ErrStepMismatch
	}
	if ok, msg := e.ValidateAnswer(stepID, answer); !ok {
		return state, &ValidationError{StepID: stepID, Message: msg}
	}

	next := domain.FlowSession{
		Step:      state.Step + 1,
		Answers:   make(map[string]string, len(state.Answers)+1),
		UpdatedAt: e.now().UTC(),
	}
	for k, v := range state.Answers {
		next.Answers[k] = v
	}
	next.Answers[stepID] = answer
	return next, nil
}

// Summary lists answered steps in definition order.
func (e *Engine) Summary(answers map[string]string) string {
	var b strings.Builder
	b.WriteString(summaryHeader)
	for _, s := range e.steps {
		answer, ok := answers[s.ID]
		if !ok {
			continue
		}
		b.WriteString("• " + s.Prompt + "\n  Answer: " + answer + "\n\n")
	}
	b.WriteString(summaryFooter)
	return b.String()
}
