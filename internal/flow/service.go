package flow

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"handbook-agent/internal/domain"
)

// SessionStore persists flow progress between requests.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (domain.FlowSession, bool, error)
	Save(ctx context.Context, sessionID string, sess domain.FlowSession) error
	Delete(ctx context.Context, sessionID string) error
}

// NextInput carries an optional answer. An empty StepID only fetches the
// current question.
type NextInput struct {
	SessionID string
	StepID    string
	Answer    string
}

// NextOutput holds either the next question or, once the flow is done,
// the summary.
type NextOutput struct {
	Question *Question
	Summary  string
}

type Service struct {
	engine *Engine
	store  SessionStore
}

func NewService(engine *Engine, store SessionStore) (*Service, error) {
	if engine == nil {
		return nil, errors.New("flow: engine must not be nil")
	}
	if store == nil {
		return nil, errors.New("flow: session store must not be nil")
	}
	return &Service{engine: engine, store: store}, nil
}

// Start resets the session and returns the first question.
func (s *Service) Start(ctx context.Context, sessionID string) (Question, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Question{}, errors.New("flow: session id must not be empty")
	}
	sess := domain.NewFlowSession()
	sess.UpdatedAt = s.engine.now().UTC()
	if err := s.store.Save(ctx, sessionID, sess); err != nil {
		return Question{}, errors.Wrap(err, "flow: start session")
	}
	q, _ := s.engine.NextQuestion(0)
	return q, nil
}

func (s *Service) Next(ctx context.Context, in NextInput) (NextOutput, error) {
	if strings.TrimSpace(in.SessionID) == "" {
		return NextOutput{}, errors.New("flow: session id must not be empty")
	}
	sess, found, err := s.store.Load(ctx, in.SessionID)
	if err != nil {
		return NextOutput{}, errors.Wrap(err, "flow: load session")
	}
	if !found {
		sess = domain.NewFlowSession()
	}

	if in.StepID != "" {
		next, err := s.engine.Advance(sess, in.StepID, in.Answer)
		if err != nil {
			return NextOutput{}, err
		}
		sess = next
		log.Ctx(ctx).Debug().
			Str("session_id", in.SessionID).
			Str("step_id", in.StepID).
			Int("step", sess.Step).
			Msg("flow: answer accepted")
	}

	if q, ok := s.engine.NextQuestion(sess.Step); ok {
		if err := s.store.Save(ctx, in.SessionID, sess); err != nil {
			return NextOutput{}, errors.Wrap(err, "flow: save session")
		}
		return NextOutput{Question: &q}, nil
	}

	summary := s.engine.Summary(sess.Answers)
	if err := s.store.Delete(ctx, in.SessionID); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("session_id", in.SessionID).Msg("flow: session not deleted")
	}
	return NextOutput{Summary: summary}, nil
}
