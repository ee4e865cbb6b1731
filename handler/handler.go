package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"handbook-agent/internal/flow"
	"handbook-agent/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	sessionHeader     = "X-Session-Id"

	codeNotFound         = "NOT_FOUND"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	codeValidationFailed = "VALIDATION_FAILED"
	codeStepMismatch     = "STEP_MISMATCH"
)

type Responder interface {
	Answer(ctx context.Context, in usecase.AnswerInput) usecase.AnswerOutput
	ValidateQuery(query string) error
	State() usecase.State
	Initialize(ctx context.Context) error
	Reinitialize(ctx context.Context) error
	Status(ctx context.Context) usecase.Status
}

type FlowService interface {
	Start(ctx context.Context, sessionID string) (flow.Question, error)
	Next(ctx context.Context, in flow.NextInput) (flow.NextOutput, error)
}

type request struct {
	event         events.APIGatewayProxyRequest
	body          []byte
	correlationID string
	sessionID     string
}

type route func(ctx context.Context, req request) (int, any, map[string]string)

type Handler struct {
	responder Responder
	flows     FlowService
	routes    map[string]map[string]route
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type chatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
}

type stateResponse struct {
	State   usecase.State `json:"state"`
	Error   string        `json:"error,omitempty"`
	Message string        `json:"message,omitempty"`
}

type nextRequest struct {
	StepID string `json:"step_id"`
	Answer string `json:"answer"`
}

type questionResponse struct {
	StepID     string `json:"step_id"`
	Question   string `json:"question"`
	StepNumber int    `json:"step_number"`
	TotalSteps int    `json:"total_steps"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	StepID  string `json:"step_id,omitempty"`
}

func NewHandler(r Responder, f FlowService) (*Handler, error) {
	if r == nil {
		return nil, errors.New("handler: responder must not be nil")
	}
	if f == nil {
		return nil, errors.New("handler: flow service must not be nil")
	}
	h := &Handler{responder: r, flows: f}
	h.routes = map[string]map[string]route{
		"/rag/chat":           {http.MethodPost: h.chat},
		"/rag/reinitialize":   {http.MethodPost: h.reinitialize},
		"/rag/debug":          {http.MethodGet: h.debug},
		"/flow/start":         {http.MethodPost: h.flowStart},
		"/flow/next-question": {http.MethodPost: h.flowNext},
	}
	return h, nil
}

func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req := request{
		event:         event,
		correlationID: headerValue(event.Headers, correlationHeader),
		sessionID:     headerValue(event.Headers, sessionHeader),
	}
	if req.correlationID == "" {
		req.correlationID = uuid.NewString()
	}
	logger := log.With().Str("correlation_id", req.correlationID).Logger()
	ctx = logger.WithContext(ctx)

	path := normalizePath(event.Path)
	methods, ok := h.routes[path]
	if !ok {
		return h.respond(req, http.StatusNotFound, errorResponse{Error: codeNotFound, Message: "no route for " + path}, nil), nil
	}
	fn, ok := methods[strings.ToUpper(event.HTTPMethod)]
	if !ok {
		return h.respond(req, http.StatusMethodNotAllowed,
			errorResponse{Error: codeMethodNotAllowed, Message: "method not allowed"},
			map[string]string{"Allow": allowed(methods)}), nil
	}

	body, err := decodeBody(event)
	if err != nil {
		return h.respond(req, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Message: "invalid request body encoding"}, nil), nil
	}
	req.body = body

	status, payload, headers := fn(ctx, req)
	logger.Info().
		Str("method", event.HTTPMethod).
		Str("path", path).
		Int("status", status).
		Msg("handler: request handled")
	return h.respond(req, status, payload, headers), nil
}

func (h *Handler) chat(ctx context.Context, req request) (int, any, map[string]string) {
	var in chatRequest
	if err := decodeJSON(req.body, &in); err != nil {
		return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Message: "invalid JSON body"}, nil
	}
	if strings.TrimSpace(in.Message) == "" {
		return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Message: "Message cannot be empty"}, nil
	}
	if err := h.responder.ValidateQuery(in.Message); err != nil {
		return mapError(ctx, err)
	}

	// A failed or missing index gets one reload attempt per request.
	if h.responder.State() != usecase.StateReady {
		if err := h.responder.Initialize(ctx); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("handler: lazy initialization failed")
		}
	}

	out := h.responder.Answer(ctx, usecase.AnswerInput{Query: in.Message, ConversationID: in.ConversationID})
	return http.StatusOK, chatResponse{Response: out.Answer, ConversationID: out.ConversationID}, nil
}

func (h *Handler) reinitialize(ctx context.Context, _ request) (int, any, map[string]string) {
	if err := h.responder.Reinitialize(ctx); err != nil {
		return http.StatusServiceUnavailable, stateResponse{
			State:   h.responder.State(),
			Error:   string(usecase.ErrorIndexUnavailable),
			Message: err.Error(),
		}, nil
	}
	return http.StatusOK, stateResponse{State: h.responder.State()}, nil
}

func (h *Handler) debug(ctx context.Context, _ request) (int, any, map[string]string) {
	return http.StatusOK, h.responder.Status(ctx), nil
}

func (h *Handler) flowStart(ctx context.Context, req request) (int, any, map[string]string) {
	sessionID, headers := ensureSession(req)
	q, err := h.flows.Start(ctx, sessionID)
	if err != nil {
		status, payload, _ := mapError(ctx, err)
		return status, payload, headers
	}
	return http.StatusOK, toQuestionResponse(q), headers
}

func (h *Handler) flowNext(ctx context.Context, req request) (int, any, map[string]string) {
	var in nextRequest
	if err := decodeJSON(req.body, &in); err != nil {
		return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Message: "invalid JSON body"}, nil
	}
	sessionID, headers := ensureSession(req)

	out, err := h.flows.Next(ctx, flow.NextInput{SessionID: sessionID, StepID: in.StepID, Answer: in.Answer})
	if err != nil {
		status, payload, _ := mapError(ctx, err)
		return status, payload, headers
	}
	if out.Question != nil {
		return http.StatusOK, toQuestionResponse(*out.Question), headers
	}
	return http.StatusOK, summaryResponse{Summary: out.Summary}, headers
}

func ensureSession(req request) (string, map[string]string) {
	id := req.sessionID
	if id == "" {
		id = uuid.NewString()
	}
	return id, map[string]string{sessionHeader: id}
}

func toQuestionResponse(q flow.Question) questionResponse {
	return questionResponse{
		StepID:     q.ID,
		Question:   q.Prompt,
		StepNumber: q.StepNumber,
		TotalSteps: q.TotalSteps,
	}
}

func mapError(ctx context.Context, err error) (int, any, map[string]string) {
	var validationErr *flow.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity, errorResponse{
			Error:   codeValidationFailed,
			Message: validationErr.Message,
			StepID:  validationErr.StepID,
		}, nil
	}
	if errors.Is(err, flow.ErrStepMismatch) || errors.Is(err, flow.ErrComplete) {
		return http.StatusConflict, errorResponse{Error: codeStepMismatch, Message: err.Error()}, nil
	}

	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("reason", ucErr.Reason).Msg("handler: request rejected")
		switch ucErr.Code {
		case usecase.ErrorInvalidInput:
			msg := "Message is invalid"
			if ucErr.Reason == "question_too_long" {
				msg = "Message is too long"
			}
			return http.StatusBadRequest, errorResponse{Error: string(ucErr.Code), Message: msg}, nil
		case usecase.ErrorRateLimited:
			return http.StatusTooManyRequests, errorResponse{Error: string(ucErr.Code)}, nil
		case usecase.ErrorUpstream:
			return http.StatusBadGateway, errorResponse{Error: string(ucErr.Code)}, nil
		case usecase.ErrorIndexUnavailable:
			return http.StatusServiceUnavailable, errorResponse{Error: string(ucErr.Code)}, nil
		}
	}

	zerolog.Ctx(ctx).Error().Err(err).Msg("handler: internal error")
	return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}, nil
}

func (h *Handler) respond(req request, status int, payload any, extra map[string]string) events.APIGatewayProxyResponse {
	headers := map[string]string{
		"Content-Type":    "application/json",
		correlationHeader: req.correlationID,
	}
	for k, v := range extra {
		headers[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, Body: string(body)}
}

func decodeBody(event events.APIGatewayProxyRequest) ([]byte, error) {
	if !event.IsBase64Encoded {
		return []byte(event.Body), nil
	}
	return base64.StdEncoding.DecodeString(event.Body)
}

// decodeJSON treats an empty body as an empty object.
func decodeJSON(body []byte, v any) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// normalizePath accepts both /api/... and bare paths, with or without a
// trailing slash.
func normalizePath(p string) string {
	p = strings.TrimSuffix(strings.TrimSpace(p), "/")
	if strings.HasPrefix(p, "/api/") {
		p = p[len("/api"):]
	}
	if p == "" {
		return "/"
	}
	return p
}

func allowed(methods map[string]route) string {
	out := make([]string, 0, len(methods))
	for m := range methods {
		out = append(out, m)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
