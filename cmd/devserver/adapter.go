package main

import (
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"handbook-agent/handler"
)

const maxBodyBytes = 1 << 20

// gatewayAdapter serves the Lambda handler over plain HTTP by translating
// requests into API Gateway proxy events.
type gatewayAdapter struct {
	h *handler.Handler
}

func (g gatewayAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, `{"error":"INVALID_INPUT"}`, http.StatusBadRequest)
		return
	}

	event := events.APIGatewayProxyRequest{
		HTTPMethod:            r.Method,
		Path:                  r.URL.Path,
		Headers:               make(map[string]string, len(r.Header)),
		QueryStringParameters: make(map[string]string, len(r.URL.Query())),
		Body:                  string(body),
	}
	for k, v := range r.Header {
		event.Headers[k] = strings.Join(v, ",")
	}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			event.QueryStringParameters[k] = v[0]
		}
	}

	resp, err := g.h.Handle(r.Context(), event)
	if err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("handler returned an error")
		http.Error(w, `{"error":"INTERNAL_ERROR"}`, http.StatusInternalServerError)
		return
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}
