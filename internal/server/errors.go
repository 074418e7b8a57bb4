package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/emrgen/docrender/internal/service"
	"github.com/emrgen/docrender/internal/store"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/sirupsen/logrus"
)

// errLinkNotFound replaces every failure to resolve a share token.
var errLinkNotFound = fmt.Errorf("link %w", service.ErrNotFound)

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// httpStatus maps a service error onto a status and a message safe to show a client.
// Visibility failures surface as not found, never forbidden.
func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, service.ErrPrecondition):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errLinkNotFound):
		return http.StatusNotFound, "link not found"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, service.ErrRender):
		return http.StatusBadGateway, service.ErrRender.Error()
	case errors.Is(err, store.ErrLocked):
		return http.StatusServiceUnavailable, store.ErrLocked.Error()
	case errors.Is(err, service.ErrTokenExhausted):
		return http.StatusServiceUnavailable, service.ErrTokenExhausted.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	}

	return http.StatusInternalServerError, "internal error"
}

func writeError(w http.ResponseWriter, r *http.Request, marshaler runtime.Marshaler, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		logrus.Debugf("%s %s abandoned by client", r.Method, r.URL.Path)
		return
	}

	code, message := httpStatus(err)
	if code >= http.StatusInternalServerError {
		logrus.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		logrus.Debugf("%s %s: %v", r.Method, r.URL.Path, err)
	}

	writeJSON(w, marshaler, code, &errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, marshaler runtime.Marshaler, code int, v any) {
	body, err := marshaler.Marshal(v)
	if err != nil {
		logrus.Errorf("failed to marshal response: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", marshaler.ContentType(v))
	w.WriteHeader(code)
	if _, err = w.Write(body); err != nil {
		logrus.Debugf("failed to write response: %v", err)
	}
}
