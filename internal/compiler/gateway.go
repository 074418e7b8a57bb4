// Package compiler sends document sources to the external compilation service.
package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/emrgen/docrender/internal/model"
	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
)

const userAgent = "docrender/1.0"

// Compiler turns document source into compiled bytes.
type Compiler interface {
	Compile(ctx context.Context, source io.Reader, language model.Language) ([]byte, error)
}

// Options configures a Gateway.
type Options struct {
	// Endpoints are compiler base urls, tried in order.
	Endpoints []string
	// Timeout bounds a single attempt against one endpoint.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens an endpoint's breaker.
	FailureThreshold uint32
	// CoolDown is how long an open breaker rejects calls before probing again.
	CoolDown time.Duration
	// Client overrides the http client.
	Client *http.Client
}

type endpoint struct {
	url     string
	breaker *gobreaker.CircuitBreaker[[]byte]
}

var _ Compiler = (*Gateway)(nil)

// Gateway is a stateless client for the external compiler. It makes no retries
// against a single endpoint; a failing endpoint hands over to the next one.
type Gateway struct {
	client    *http.Client
	timeout   time.Duration
	endpoints []*endpoint
}

func NewGateway(opts Options) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.CoolDown <= 0 {
		opts.CoolDown = 30 * time.Second
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}

	g := &Gateway{client: client, timeout: opts.Timeout}
	for _, raw := range opts.Endpoints {
		url := strings.TrimRight(strings.TrimSpace(raw), "/")
		if url == "" {
			continue
		}
		g.endpoints = append(g.endpoints, &endpoint{
			url:     url,
			breaker: newBreaker(url, opts.FailureThreshold, opts.CoolDown),
		})
	}

	return g
}

func newBreaker(name string, threshold uint32, coolDown time.Duration) *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     coolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// rejected sources say nothing about the endpoint's health
		IsSuccessful: func(err error) bool {
			var compileErr *CompileError
			if errors.As(err, &compileErr) {
				return !compileErr.Retryable()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.Warnf("compiler endpoint %s breaker: %s -> %s", name, from, to)
		},
	})
}

// Route returns the compile path for a language.
func Route(language model.Language) (string, error) {
	switch language {
	case model.LanguageLatex:
		return "/compile/latex", nil
	case model.LanguageMarkdown:
		return "/compile/markdown", nil
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
}

// Compile sends the source to the first endpoint able to compile it and returns
// the response body untouched. The last CompileError is returned when every
// endpoint fails.
func (g *Gateway) Compile(ctx context.Context, source io.Reader, language model.Language) ([]byte, error) {
	route, err := Route(language)
	if err != nil {
		return nil, err
	}

	if len(g.endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	// buffered once so every endpoint receives the same body
	body, err := io.ReadAll(source)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	var lastErr error
	for i, ep := range g.endpoints {
		out, err := ep.breaker.Execute(func() ([]byte, error) {
			return g.send(ctx, ep.url, route, language, body)
		})
		if err == nil {
			if i > 0 {
				logrus.Infof("compiled on fallback endpoint %s after %d failure(s)", ep.url, i)
			}
			return out, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var compileErr *CompileError
		switch {
		case errors.As(err, &compileErr):
			logrus.WithFields(logrus.Fields{
				"endpoint": ep.url,
				"status":   compileErr.StatusCode,
				"body":     compileErr.Body,
			}).Errorf("compilation failed: %v", err)
			if !compileErr.Retryable() {
				return nil, compileErr
			}
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			logrus.Warnf("skipping compiler endpoint %s: %v", ep.url, err)
			lastErr = &CompileError{Endpoint: ep.url, Err: err}
		default:
			logrus.Errorf("compiler endpoint %s: %v", ep.url, err)
		}
	}

	return nil, lastErr
}

func (g *Gateway) send(ctx context.Context, base, route string, language model.Language, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+route, bytes.NewReader(body))
	if err != nil {
		return nil, &CompileError{Endpoint: base, Err: err}
	}

	req.Header.Set("User-Agent", userAgent)
	switch language {
	case model.LanguageLatex:
		req.Header.Set("snippet", "false")
		req.Header.Set("debug", "false")
		req.Header.Set("Content-Type", "application/x-tex")
	case model.LanguageMarkdown:
		req.Header.Set("output-type", "pdf")
		req.Header.Set("Content-Type", "application/x-md")
	}

	start := time.Now()
	res, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &CompileError{Endpoint: base, Err: err}
	}
	defer res.Body.Close()

	out, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &CompileError{Endpoint: base, Err: fmt.Errorf("read response: %w", err)}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, newStatusError(base, res.StatusCode, res.Header.Get("Content-Type"), out)
	}

	logrus.Debugf("compiled %s source (%d bytes) on %s in %v", language, len(body), base, time.Since(start))
	return out, nil
}
