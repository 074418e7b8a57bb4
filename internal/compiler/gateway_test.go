package compiler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emrgen/docrender/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	path        string
	contentType string
	header      http.Header
	body        string
}

func compilerServer(t *testing.T, status int, reply string, calls *atomic.Int32, seen chan<- recorded) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			seen <- recorded{path: r.URL.Path, contentType: r.Header.Get("Content-Type"), header: r.Header.Clone(), body: string(body)}
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestGateway_CompileLatex(t *testing.T) {
	var calls atomic.Int32
	seen := make(chan recorded, 1)
	srv := compilerServer(t, http.StatusOK, "%PDF-latex", &calls, seen)

	g := NewGateway(Options{Endpoints: []string{srv.URL + "/"}})
	out, err := g.Compile(context.TODO(), strings.NewReader(`\section{a}`), model.LanguageLatex)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-latex", string(out))

	req := <-seen
	assert.Equal(t, "/compile/latex", req.path)
	assert.Equal(t, "application/x-tex", req.contentType)
	assert.Equal(t, "false", req.header.Get("snippet"))
	assert.Equal(t, "false", req.header.Get("debug"))
	assert.Equal(t, `\section{a}`, req.body)
}

func TestGateway_CompileMarkdown(t *testing.T) {
	var calls atomic.Int32
	seen := make(chan recorded, 1)
	srv := compilerServer(t, http.StatusOK, "%PDF-md", &calls, seen)

	g := NewGateway(Options{Endpoints: []string{srv.URL}})
	out, err := g.Compile(context.TODO(), strings.NewReader("# title"), model.LanguageMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-md", string(out))

	req := <-seen
	assert.Equal(t, "/compile/markdown", req.path)
	assert.Equal(t, "application/x-md", req.contentType)
	assert.Equal(t, "pdf", req.header.Get("output-type"))
}

func TestGateway_UnsupportedLanguage(t *testing.T) {
	var calls atomic.Int32
	srv := compilerServer(t, http.StatusOK, "%PDF", &calls, nil)
	g := NewGateway(Options{Endpoints: []string{srv.URL}})

	for _, lang := range []model.Language{model.LanguageUnknown, model.LanguagePdf} {
		_, err := g.Compile(context.TODO(), strings.NewReader("x"), lang)
		assert.ErrorIs(t, err, ErrUnsupportedLanguage)
	}
	assert.Equal(t, int32(0), calls.Load(), "no request may leave for an unsupported language")
}

func TestGateway_NoEndpoints(t *testing.T) {
	_, err := NewGateway(Options{}).Compile(context.TODO(), strings.NewReader("x"), model.LanguageLatex)
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestGateway_StatusError(t *testing.T) {
	var calls atomic.Int32
	srv := compilerServer(t, http.StatusBadRequest, "! Undefined control sequence.", &calls, nil)
	var fallbackCalls atomic.Int32
	fallback := compilerServer(t, http.StatusOK, "%PDF", &fallbackCalls, nil)

	g := NewGateway(Options{Endpoints: []string{srv.URL, fallback.URL}})
	_, err := g.Compile(context.TODO(), strings.NewReader(`\foo`), model.LanguageLatex)

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	assert.Equal(t, http.StatusBadRequest, compileErr.StatusCode)
	assert.Equal(t, "! Undefined control sequence.", compileErr.Body)
	assert.False(t, compileErr.Retryable())
	assert.Equal(t, int32(0), fallbackCalls.Load(), "a rejected source is not sent elsewhere")
}

func TestGateway_Diagnostic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"latex failed","log":"line 3"}`))
	}))
	defer srv.Close()

	_, err := NewGateway(Options{Endpoints: []string{srv.URL}}).Compile(context.TODO(), strings.NewReader("x"), model.LanguageLatex)

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	require.NotNil(t, compileErr.Diagnostic)
	assert.Equal(t, "latex failed", *compileErr.Diagnostic.Error)
	assert.Equal(t, "line 3", *compileErr.Diagnostic.Log)
	assert.Contains(t, compileErr.Error(), "latex failed")
}

func TestGateway_OrderedFallback(t *testing.T) {
	var brokenCalls, okCalls atomic.Int32
	broken := compilerServer(t, http.StatusBadGateway, "upstream down", &brokenCalls, nil)
	ok := compilerServer(t, http.StatusOK, "%PDF-fallback", &okCalls, nil)

	g := NewGateway(Options{Endpoints: []string{broken.URL, ok.URL}})
	out, err := g.Compile(context.TODO(), strings.NewReader("# a"), model.LanguageMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-fallback", string(out))
	assert.Equal(t, int32(1), brokenCalls.Load())
	assert.Equal(t, int32(1), okCalls.Load())
}

func TestGateway_AllEndpointsFail(t *testing.T) {
	var calls atomic.Int32
	first := compilerServer(t, http.StatusInternalServerError, "first", &calls, nil)
	second := compilerServer(t, http.StatusServiceUnavailable, "second", &calls, nil)

	g := NewGateway(Options{Endpoints: []string{first.URL, second.URL}})
	_, err := g.Compile(context.TODO(), strings.NewReader("# a"), model.LanguageMarkdown)

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	assert.Equal(t, second.URL, compileErr.Endpoint)
	assert.Equal(t, http.StatusServiceUnavailable, compileErr.StatusCode)
	assert.Equal(t, int32(2), calls.Load(), "each endpoint is tried exactly once")
}

func TestGateway_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewGateway(Options{Endpoints: []string{url}}).Compile(context.TODO(), strings.NewReader("x"), model.LanguageLatex)

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	assert.NotNil(t, compileErr.Err)
	assert.True(t, compileErr.Retryable())
}

func TestGateway_BreakerSkipsDeadEndpoint(t *testing.T) {
	var brokenCalls, okCalls atomic.Int32
	broken := compilerServer(t, http.StatusInternalServerError, "boom", &brokenCalls, nil)
	ok := compilerServer(t, http.StatusOK, "%PDF", &okCalls, nil)

	g := NewGateway(Options{
		Endpoints:        []string{broken.URL, ok.URL},
		FailureThreshold: 2,
		CoolDown:         time.Hour,
	})

	for i := 0; i < 5; i++ {
		_, err := g.Compile(context.TODO(), strings.NewReader("# a"), model.LanguageMarkdown)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(2), brokenCalls.Load(), "open breaker stops calls to the failing endpoint")
	assert.Equal(t, int32(5), okCalls.Load())
}

func TestGateway_RejectedSourceKeepsBreakerClosed(t *testing.T) {
	var calls atomic.Int32
	srv := compilerServer(t, http.StatusBadRequest, "bad source", &calls, nil)

	g := NewGateway(Options{Endpoints: []string{srv.URL}, FailureThreshold: 1, CoolDown: time.Hour})
	for i := 0; i < 3; i++ {
		_, err := g.Compile(context.TODO(), strings.NewReader("x"), model.LanguageLatex)
		require.Error(t, err)
	}

	assert.Equal(t, int32(3), calls.Load())
}
