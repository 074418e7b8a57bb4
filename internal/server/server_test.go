package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/emrgen/docrender/internal/blob"
	"github.com/emrgen/docrender/internal/compiler"
	"github.com/emrgen/docrender/internal/service"
	"github.com/emrgen/docrender/internal/store"
	"github.com/emrgen/docrender/internal/tester"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type testServer struct {
	*httptest.Server
	app      *App
	compiles atomic.Int32
	failing  atomic.Bool
}

func newTestServer(t *testing.T, adminToken string) *testServer {
	t.Helper()
	tester.Quiet(t)

	ts := &testServer{}
	compilerServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.compiles.Add(1)
		if ts.failing.Load() {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"secret compiler internals","log":"! Undefined control sequence."}`))
			return
		}
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(append([]byte("%PDF-1.7\n"), body...))
	}))
	t.Cleanup(compilerServer.Close)

	ts.app = NewAppFrom(Components{
		Store:    store.NewGormStore(tester.TestDB(t)),
		Blobs:    blob.NewMemoryStore(),
		Compiler: compiler.NewGateway(compiler.Options{Endpoints: []string{compilerServer.URL}}),
	})

	handler, err := NewHandler(ts.app, NewNullTokenVerifier(), adminToken)
	require.NoError(t, err)

	ts.Server = httptest.NewServer(handler)
	t.Cleanup(ts.Server.Close)

	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, user *uuid.UUID, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+user.String())
	}

	res, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })

	return res
}

func decodeBody[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

func (ts *testServer) createDocument(t *testing.T, owner uuid.UUID, source string, public bool) *documentResponse {
	t.Helper()
	res := ts.do(t, http.MethodPost, "/api/document", &owner, createDocumentRequest{
		Title:      "paper",
		Language:   "latex",
		SourceCode: source,
		Public:     public,
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)

	return decodeBody[*documentResponse](t, res)
}

func TestServer_DocumentLifecycle(t *testing.T) {
	ts := newTestServer(t, "")
	owner := uuid.New()
	stranger := uuid.New()

	res := ts.do(t, http.MethodPost, "/api/document", nil, createDocumentRequest{Title: "t", Language: "latex"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = ts.do(t, http.MethodPost, "/api/document", &owner, createDocumentRequest{Title: "t", Language: "pdf"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	doc := ts.createDocument(t, owner, `\section{intro}`, false)
	assert.Equal(t, "Latex", doc.Language)
	assert.NotEmpty(t, doc.CurrentVersion)

	res = ts.do(t, http.MethodGet, "/api/document/"+doc.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res = ts.do(t, http.MethodGet, "/api/document/"+doc.ID+"/pdf", &stranger, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode, "private documents are hidden, not forbidden")

	res = ts.do(t, http.MethodGet, "/api/document/"+doc.ID+"/pdf", &owner, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/pdf", res.Header.Get("Content-Type"))
	pdf, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	res = ts.do(t, http.MethodGet, "/api/document/"+doc.ID+"/pdf", &owner, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, int32(1), ts.compiles.Load(), "the second read is served from the cache")

	source := `\section{changed}`
	res = ts.do(t, http.MethodPut, "/api/document/"+doc.ID, &stranger, updateDocumentRequest{SourceCode: &source})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res = ts.do(t, http.MethodPut, "/api/document/"+doc.ID, &owner, updateDocumentRequest{SourceCode: &source})
	require.Equal(t, http.StatusOK, res.StatusCode)
	updated := decodeBody[*documentResponse](t, res)
	assert.NotEqual(t, doc.CurrentVersion, updated.CurrentVersion)

	res = ts.do(t, http.MethodDelete, "/api/document/"+doc.ID, &stranger, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res = ts.do(t, http.MethodDelete, "/api/document/"+doc.ID, &owner, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res = ts.do(t, http.MethodGet, "/api/document/"+doc.ID, &owner, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestServer_ShareLinks(t *testing.T) {
	ts := newTestServer(t, "")
	owner := uuid.New()
	doc := ts.createDocument(t, owner, "# first", true)

	res := ts.do(t, http.MethodPost, "/api/share/create?documentId="+doc.ID+"&useLatest=false", &owner, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	pinned := decodeBody[*linkResponse](t, res)
	assert.False(t, pinned.UseLatest)
	assert.Equal(t, doc.CurrentVersion, pinned.Version)

	res = ts.do(t, http.MethodPost, "/api/share/create?documentId="+doc.ID, &owner, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	floating := decodeBody[*linkResponse](t, res)
	assert.True(t, floating.UseLatest)

	res = ts.do(t, http.MethodPost, "/api/share/create?documentId="+doc.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	source := "# second"
	res = ts.do(t, http.MethodPut, "/api/document/"+doc.ID, &owner, updateDocumentRequest{SourceCode: &source})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = ts.do(t, http.MethodGet, "/api/share/"+pinned.Token+"/pdf", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, _ := io.ReadAll(res.Body)
	assert.Contains(t, string(body), "# first")

	res = ts.do(t, http.MethodGet, "/api/share/"+floating.Token+"/pdf", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, _ = io.ReadAll(res.Body)
	assert.Contains(t, string(body), "# second")

	res = ts.do(t, http.MethodGet, "/api/share/"+floating.Token, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	resolved := decodeBody[*linkResponse](t, res)
	assert.NotEqual(t, pinned.Version, resolved.Version)

	res = ts.do(t, http.MethodGet, "/api/document/"+doc.ID+"/links", &owner, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, decodeBody[*linkListResponse](t, res).Links, 2)

	res = ts.do(t, http.MethodGet, "/api/share/nosuchtk", nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "link not found", decodeBody[*errorResponse](t, res).Message)
}

func TestServer_ShareLinkStoreFailure(t *testing.T) {
	ts := newTestServer(t, "")
	owner := uuid.New()
	doc := ts.createDocument(t, owner, "# shared", true)

	res := ts.do(t, http.MethodPost, "/api/share/create?documentId="+doc.ID, &owner, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	link := decodeBody[*linkResponse](t, res)

	sqlDB, err := ts.app.Store.DB().DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	for _, path := range []string{"/api/share/" + link.Token, "/api/share/" + link.Token + "/pdf"} {
		res = ts.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusNotFound, res.StatusCode, path)
		assert.Equal(t, "link not found", decodeBody[*errorResponse](t, res).Message, path)
	}
}

func TestLinkError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"missing", service.ErrNotFound, http.StatusNotFound},
		{"store", fmt.Errorf("%w: get link: disk I/O error", service.ErrStore), http.StatusNotFound},
		{"precondition", fmt.Errorf("%w: bad language", service.ErrPrecondition), http.StatusNotFound},
		{"render", &service.RenderError{Err: errors.New("boom")}, http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := httpStatus(linkError(tt.err))
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestServer_RenderFailure(t *testing.T) {
	ts := newTestServer(t, "")
	owner := uuid.New()
	doc := ts.createDocument(t, owner, `\broken`, true)

	ts.failing.Store(true)
	res := ts.do(t, http.MethodGet, "/api/document/"+doc.ID+"/pdf", nil, nil)
	require.Equal(t, http.StatusBadGateway, res.StatusCode)
	body, _ := io.ReadAll(res.Body)
	assert.Contains(t, string(body), "could not produce document")
	assert.NotContains(t, string(body), "secret compiler internals")

	ts.failing.Store(false)
	res = ts.do(t, http.MethodGet, "/api/document/"+doc.ID+"/pdf", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode, "a failed render is not cached")
}

func TestServer_Listings(t *testing.T) {
	ts := newTestServer(t, "")
	owner := uuid.New()
	ts.createDocument(t, owner, "public", true)
	ts.createDocument(t, owner, "private", false)

	res := ts.do(t, http.MethodGet, "/api/document/dashboard", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, decodeBody[*documentListResponse](t, res).Documents, 1)

	res = ts.do(t, http.MethodGet, "/api/document/user/"+owner.String(), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, decodeBody[*documentListResponse](t, res).Documents, 1)

	res = ts.do(t, http.MethodGet, "/api/document/user/"+owner.String()+"?limit=1&page=2", &owner, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	list := decodeBody[*documentListResponse](t, res)
	assert.Len(t, list.Documents, 1)
	assert.Equal(t, 1, list.Offset)

	res = ts.do(t, http.MethodGet, "/api/document/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestServer_Admin(t *testing.T) {
	ts := newTestServer(t, "")
	owner := uuid.New()

	res := ts.do(t, http.MethodGet, "/api/admin/db/lock", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = ts.do(t, http.MethodPost, "/api/document", &owner, createDocumentRequest{Title: "t", Language: "markdown"})
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)

	res = ts.do(t, http.MethodGet, "/api/admin/db/unlock", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res = ts.do(t, http.MethodGet, "/api/admin/db/flush", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res = ts.do(t, http.MethodGet, "/api/admin/db/drop", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	ts.createDocument(t, owner, "after unlock", true)
}

func TestServer_AdminToken(t *testing.T) {
	ts := newTestServer(t, "s3cret")

	res := ts.do(t, http.MethodGet, "/api/admin/db/lock", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.False(t, ts.app.Store.Locked())

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/admin/db/lock", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer s3cret")
	raw, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusOK, raw.StatusCode)
	assert.True(t, ts.app.Store.Locked())
}

func TestServer_InvalidToken(t *testing.T) {
	ts := newTestServer(t, "")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/document/dashboard", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-user")
	res, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestServer_Docs(t *testing.T) {
	ts := newTestServer(t, "")

	res := ts.do(t, http.MethodGet, "/v1/docs/openapi.yaml", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, _ := io.ReadAll(res.Body)
	assert.True(t, strings.HasPrefix(string(body), "openapi:"))
}

func TestBearerToken(t *testing.T) {
	token, ok := bearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	token, ok = bearerToken("bearer  abc ")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	for _, value := range []string{"", "Bearer", "Bearer ", "Basic abc", "abc"} {
		_, ok = bearerToken(value)
		assert.False(t, ok, value)
	}
}

func TestUnaryServerActorInterceptor(t *testing.T) {
	interceptor := UnaryServerActorInterceptor(NewNullTokenVerifier())
	info := &grpc.UnaryServerInfo{FullMethod: "/test/Method"}
	user := uuid.New()

	var seen service.Actor
	handler := func(ctx context.Context, req any) (any, error) {
		seen = ActorFromContext(ctx)
		return nil, nil
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(authorization, "Bearer "+user.String()))
	_, err := interceptor(ctx, nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, user, seen.ID())
	assert.True(t, seen.Authenticated())

	_, err = interceptor(context.Background(), nil, info, handler)
	require.NoError(t, err)
	assert.False(t, seen.Authenticated())

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs(authorization, "Bearer nope"))
	_, err = interceptor(ctx, nil, info, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestGrpcHealth(t *testing.T) {
	tester.Quiet(t)
	grpcServer, _ := NewGrpcServer(NewNullTokenVerifier())
	listener := bufconn.Listen(1 << 20)
	go func() { _ = grpcServer.Serve(listener) }()
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	res, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, res.Status)
}
