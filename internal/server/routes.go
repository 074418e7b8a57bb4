package server

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/emrgen/docrender/internal/model"
	"github.com/emrgen/docrender/internal/service"
	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/sirupsen/logrus"
)

type documentResponse struct {
	ID             string    `json:"id"`
	Owner          string    `json:"owner"`
	Title          string    `json:"title"`
	Language       string    `json:"language"`
	SourceCode     string    `json:"sourceCode,omitempty"`
	CurrentVersion string    `json:"currentVersion"`
	Public         bool      `json:"public"`
	LastModified   time.Time `json:"lastModified"`
	CreatedAt      time.Time `json:"createdAt"`
}

type documentListResponse struct {
	Documents []*documentResponse `json:"documents"`
	Limit     int                 `json:"limit"`
	Offset    int                 `json:"offset"`
}

type linkResponse struct {
	Token      string `json:"token"`
	DocumentID string `json:"documentId"`
	Version    string `json:"version"`
	UseLatest  bool   `json:"useLatest"`
}

type linkListResponse struct {
	Links []*linkResponse `json:"links"`
}

type createDocumentRequest struct {
	Title      string `json:"title"`
	Language   string `json:"language"`
	SourceCode string `json:"sourceCode"`
	Public     bool   `json:"public"`
}

type updateDocumentRequest struct {
	Title      *string `json:"title"`
	SourceCode *string `json:"sourceCode"`
	Public     *bool   `json:"public"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func toDocumentResponse(doc *model.Document, withSource bool) *documentResponse {
	res := &documentResponse{
		ID:             doc.ID,
		Owner:          doc.Owner,
		Title:          doc.Title,
		Language:       doc.Language.String(),
		CurrentVersion: doc.CurrentVersion,
		Public:         doc.Public,
		LastModified:   doc.LastModified,
		CreatedAt:      doc.CreatedAt,
	}
	if withSource {
		res.SourceCode = doc.SourceCode
	}

	return res
}

func toDocumentList(docs []*model.Document, limit, offset int) *documentListResponse {
	res := &documentListResponse{Documents: make([]*documentResponse, 0, len(docs)), Limit: limit, Offset: offset}
	for _, doc := range docs {
		res.Documents = append(res.Documents, toDocumentResponse(doc, false))
	}

	return res
}

type actorHandler func(w http.ResponseWriter, r *http.Request, params map[string]string, actor service.Actor) error

type handlers struct {
	app        *App
	verifier   TokenVerifier
	marshaler  runtime.Marshaler
	adminToken string
}

// RegisterRoutes mounts the REST API on the gateway mux. The mux tries the most
// recently registered pattern first, so fixed segments are registered after the
// wildcard patterns they overlap with.
func RegisterRoutes(mux *runtime.ServeMux, app *App, verifier TokenVerifier, adminToken string) error {
	h := &handlers{
		app:        app,
		verifier:   verifier,
		marshaler:  &runtime.JSONBuiltin{},
		adminToken: adminToken,
	}

	routes := []struct {
		method  string
		pattern string
		handler actorHandler
	}{
		{http.MethodPost, "/api/document", h.createDocument},
		{http.MethodGet, "/api/document/{id}", h.getDocument},
		{http.MethodPut, "/api/document/{id}", h.updateDocument},
		{http.MethodDelete, "/api/document/{id}", h.deleteDocument},
		{http.MethodGet, "/api/document/{id}/pdf", h.renderDocument},
		{http.MethodGet, "/api/document/{id}/links", h.listLinks},
		{http.MethodGet, "/api/document/dashboard", h.dashboard},
		{http.MethodGet, "/api/document/user/{userId}", h.listByOwner},
		{http.MethodGet, "/api/share/{token}", h.resolveLink},
		{http.MethodGet, "/api/share/{token}/pdf", h.linkArtifact},
		{http.MethodPost, "/api/share/create", h.createLink},
		{http.MethodGet, "/api/admin/db/{op}", h.admin},
	}

	for _, route := range routes {
		if err := mux.HandlePath(route.method, route.pattern, h.wrap(route.handler)); err != nil {
			return err
		}
	}

	return nil
}

func (h *handlers) wrap(next actorHandler) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		actor, err := actorFromRequest(r, h.verifier)
		if err == nil {
			err = next(w, r, params, actor)
		}
		if err != nil {
			writeError(w, r, h.marshaler, err)
		}
	}
}

func parseID(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		// a malformed id can never name an existing record
		return uuid.Nil, service.ErrNotFound
	}

	return id, nil
}

func pagination(r *http.Request) (int, int) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	if page, err := strconv.Atoi(query.Get("page")); err == nil && page > 0 && limit > 0 {
		offset = (page - 1) * limit
	}

	return limit, offset
}

func (h *handlers) decode(r *http.Request, v any) error {
	if err := h.marshaler.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", service.ErrPrecondition, err)
	}

	return nil
}

func (h *handlers) createDocument(w http.ResponseWriter, r *http.Request, _ map[string]string, actor service.Actor) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}

	var req createDocumentRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	language, err := model.ParseLanguage(req.Language)
	if err != nil {
		return fmt.Errorf("%w: %v", service.ErrPrecondition, err)
	}

	doc, err := h.app.Documents.Create(r.Context(), actor, service.CreateDocument{
		Title:      req.Title,
		Language:   language,
		SourceCode: req.SourceCode,
		Public:     req.Public,
	})
	if err != nil {
		return err
	}

	writeJSON(w, h.marshaler, http.StatusCreated, toDocumentResponse(doc, true))
	return nil
}

func (h *handlers) getDocument(w http.ResponseWriter, r *http.Request, params map[string]string, actor service.Actor) error {
	id, err := parseID(params["id"])
	if err != nil {
		return err
	}

	doc, err := h.app.Documents.Get(r.Context(), actor, id)
	if err != nil {
		return err
	}

	writeJSON(w, h.marshaler, http.StatusOK, toDocumentResponse(doc, true))
	return nil
}

func (h *handlers) updateDocument(w http.ResponseWriter, r *http.Request, params map[string]string, actor service.Actor) error {
	id, err := parseID(params["id"])
	if err != nil {
		return err
	}

	var req updateDocumentRequest
	if err = h.decode(r, &req); err != nil {
		return err
	}

	doc, err := h.app.Documents.Update(r.Context(), actor, id, service.UpdateDocument{
		Title:      req.Title,
		SourceCode: req.SourceCode,
		Public:     req.Public,
	})
	if err != nil {
		return err
	}

	writeJSON(w, h.marshaler, http.StatusOK, toDocumentResponse(doc, true))
	return nil
}

func (h *handlers) deleteDocument(w http.ResponseWriter, r *http.Request, params map[string]string, actor service.Actor) error {
	id, err := parseID(params["id"])
	if err != nil {
		return err
	}

	if err = h.app.Documents.Delete(r.Context(), actor, id); err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *handlers) renderDocument(w http.ResponseWriter, r *http.Request, params map[string]string, actor service.Actor) error {
	id, err := parseID(params["id"])
	if err != nil {
		return err
	}

	data, doc, err := h.app.Documents.Render(r.Context(), actor, id)
	if err != nil {
		return err
	}

	writePDF(w, doc.Title, doc.CurrentVersion, data)
	return nil
}

func (h *handlers) listLinks(w http.ResponseWriter, r *http.Request, params map[string]string, actor service.Actor) error {
	id, err := parseID(params["id"])
	if err != nil {
		return err
	}

	links, err := h.app.Links.ListLinks(r.Context(), actor, id)
	if err != nil {
		return err
	}

	res := &linkListResponse{Links: make([]*linkResponse, 0, len(links))}
	for _, link := range links {
		res.Links = append(res.Links, &linkResponse{
			Token:      link.Token,
			DocumentID: link.DocumentID,
			Version:    link.PinnedVersion,
			UseLatest:  link.UseLatest,
		})
	}

	writeJSON(w, h.marshaler, http.StatusOK, res)
	return nil
}

func (h *handlers) dashboard(w http.ResponseWriter, r *http.Request, _ map[string]string, _ service.Actor) error {
	limit, offset := pagination(r)
	docs, err := h.app.Documents.ListPublic(r.Context(), limit, offset)
	if err != nil {
		return err
	}

	writeJSON(w, h.marshaler, http.StatusOK, toDocumentList(docs, limit, offset))
	return nil
}

func (h *handlers) listByOwner(w http.ResponseWriter, r *http.Request, params map[string]string, actor service.Actor) error {
	owner, err := parseID(params["userId"])
	if err != nil {
		return err
	}

	limit, offset := pagination(r)
	docs, err := h.app.Documents.ListByOwner(r.Context(), actor, owner, limit, offset)
	if err != nil {
		return err
	}

	writeJSON(w, h.marshaler, http.StatusOK, toDocumentList(docs, limit, offset))
	return nil
}

func (h *handlers) createLink(w http.ResponseWriter, r *http.Request, _ map[string]string, actor service.Actor) error {
	query := r.URL.Query()
	docID, err := parseID(query.Get("documentId"))
	if err != nil {
		return err
	}

	useLatest := true
	if value := query.Get("useLatest"); value != "" {
		if useLatest, err = strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%w: %v", service.ErrPrecondition, err)
		}
	}

	token, err := h.app.Links.CreateLinkFor(r.Context(), actor, docID, useLatest)
	if err != nil {
		return err
	}

	res, err := h.app.Links.Resolve(r.Context(), token)
	if err != nil {
		return err
	}

	writeJSON(w, h.marshaler, http.StatusCreated, &linkResponse{
		Token:      res.Token,
		DocumentID: res.DocumentID.String(),
		Version:    res.Version,
		UseLatest:  res.UseLatest,
	})
	return nil
}

func (h *handlers) resolveLink(w http.ResponseWriter, r *http.Request, params map[string]string, actor service.Actor) error {
	res, _, err := h.app.Links.ResolveFor(r.Context(), actor, params["token"])
	if err != nil {
		return linkError(err)
	}

	writeJSON(w, h.marshaler, http.StatusOK, &linkResponse{
		Token:      res.Token,
		DocumentID: res.DocumentID.String(),
		Version:    res.Version,
		UseLatest:  res.UseLatest,
	})
	return nil
}

func (h *handlers) linkArtifact(w http.ResponseWriter, r *http.Request, params map[string]string, actor service.Actor) error {
	data, res, err := h.app.Links.ResolveArtifact(r.Context(), actor, params["token"])
	if err != nil {
		return linkError(err)
	}

	writePDF(w, res.Token, res.Version, data)
	return nil
}

func (h *handlers) admin(w http.ResponseWriter, r *http.Request, params map[string]string, _ service.Actor) error {
	if h.adminToken != "" {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok || token != h.adminToken {
			// hide the admin surface from everyone else
			return service.ErrNotFound
		}
	}

	manager := h.app.Store
	var message string
	switch params["op"] {
	case "flush":
		if err := manager.Flush(r.Context()); err != nil {
			return err
		}
		message = "database flushed"
	case "lock":
		if err := manager.Lock(r.Context()); err != nil {
			return err
		}
		message = "database locked for writes"
	case "unlock":
		if err := manager.Unlock(r.Context()); err != nil {
			return err
		}
		message = "database unlocked"
	default:
		return service.ErrNotFound
	}

	logrus.Warnf("admin: %s", message)
	writeJSON(w, h.marshaler, http.StatusOK, &messageResponse{Message: message})
	return nil
}

// linkError reports every resolve failure as a missing link. Render failures and
// timeouts keep their own status.
func linkError(err error) error {
	switch {
	case errors.Is(err, service.ErrRender),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	case !errors.Is(err, service.ErrNotFound):
		logrus.Errorf("failed to resolve link: %v", err)
	}

	return errLinkNotFound
}

func writePDF(w http.ResponseWriter, name, version string, data []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name + ".pdf"}))
	if version != "" {
		w.Header().Set("ETag", strconv.Quote(version))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logrus.Debugf("failed to write pdf: %v", err)
	}
}
