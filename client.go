package docrender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Document is the metadata of a document as returned by the API.
type Document struct {
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

// Link is a resolved share link.
type Link struct {
	Token      string `json:"token"`
	DocumentID string `json:"documentId"`
	Version    string `json:"version"`
	UseLatest  bool   `json:"useLatest"`
}

type CreateDocumentRequest struct {
	Title      string `json:"title"`
	Language   string `json:"language"`
	SourceCode string `json:"sourceCode"`
	Public     bool   `json:"public"`
}

type UpdateDocumentRequest struct {
	Title      *string `json:"title,omitempty"`
	SourceCode *string `json:"sourceCode,omitempty"`
	Public     *bool   `json:"public,omitempty"`
}

// APIError is a non-success response of the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Client talks to the REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL. The token is sent as a bearer
// token when set.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *Client) CreateDocument(ctx context.Context, req CreateDocumentRequest) (*Document, error) {
	var doc Document
	return &doc, c.doJSON(ctx, http.MethodPost, "/api/document", req, &doc)
}

func (c *Client) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	return &doc, c.doJSON(ctx, http.MethodGet, "/api/document/"+url.PathEscape(id), nil, &doc)
}

func (c *Client) UpdateDocument(ctx context.Context, id string, req UpdateDocumentRequest) (*Document, error) {
	var doc Document
	return &doc, c.doJSON(ctx, http.MethodPut, "/api/document/"+url.PathEscape(id), req, &doc)
}

func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/document/"+url.PathEscape(id), nil, nil)
}

// RenderDocument returns the compiled bytes of a document at its current version.
func (c *Client) RenderDocument(ctx context.Context, id string) ([]byte, error) {
	return c.doBytes(ctx, "/api/document/"+url.PathEscape(id)+"/pdf")
}

// ListDocuments lists the documents of a user, or the public dashboard when user is empty.
func (c *Client) ListDocuments(ctx context.Context, user string, limit, offset int) ([]*Document, error) {
	path := "/api/document/dashboard"
	if user != "" {
		path = "/api/document/user/" + url.PathEscape(user)
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var res struct {
		Documents []*Document `json:"documents"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path+"?"+query.Encode(), nil, &res); err != nil {
		return nil, err
	}

	return res.Documents, nil
}

func (c *Client) CreateLink(ctx context.Context, documentID string, useLatest bool) (*Link, error) {
	query := url.Values{}
	query.Set("documentId", documentID)
	query.Set("useLatest", strconv.FormatBool(useLatest))

	var link Link
	return &link, c.doJSON(ctx, http.MethodPost, "/api/share/create?"+query.Encode(), nil, &link)
}

func (c *Client) ResolveLink(ctx context.Context, token string) (*Link, error) {
	var link Link
	return &link, c.doJSON(ctx, http.MethodGet, "/api/share/"+url.PathEscape(token), nil, &link)
}

// LinkArtifact returns the compiled bytes a share link points at.
func (c *Client) LinkArtifact(ctx context.Context, token string) ([]byte, error) {
	return c.doBytes(ctx, "/api/share/"+url.PathEscape(token)+"/pdf")
}

func (c *Client) ListLinks(ctx context.Context, documentID string) ([]*Link, error) {
	var res struct {
		Links []*Link `json:"links"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/document/"+url.PathEscape(documentID)+"/links", nil, &res); err != nil {
		return nil, err
	}

	return res.Links, nil
}

// Admin runs one of the database operations flush, lock or unlock.
func (c *Client) Admin(ctx context.Context, op string) (string, error) {
	var res struct {
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/admin/db/"+url.PathEscape(op), nil, &res); err != nil {
		return "", err
	}

	return res.Message, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if res.StatusCode >= http.StatusBadRequest {
		defer res.Body.Close()
		apiErr := &APIError{StatusCode: res.StatusCode}
		var body struct {
			Message string `json:"message"`
		}
		if err = json.NewDecoder(res.Body).Decode(&body); err == nil {
			apiErr.Message = body.Message
		}
		return nil, apiErr
	}

	return res, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	res, err := c.do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}

	return json.NewDecoder(res.Body).Decode(out)
}

func (c *Client) doBytes(ctx context.Context, path string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	return io.ReadAll(res.Body)
}
