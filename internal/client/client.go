// Package client is a typed HTTP client for the rabbithole API.
//
// All calls carry the caller's identity, either as a bearer token or as
// the x-user-id header, and use the same request and model types as the
// server. Non-2xx replies surface as *APIError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rabbithole/api/internal/auth"
	"rabbithole/api/internal/model"
)

// AnonymousUser is sent when no identity has been configured.
const AnonymousUser = "00000000-0000-0000-0000-000000000000"

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx reply.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error: status=%d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error: status=%d code=%s: %s", e.Status, e.Code, e.Message)
}

// Temporary reports whether the request may succeed when repeated.
func (e *APIError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

// Retryable reports whether err is a transport failure or a temporary
// server reply. Cancellation is never retryable.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var netErr net.Error
	var urlErr *url.Error
	return errors.As(err, &netErr) || errors.As(err, &urlErr)
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userID     string
	token      string
}

type Option func(*Client)

func WithUserID(userID string) Option {
	return func(c *Client) { c.userID = userID }
}

// WithToken authenticates with a signed bearer token instead of the
// x-user-id header.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New builds a client for baseURL, which includes any route prefix such
// as "http://localhost:3000/api".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		userID:     AnonymousUser,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Health(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, nil)
}

func (c *Client) SaveItem(ctx context.Context, input model.SaveItemInput) (model.Item, error) {
	var out struct {
		Item model.Item `json:"item"`
	}
	err := c.call(ctx, http.MethodPost, "/items", input, &out)
	return out.Item, err
}

func (c *Client) GetItem(ctx context.Context, itemID string) (model.ItemBundle, error) {
	var out model.ItemBundle
	err := c.call(ctx, http.MethodGet, "/items/"+url.PathEscape(itemID), nil, &out)
	return out, err
}

func (c *Client) GetItemByURL(ctx context.Context, pageURL string) (model.ItemBundle, error) {
	var out model.ItemBundle
	err := c.call(ctx, http.MethodGet, "/items/by-url?url="+url.QueryEscape(pageURL), nil, &out)
	return out, err
}

func (c *Client) UpdateItem(ctx context.Context, itemID string, input model.UpdateItemInput) (model.Item, error) {
	var out struct {
		Item model.Item `json:"item"`
	}
	err := c.call(ctx, http.MethodPatch, "/items/"+url.PathEscape(itemID), input, &out)
	return out.Item, err
}

func (c *Client) DeleteItem(ctx context.Context, itemID string) error {
	return c.call(ctx, http.MethodDelete, "/items/"+url.PathEscape(itemID), nil, nil)
}

func (c *Client) SaveNote(ctx context.Context, itemID string, input model.NoteInput) (model.Note, error) {
	var out struct {
		Note model.Note `json:"note"`
	}
	err := c.call(ctx, http.MethodPost, "/items/"+url.PathEscape(itemID)+"/notes", input, &out)
	return out.Note, err
}

func (c *Client) DeleteNote(ctx context.Context, noteID string) error {
	return c.call(ctx, http.MethodDelete, "/notes/"+url.PathEscape(noteID), nil, nil)
}

func (c *Client) NoteHistory(ctx context.Context, noteID string) ([]model.Revision, error) {
	var out struct {
		History []model.Revision `json:"history"`
	}
	err := c.call(ctx, http.MethodGet, "/notes/"+url.PathEscape(noteID)+"/history", nil, &out)
	return out.History, err
}

func (c *Client) SaveHighlight(ctx context.Context, itemID string, input model.HighlightInput) (model.Highlight, error) {
	var out struct {
		Highlight model.Highlight `json:"highlight"`
	}
	err := c.call(ctx, http.MethodPost, "/items/"+url.PathEscape(itemID)+"/highlights", input, &out)
	return out.Highlight, err
}

func (c *Client) DeleteHighlight(ctx context.Context, highlightID string) error {
	return c.call(ctx, http.MethodDelete, "/highlights/"+url.PathEscape(highlightID), nil, nil)
}

func (c *Client) SaveDrawing(ctx context.Context, itemID string, input model.DrawingInput) (model.Drawing, error) {
	var out struct {
		Drawing model.Drawing `json:"drawing"`
	}
	err := c.call(ctx, http.MethodPost, "/items/"+url.PathEscape(itemID)+"/drawings", input, &out)
	return out.Drawing, err
}

func (c *Client) DeleteDrawing(ctx context.Context, drawingID string) error {
	return c.call(ctx, http.MethodDelete, "/drawings/"+url.PathEscape(drawingID), nil, nil)
}

func (c *Client) Groups(ctx context.Context) ([]model.GroupWithItems, error) {
	var out struct {
		Groups []model.GroupWithItems `json:"groups"`
	}
	err := c.call(ctx, http.MethodGet, "/groups", nil, &out)
	return out.Groups, err
}

func (c *Client) Recommendations(ctx context.Context) (model.Recommendations, error) {
	var out model.Recommendations
	err := c.call(ctx, http.MethodGet, "/recommendations", nil, &out)
	return out, err
}

// Search runs a full-text query; limit 0 uses the server default.
func (c *Client) Search(ctx context.Context, text string, limit int) (model.SearchResponse, error) {
	query := url.Values{"q": {text}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out model.SearchResponse
	err := c.call(ctx, http.MethodGet, "/search?"+query.Encode(), nil, &out)
	return out, err
}

func (c *Client) UploadBlob(ctx context.Context, data []byte, contentType string) (model.BlobUpload, error) {
	var out model.BlobUpload
	resp, err := c.send(ctx, http.MethodPost, "/blobs", bytes.NewReader(data), contentType)
	if err != nil {
		return out, err
	}
	return out, decodeResponse(resp, &out)
}

// DownloadBlob returns the blob bytes and their content type.
func (c *Client) DownloadBlob(ctx context.Context, ref string) ([]byte, string, error) {
	return c.download(ctx, "/blobs/"+url.PathEscape(ref))
}

// Export renders an item as html or pdf.
func (c *Client) Export(ctx context.Context, itemID, format string) ([]byte, string, error) {
	path := "/items/" + url.PathEscape(itemID) + "/export"
	if format != "" {
		path += "?format=" + url.QueryEscape(format)
	}
	return c.download(ctx, path)
}

func (c *Client) call(ctx context.Context, method, path string, body, target any) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	return decodeResponse(resp, target)
}

func (c *Client) download(ctx context.Context, path string) ([]byte, string, error) {
	resp, err := c.send(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", readError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// doRequest performs a JSON request with identity headers.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	contentType := ""
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
		contentType = "application/json"
	}
	return c.send(ctx, method, path, bodyReader, contentType)
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else {
		req.Header.Set(auth.UserHeader, c.userID)
	}
	return c.httpClient.Do(req)
}

// decodeResponse closes the body and decodes it into target when the
// status is successful.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return readError(resp)
	}
	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	var payload struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Error
	}
	return apiErr
}
