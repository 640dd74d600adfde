// Package client talks to the story API over HTTP. It implements
// editor.Store so an editing session can run against a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/inkwell-space/core/internal/editor"
	"github.com/inkwell-space/core/internal/models"
	"github.com/inkwell-space/core/internal/modules/content/story"
	"github.com/inkwell-space/core/internal/pkg/response"
)

const (
	apiPrefix      = "/api/v1"
	defaultTimeout = 30 * time.Second
)

var (
	ErrUnauthorized = errors.New("not authorized")
	ErrRateLimited  = errors.New("too many requests")
)

var _ editor.Store = (*Client)(nil)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Unwrap maps the status onto the story package's sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return story.ErrNotFound
	case http.StatusConflict:
		return story.ErrConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return story.ErrInvalid
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

// Summary is a list entry as served by GET /stories.
type Summary struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Subtitle    *string    `json:"subtitle"`
	Slug        *string    `json:"slug"`
	Excerpt     string     `json:"excerpt"`
	ReadingTime *int       `json:"reading_time"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"published_at"`
	ViewCount   int64      `json:"view_count"`
	Version     int64      `json:"version"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Page struct {
	Data       []Summary           `json:"data"`
	Pagination response.Pagination `json:"pagination"`
}

// Verification is the server's answer to a token check.
type Verification struct {
	Valid     bool      `json:"valid"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

type Client struct {
	server string
	http   *http.Client

	mu    sync.RWMutex
	token string
}

// New returns a client for the server at serverURL (scheme and host, with
// an optional path prefix).
func New(serverURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q must be http or https", serverURL)
	}
	c := &Client{
		server: strings.TrimRight(u.String(), "/"),
		http:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Server() string { return c.server }

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login exchanges the shared password for a token and keeps it for later
// calls.
func (c *Client) Login(ctx context.Context, password string) (Credentials, error) {
	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"password": password}, &out); err != nil {
		return Credentials{}, err
	}
	c.SetToken(out.Token)
	return Credentials{Server: c.server, Token: out.Token, ExpiresAt: out.ExpiresAt}, nil
}

func (c *Client) Verify(ctx context.Context, token string) (Verification, error) {
	var out Verification
	err := c.do(ctx, http.MethodPost, "/auth/verify", map[string]string{"token": token}, &out)
	return out, err
}

func (c *Client) Create(ctx context.Context, in story.CreateInput) (*models.StoryModel, error) {
	var out models.StoryModel
	if err := c.do(ctx, http.MethodPost, "/stories", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Get(ctx context.Context, id string) (*models.StoryModel, error) {
	var out models.StoryModel
	if err := c.do(ctx, http.MethodGet, storyPath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Update(ctx context.Context, id string, in story.UpdateInput) (*models.StoryModel, error) {
	var out models.StoryModel
	if err := c.do(ctx, http.MethodPatch, storyPath(id, ""), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Publish(ctx context.Context, id string, in story.PublishInput) (*models.StoryModel, error) {
	var out models.StoryModel
	if err := c.do(ctx, http.MethodPost, storyPath(id, "/publish"), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Unpublish(ctx context.Context, id string) (*models.StoryModel, error) {
	var out models.StoryModel
	if err := c.do(ctx, http.MethodPost, storyPath(id, "/unpublish"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, storyPath(id, ""), nil, nil)
}

// List returns one page of all stories, drafts included.
func (c *Client) List(ctx context.Context, page, size int) (Page, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if size > 0 {
		q.Set("size", strconv.Itoa(size))
	}
	path := "/stories"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out Page
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// UploadPreviewImage uploads an image and sets it as the story's preview.
func (c *Client) UploadPreviewImage(ctx context.Context, id, filename string, r io.Reader) (*models.StoryModel, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, storyPath(id, "/preview-image"), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	var out models.StoryModel
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func storyPath(id, suffix string) string {
	return "/stories/" + url.PathEscape(id) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.server+apiPrefix+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &envelope) != nil {
			envelope.Message = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: envelope.Message}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
