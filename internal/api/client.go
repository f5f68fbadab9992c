package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/revivelabs/photorestore/internal/config"
	"github.com/revivelabs/photorestore/internal/models"
)

// Endpoint paths, relative to the configured base URL.
const (
	pathEnhance      = "/api/enhance"
	pathFilter       = "/api/filter"
	pathCustomEdit   = "/api/custom-edit"
	pathRestore      = "/api/restore"
	pathPurchase     = "/api/purchase"
	pathAnalytics    = "/api/analytics"
	pathEnhancements = "/api/enhancements"
)

// Client talks to the restoration backend. There is no session; the stored
// user id rides along as a form or JSON field and is the only credential.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// APIError is a non-2xx backend response. Detail carries the server's
// optional {"detail": ...} string when one was sent.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend error: status=%d detail=%s", e.Status, e.Detail)
	}
	return fmt.Sprintf("backend error: status=%d", e.Status)
}

type EnhanceRequest struct {
	UserID       string
	FilePath     string
	Mode         models.Mode
	Resolution   models.Resolution
	QualityLevel *float64
}

type FilterRequest struct {
	UserID     string
	FilePath   string
	FilterType string
	Resolution models.Resolution
}

type CustomEditRequest struct {
	UserID          string
	FilePath        string
	EditDescription string
	Resolution      models.Resolution
}

// EnhanceResult is one completed enhancement as reported by the backend.
// EnhancedURL has already been resolved against the base URL.
type EnhanceResult struct {
	EnhancementID  string
	EnhancedURL    string
	Watermark      bool
	ProcessingTime float64
	Credits        CreditUpdate
}

// wireEnhance covers every credit-field shape the backend has been seen to
// return; reconciliation into CreditUpdate happens in exactly one place.
type wireEnhance struct {
	EnhancementID  string  `json:"enhancement_id"`
	EnhancedURL    string  `json:"enhanced_url"`
	Watermark      bool    `json:"watermark"`
	ProcessingTime float64 `json:"processing_time"`
	creditFields
}

// Enhance uploads the image with mode, resolution and optional quality as a
// multipart form and returns the server's result. Nothing is retried; the
// caller decides whether to resubmit.
func (c *Client) Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResult, error) {
	fields := map[string]string{
		"user_id":    req.UserID,
		"resolution": string(req.Resolution),
		"mode":       string(req.Mode),
	}
	if req.QualityLevel != nil {
		fields["quality_level"] = strconv.FormatFloat(*req.QualityLevel, 'f', -1, 64)
	}
	return c.uploadImage(ctx, pathEnhance, fields, req.FilePath, req.Resolution)
}

// ApplyFilter is the same upload against the filter endpoint.
func (c *Client) ApplyFilter(ctx context.Context, req FilterRequest) (*EnhanceResult, error) {
	fields := map[string]string{
		"user_id":     req.UserID,
		"resolution":  string(req.Resolution),
		"filter_type": req.FilterType,
	}
	return c.uploadImage(ctx, pathFilter, fields, req.FilePath, req.Resolution)
}

// CustomEdit uploads the image with a free-form edit instruction. The
// description is required; the server rejects empty ones anyway.
func (c *Client) CustomEdit(ctx context.Context, req CustomEditRequest) (*EnhanceResult, error) {
	if strings.TrimSpace(req.EditDescription) == "" {
		return nil, fmt.Errorf("edit description is required")
	}
	fields := map[string]string{
		"user_id":          req.UserID,
		"resolution":       string(req.Resolution),
		"edit_description": req.EditDescription,
	}
	return c.uploadImage(ctx, pathCustomEdit, fields, req.FilePath, req.Resolution)
}

func (c *Client) uploadImage(ctx context.Context, path string, fields map[string]string, filePath string, res models.Resolution) (*EnhanceResult, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		err := writeUploadForm(writer, fields, filepath.Base(filePath), file)
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(path), pr)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var wire wireEnhance
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode enhance response: %w (body=%s)", err, truncateBody(body))
	}
	if wire.EnhancedURL == "" {
		return nil, fmt.Errorf("no enhanced_url in response (body=%s)", truncateBody(body))
	}

	return &EnhanceResult{
		EnhancementID:  wire.EnhancementID,
		EnhancedURL:    c.resolve(wire.EnhancedURL),
		Watermark:      wire.Watermark,
		ProcessingTime: wire.ProcessingTime,
		Credits:        wire.creditFields.update(res),
	}, nil
}

func writeUploadForm(writer *multipart.Writer, fields map[string]string, filename string, file io.Reader) error {
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return fmt.Errorf("write form field %s: %w", key, err)
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy image: %w", err)
	}
	return writer.Close()
}

// postJSON sends body and decodes the response into out when out is non-nil.
func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(path), strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w (body=%s)", err, truncateBody(raw))
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(path), nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w (body=%s)", err, truncateBody(raw))
	}
	return nil
}

// do executes the request and returns the body, mapping non-2xx statuses to
// *APIError with whatever detail string the server included.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call backend: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var detail struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(body, &detail) == nil {
			apiErr.Detail = detail.Detail
		}
		if c.log != nil {
			c.log.Error("backend request failed", "status", resp.StatusCode, "url", req.URL.String(), "body", truncateBody(body))
		}
		return nil, apiErr
	}

	return body, nil
}

// resolve joins a path (or server-relative URL like /api/image/abc.png) with
// the base URL. Absolute URLs pass through untouched.
func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return c.baseURL + path
	}
	return base.ResolveReference(ref).String()
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
