package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	httpTimeoutEnvKey  = "SITREP_HTTP_TIMEOUT"
	adminTokenEnvKey   = "SITREP_ADMIN_TOKEN"
)

// ImageFile is the image half of a submission sent by the client.
type ImageFile struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// ListQuery narrows a report listing.
type ListQuery struct {
	Query    string
	Category string
	Status   string
	Limit    int
	Offset   int
}

func (q ListQuery) values() url.Values {
	values := url.Values{}
	if q.Query != "" {
		values.Set("q", q.Query)
	}
	if q.Category != "" {
		values.Set("category", q.Category)
	}
	if q.Status != "" {
		values.Set("status", q.Status)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		values.Set("offset", strconv.Itoa(q.Offset))
	}
	return values
}

// Client is a simple HTTP client for the sitrep API.
type Client struct {
	baseURL    string
	http       *http.Client
	adminToken string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: httpTimeoutFromEnv()},
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	return nil
}

func (c *Client) GetInfo(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	_, err := c.do(ctx, http.MethodGet, "/api/info", nil, nil, &resp)
	return resp, err
}

// Submit uploads one report with its image as multipart/form-data.
func (c *Client) Submit(ctx context.Context, req SubmitRequest, image ImageFile) (SubmitResult, error) {
	var resp SubmitResult

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fields := [][2]string{
		{"reporter_contact", req.ReporterContact},
		{"category", req.Category},
		{"description", req.Description},
		{"location", req.Location},
	}
	for _, field := range fields {
		if field[1] == "" {
			continue
		}
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return resp, err
		}
	}
	if image.Content != nil {
		contentType := image.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, image.Filename))
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return resp, err
		}
		if _, err := io.Copy(part, image.Content); err != nil {
			return resp, fmt.Errorf("read image: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return resp, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/reports", body)
	if err != nil {
		return resp, err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	_, err = c.send(httpReq, &resp)
	return resp, err
}

func (c *Client) ListReports(ctx context.Context, query ListQuery) ([]Report, error) {
	var resp []Report
	_, err := c.do(ctx, http.MethodGet, "/api/reports", query.values(), nil, &resp)
	return resp, err
}

func (c *Client) GetReport(ctx context.Context, id int64) (Report, error) {
	var resp Report
	_, err := c.do(ctx, http.MethodGet, reportPath(id), nil, nil, &resp)
	return resp, err
}

func (c *Client) UpdateStatus(ctx context.Context, id int64, status string) (Report, error) {
	var resp Report
	_, err := c.do(ctx, http.MethodPatch, reportPath(id)+"/status", nil, StatusUpdateRequest{Status: status}, &resp)
	return resp, err
}

// DeleteReport removes a report and its image and returns the server message.
func (c *Client) DeleteReport(ctx context.Context, id int64) (string, error) {
	return c.do(ctx, http.MethodDelete, reportPath(id), nil, nil, nil)
}

// SweepBlobs runs the orphan image sweeper. Deleting requires confirm.
func (c *Client) SweepBlobs(ctx context.Context, req BlobSweepRequest, confirm bool) (BlobSweepResponse, error) {
	var resp BlobSweepResponse
	payload, err := json.Marshal(req)
	if err != nil {
		return resp, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/admin/blobs/sweep", bytes.NewReader(payload))
	if err != nil {
		return resp, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if confirm {
		httpReq.Header.Set("X-Confirm", "true")
	}
	_, err = c.send(httpReq, &resp)
	return resp, err
}

func reportPath(id int64) string {
	return "/api/reports/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) (string, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return "", err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

// send executes req and unwraps the response envelope into out.
func (c *Client) send(req *http.Request, out any) (string, error) {
	c.setAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", decodeError(resp)
	}

	envelope := Response{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		if err == io.EOF {
			return "", nil
		}
		return "", err
	}
	return envelope.Message, nil
}

func decodeError(resp *http.Response) error {
	var envelope Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && (envelope.Message != "" || envelope.Code != "") {
		return &APIError{
			Status:    resp.StatusCode,
			Code:      envelope.Code,
			ErrorCode: envelope.ErrorCode,
			Message:   envelope.Message,
			Fields:    envelope.Errors,
		}
	}
	return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("api error: %s", resp.Status)}
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.adminToken == "" || req == nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.adminToken)
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
