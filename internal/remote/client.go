package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Job is a remote transcription job as seen by this agent.
type Job struct {
	ID       string
	Status   JobStatus
	Progress float64 // -1 when the server reports none
}

// SubmitOpts are per-submission options.
type SubmitOpts struct {
	Title    string
	Language string

	// Progress, if set, receives the fraction of the request body sent so
	// far, in [0,1]. Calls are monotonically non-decreasing.
	Progress func(fraction float64)
}

// Client talks to the remote transcription service's job endpoints.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a client for the service at baseURL. The timeout covers
// the whole submit request, so tune it for large uploads.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type jobRecord struct {
	ID                 string   `json:"id"`
	Status             string   `json:"status"`
	ProcessingProgress *float64 `json:"processing_progress"`
}

func (r *jobRecord) toJob() *Job {
	j := &Job{
		ID:       r.ID,
		Status:   ParseJobStatus(r.Status),
		Progress: -1,
	}
	if r.ProcessingProgress != nil {
		j.Progress = *r.ProcessingProgress
	}
	return j
}

// SubmitJob uploads the audio file as multipart/form-data and returns the
// created job. Optional title/language fields are only sent when non-empty.
func (c *Client) SubmitJob(ctx context.Context, audioPath string, opts SubmitOpts) (*Job, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}

	if opts.Title != "" {
		w.WriteField("title", opts.Title)
	}
	if opts.Language != "" {
		w.WriteField("language", opts.Language)
	}
	w.Close()

	body := &progressReader{r: &buf, total: int64(buf.Len()), fn: opts.Progress}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/lectures/upload", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit job: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var rec jobRecord
	if err := json.Unmarshal(respBody, &rec); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("submit response missing job id")
	}
	return rec.toJob(), nil
}

// GetJobStatus fetches the current state of a remote job.
func (c *Client) GetJobStatus(ctx context.Context, id string) (*Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/lectures/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("job status: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var rec jobRecord
	if err := json.Unmarshal(respBody, &rec); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return rec.toJob(), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// StatusError is a non-2xx HTTP response from the remote service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote service error (status %d): %s", e.Code, e.Body)
}

// IsTransient reports whether an error is worth retrying automatically:
// timeouts, connection resets/refusals, and gateway-class server errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsTimeout(err) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusBadGateway ||
			se.Code == http.StatusServiceUnavailable ||
			se.Code == http.StatusGatewayTimeout
	}
	return false
}

// IsTimeout reports whether an error looks like a timeout rather than a
// generic connection failure.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// progressReader counts bytes consumed by the transport and reports the
// fraction sent. Fractions never exceed 1.0.
type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	fn    func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.fn != nil && p.total > 0 && n > 0 {
		f := float64(p.read) / float64(p.total)
		if f > 1 {
			f = 1
		}
		p.fn(f)
	}
	return n, err
}
