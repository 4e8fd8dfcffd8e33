// Package octoprint polls the job status of an OctoPrint instance.
package octoprint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sweeney/printer-watchdog/internal/logic"
)

// DefaultTimeout bounds a single poll so a stalled network path cannot
// hold up the periodic task.
const DefaultTimeout = 1 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

// ErrorKind classifies a failed poll.
type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindTimeout ErrorKind = "timeout"
	KindStatus  ErrorKind = "status"
	KindParse   ErrorKind = "parse"
)

// PollError reports a failed poll. The tick it belongs to carries no
// information about the printer.
type PollError struct {
	Kind       ErrorKind
	StatusCode int // set for KindStatus
	Err        error
}

func (e *PollError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("poll %s: HTTP %d", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("poll %s: %v", e.Kind, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// JobStatus is the parsed job endpoint response.
type JobStatus struct {
	State JobState
	// Text is the raw state string reported by the server.
	Text string
	// Completion is the job progress in percent, nil when unknown.
	Completion *float64
}

// JobState is re-exported so callers need not import logic for it.
type JobState = logic.JobState

// Poller fetches the current job status.
type Poller interface {
	Poll(ctx context.Context) (JobStatus, error)
}

// jobResponse mirrors the parts of GET /api/job the watchdog reads.
type jobResponse struct {
	State    *string `json:"state"`
	Progress struct {
		Completion *float64 `json:"completion"`
	} `json:"progress"`
}

// Client polls GET {baseURL}/api/job.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
}

// NewClient creates a Client. A zero timeout selects DefaultTimeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
	}
}

// URL returns the job endpoint.
func (c *Client) URL() string {
	return c.baseURL + "/api/job"
}

// Poll performs one bounded GET of the job endpoint. All failures are
// returned as *PollError.
func (c *Client) Poll(ctx context.Context) (JobStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(), nil)
	if err != nil {
		return JobStatus{}, &PollError{Kind: KindNetwork, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return JobStatus{}, classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return JobStatus{}, &PollError{Kind: KindStatus, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return JobStatus{}, classify(ctx, err)
	}
	return Parse(body)
}

// Parse decodes a job endpoint body. A missing or unknown state is
// reported as not printing.
func Parse(body []byte) (JobStatus, error) {
	var jr jobResponse
	if err := json.Unmarshal(body, &jr); err != nil {
		return JobStatus{}, &PollError{Kind: KindParse, Err: err}
	}

	st := JobStatus{
		State:      logic.JobOther,
		Completion: jr.Progress.Completion,
	}
	if jr.State != nil {
		st.Text = *jr.State
		st.State = logic.ParseJobState(*jr.State)
	}
	return st, nil
}

func classify(ctx context.Context, err error) *PollError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &PollError{Kind: KindTimeout, Err: err}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &PollError{Kind: KindTimeout, Err: err}
	}
	return &PollError{Kind: KindNetwork, Err: err}
}
