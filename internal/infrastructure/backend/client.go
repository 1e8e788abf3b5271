// Package backend is the typed HTTP client for the upstream CRM REST API.
// It maps transport and status failures into the console's error taxonomy
// and normalizes every listing shape into canonical lead records.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/apperrors"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/performance"
	"github.com/google/go-querystring/query"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 8 << 20

// Client talks to the CRM backend.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewClient creates a client for baseURL. timeout bounds every call that
// does not carry a tighter context deadline.
func NewClient(baseURL string, timeout time.Duration, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// envelope is the status/message wrapper most endpoints share.
type envelope struct {
	Status  flexString `json:"status"`
	Message string     `json:"message"`
	Error   string     `json:"error"`
}

func (e envelope) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// failure messages per HTTP status for one call site
type statusMessages struct {
	unauthorized string
	notFound     string
	fallback     string
}

var defaultMessages = statusMessages{
	unauthorized: "Unauthorized: Invalid or expired token",
	notFound:     "Not found",
	fallback:     "Request failed",
}

type request struct {
	op         string
	method     string
	path       string
	query      any
	body       any
	credential string
	messages   statusMessages
}

// do performs req and returns the raw body of a 2xx response.
func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	start := time.Now()
	marker := c.perfTracker.StartOperation("backend:"+req.op, "")
	defer marker.Complete()

	target := c.baseURL + req.path
	if req.query != nil {
		values, err := query.Values(req.query)
		if err != nil {
			return nil, fmt.Errorf("failed to encode query: %w", err)
		}
		if encoded := values.Encode(); encoded != "" {
			target += "?" + encoded
		}
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.credential)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		marker.SetError(err)
		c.logger.Backend().Warn("Backend request failed", "operation", req.op, "path", req.path, "error", err.Error(), "duration", time.Since(start))
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		marker.SetError(err)
		return nil, transportError(err)
	}

	marker.AddMetadata("status", resp.StatusCode)
	c.logger.Backend().Debug("Backend request completed", "operation", req.op, "path", req.path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}

	var env envelope
	_ = json.Unmarshal(raw, &env)
	appErr := statusError(resp.StatusCode, env.text(), req.messages)
	marker.SetError(appErr)
	c.logger.Backend().Warn("Backend rejected request", "operation", req.op, "path", req.path, "status", resp.StatusCode, "code", appErr.Code)
	return nil, appErr
}

// transportError classifies failures that never produced a response.
func transportError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr), errors.Is(err, io.ErrUnexpectedEOF):
		return apperrors.NetworkUnavailable(err)
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(apperrors.KindNetwork, apperrors.CodeNetworkUnavailable, "Request cancelled", err)
	default:
		return apperrors.NetworkUnavailable(err)
	}
}

// statusError maps a non-2xx status to the error taxonomy.
func statusError(status int, backendMsg string, msgs statusMessages) *apperrors.Error {
	pick := func(fallback string) string {
		if backendMsg != "" {
			return backendMsg
		}
		return fallback
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.New(apperrors.KindAuth, apperrors.CodeInvalidCredentials, msgs.unauthorized)
	case status == http.StatusNotFound:
		return apperrors.New(apperrors.KindNotFound, apperrors.CodeNotFound, pick(msgs.notFound))
	case status >= 500:
		return apperrors.New(apperrors.KindServer, apperrors.CodeServerFailure, apperrors.MsgServer)
	default:
		return apperrors.BackendRejected(pick(msgs.fallback))
	}
}

func decode(raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.Wrap(apperrors.KindServer, apperrors.CodeServerFailure, "Unexpected response from server", err)
	}
	return nil
}
