// Package remote answers history queries by proxying them to a
// peer history server over HTTP and unwrapping its response
// envelope.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/udit-pandey/kairon/internal/history"
	"github.com/udit-pandey/kairon/internal/store"
)

const defaultTimeout = 30 * time.Second

// EndpointError reports a peer that returned a failure envelope or
// was unreachable. Message carries the peer's own diagnostic so it
// is not lost across the hop.
type EndpointError struct {
	Message string
	Err     error
}

func (e *EndpointError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote endpoint: %s: %v", e.Message, e.Err)
	}
	return "remote endpoint: " + e.Message
}

func (e *EndpointError) Unwrap() error { return e.Err }

// Client issues history queries against a peer instance.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the peer at baseURL. The token may
// be empty; the authorization header is sent either way, matching
// the peer protocol.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// envelope is the peer protocol's uniform response shape.
type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	ErrorCode int             `json:"error_code"`
}

// get issues the windowed GET and decodes the envelope's data
// payload into out.
func (c *Client) get(
	ctx context.Context, path string, w history.Window, out any,
) error {
	u := c.baseURL + path + "?month=" + strconv.Itoa(int(w))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &EndpointError{Message: "building request", Err: err}
	}
	req.Header.Set("Authorization", "bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &EndpointError{Message: "peer unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &EndpointError{Message: "reading peer response", Err: err}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &EndpointError{
			Message: fmt.Sprintf("malformed peer response [%d]", resp.StatusCode),
			Err:     err,
		}
	}
	if !env.Success {
		return &EndpointError{Message: env.Message}
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &EndpointError{Message: "malformed peer payload", Err: err}
		}
	}
	return nil
}

// ListUsers proxies the user list query.
func (c *Client) ListUsers(
	ctx context.Context, w history.Window,
) ([]string, error) {
	var data struct {
		Users []string `json:"users"`
	}
	if err := c.get(ctx, "/users", w, &data); err != nil {
		return nil, err
	}
	if data.Users == nil {
		data.Users = []string{}
	}
	return data.Users, nil
}

// UserHistory proxies one sender's event history query.
func (c *Client) UserHistory(
	ctx context.Context, w history.Window, sender string,
) ([]store.Event, error) {
	if strings.TrimSpace(sender) == "" {
		return nil, history.ErrInvalidSender
	}
	var data struct {
		History []store.Event `json:"history"`
	}
	path := "/users/" + url.PathEscape(sender)
	if err := c.get(ctx, path, w, &data); err != nil {
		return nil, err
	}
	if data.History == nil {
		data.History = []store.Event{}
	}
	return data.History, nil
}

// VisitorFallback proxies the fallback metric query.
func (c *Client) VisitorFallback(
	ctx context.Context, w history.Window,
) (history.FallbackMetric, error) {
	var metric history.FallbackMetric
	if err := c.get(ctx, "/metrics/fallback", w, &metric); err != nil {
		return history.FallbackMetric{}, err
	}
	return metric, nil
}

// ConversationSteps proxies the step metric query.
func (c *Client) ConversationSteps(
	ctx context.Context, w history.Window,
) ([]history.StepMetric, error) {
	var data struct {
		ConversationSteps []history.StepMetric `json:"conversation_steps"`
	}
	if err := c.get(ctx, "/metrics/conversation/steps", w, &data); err != nil {
		return nil, err
	}
	if data.ConversationSteps == nil {
		data.ConversationSteps = []history.StepMetric{}
	}
	return data.ConversationSteps, nil
}

// ConversationTime proxies the time metric query.
func (c *Client) ConversationTime(
	ctx context.Context, w history.Window,
) ([]history.TimeMetric, error) {
	var data struct {
		ConversationTime []history.TimeMetric `json:"conversation_time"`
	}
	if err := c.get(ctx, "/metrics/conversation/time", w, &data); err != nil {
		return nil, err
	}
	if data.ConversationTime == nil {
		data.ConversationTime = []history.TimeMetric{}
	}
	return data.ConversationTime, nil
}

// UserMetrics proxies the combined per-user metric query.
func (c *Client) UserMetrics(
	ctx context.Context, w history.Window,
) ([]history.UserMetric, error) {
	var data struct {
		Users []history.UserMetric `json:"users"`
	}
	if err := c.get(ctx, "/metrics/users", w, &data); err != nil {
		return nil, err
	}
	if data.Users == nil {
		data.Users = []history.UserMetric{}
	}
	return data.Users, nil
}
