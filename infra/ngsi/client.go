package ngsi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kilianp07/aqforecast/core/broker"
	"github.com/kilianp07/aqforecast/infra/logger"
)

const entitiesPath = "/ngsi-ld/v1/entities"

// Config configures the NGSI-LD client.
type Config struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
	// FailureThreshold is the number of consecutive unreachable or 5xx
	// responses that open the breaker.
	FailureThreshold uint32 `json:"failure_threshold"`
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration `json:"open_timeout"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = 30 * time.Second
	}
}

// Client talks to an NGSI-LD context broker. It implements broker.Client.
type Client struct {
	base string
	http *http.Client
	cb   *gobreaker.CircuitBreaker
	log  logger.Logger
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("status %d", e.code)
	}
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

// NewClient creates a Client for the broker at cfg.URL.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	cfg.SetDefaults()
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid broker url %q", cfg.URL)
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	c := &Client{
		base: strings.TrimSuffix(cfg.URL, "/"),
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ngsi-broker",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
		IsSuccessful: isHealthy,
	})
	return c, nil
}

// isHealthy decides what counts against the breaker: only transport errors
// and server-side failures. Conflicts and client errors mean the broker is up.
func isHealthy(err error) bool {
	if err == nil || errors.Is(err, broker.ErrConflict) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code < 500
	}
	return false
}

// Upsert creates the entity and falls back to a single attribute patch
// when the broker reports that it already exists.
func (c *Client) Upsert(ctx context.Context, e broker.Entity) (broker.Outcome, error) {
	id := e.ID()
	if id == "" {
		return broker.OutcomeFailed, fmt.Errorf("%w: entity has no id", broker.ErrBrokerRejected)
	}
	err := c.send(ctx, http.MethodPost, c.base+entitiesPath, "application/ld+json", e)
	if err == nil {
		return broker.OutcomeCreated, nil
	}
	if !errors.Is(err, broker.ErrConflict) {
		return broker.OutcomeFailed, err
	}

	c.log.Debugf("entity %s exists, patching attributes", id)
	patchURL := c.base + entitiesPath + "/" + url.PathEscape(id) + "/attrs"
	if err := c.send(ctx, http.MethodPatch, patchURL, "application/json", broker.MutableFields(e)); err != nil {
		if errors.Is(err, broker.ErrConflict) {
			// a conflict on the patch itself is a rejection, not another retry
			err = fmt.Errorf("%w: %v", broker.ErrBrokerRejected, err)
		}
		return broker.OutcomeFailed, fmt.Errorf("patch %s: %w", id, err)
	}
	return broker.OutcomeUpdated, nil
}

func (c *Client) send(ctx context.Context, method, target, contentType string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode entity: %w", err)
	}
	_, err = c.cb.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, method, target, contentType, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", broker.ErrBrokerUnreachable, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, target, contentType string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", broker.ErrBrokerUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %w", broker.ErrConflict, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))})
	default:
		return fmt.Errorf("%w: %w", broker.ErrBrokerRejected, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))})
	}
}
