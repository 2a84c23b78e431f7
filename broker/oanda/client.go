// Package oanda is an execution venue backed by the OANDA v20 REST API.
package oanda

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/market"
)

const (
	// PracticeURL is the URL for OANDA's practice/demo environment
	PracticeURL = "https://api-fxpractice.oanda.com"
	// LiveURL is the URL for OANDA's live trading environment
	LiveURL = "https://api-fxtrade.oanda.com"
)

// BaseURL maps an environment name to its REST endpoint.
func BaseURL(env string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "practice", "demo", "":
		return PracticeURL, nil
	case "live":
		return LiveURL, nil
	default:
		return "", fmt.Errorf("unknown OANDA env %q (want practice|live)", env)
	}
}

// Client trades a single instrument on a single account.
type Client struct {
	baseURL    string
	token      string
	accountID  string
	instrument string
	meta       market.InstrumentMeta
	httpClient *http.Client
	log        *slog.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a new OANDA API client
func NewClient(token, accountID, instrument string, practice bool, opts ...Option) (*Client, error) {
	meta, err := market.LookupInstrument(instrument)
	if err != nil {
		return nil, err
	}

	baseURL := LiveURL
	if practice {
		baseURL = PracticeURL
	}

	c := &Client{
		baseURL:    baseURL,
		token:      token,
		accountID:  accountID,
		instrument: meta.Name,
		meta:       meta,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) Instrument() string { return c.instrument }

// Point is the smallest price step of the traded instrument.
func (c *Client) Point() float64 { return c.meta.Point() }

var _ broker.Venue = (*Client)(nil)

// apiError is the error body OANDA returns on 4xx/5xx.
type apiError struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	Reject       *struct {
		RejectReason string `json:"rejectReason"`
	} `json:"orderRejectTransaction,omitempty"`
}

// do sends a JSON request and decodes a JSON answer into out.
// Failures come back as *broker.OrderError classified by the error taxonomy.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		rd = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept-Datetime-Format", "RFC3339")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &broker.OrderError{Op: op, Err: fmt.Errorf("%w: %v", broker.ErrConnectivity, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &broker.OrderError{Op: op, Err: fmt.Errorf("%w: read body: %v", broker.ErrConnectivity, err)}
	}

	if resp.StatusCode >= 300 {
		return classify(op, resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func classify(op string, status int, data []byte) error {
	var ae apiError
	_ = json.Unmarshal(data, &ae)

	code := ae.ErrorCode
	if ae.Reject != nil && ae.Reject.RejectReason != "" {
		code = ae.Reject.RejectReason
	}
	msg := ae.ErrorMessage
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	if code == "" {
		code = fmt.Sprintf("HTTP_%d", status)
	}

	var class error
	switch {
	case status >= 500:
		class = broker.ErrConnectivity
	case status == http.StatusTooManyRequests, transientReasons[code]:
		class = broker.ErrTransient
	default:
		class = broker.ErrRejected
	}
	return &broker.OrderError{Op: op, Code: code, Err: fmt.Errorf("%w: %s", class, msg)}
}

// transientReasons are venue answers meaning "price moved, try again".
var transientReasons = map[string]bool{
	"BOUNDS_VIOLATION":       true,
	"INSUFFICIENT_LIQUIDITY": true,
	"PRICE_BOUND_VIOLATION":  true,
}

func parsePrice(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

func mustPrice(s string) float64 {
	f, _ := parsePrice(s)
	return f
}

func (c *Client) formatPrice(p float64) string {
	return decimal.NewFromFloat(p).StringFixed(int32(c.meta.DisplayPrecision))
}

func formatUnits(u float64) string {
	return decimal.NewFromFloat(u).Round(0).String()
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %s: %w", s, err)
	}
	return t.UTC(), nil
}

var errNoPrice = errors.New("no price in response")
