package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nowplaying/internal/models"
)

// Kind classifies fetch failures. Transport means no payload was obtained at
// all; Protocol means the exchange happened but violated expectations (the
// payload, if any, is still returned alongside the error).
type Kind int

const (
	KindTransport Kind = iota
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	}
	return "unknown"
}

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e == nil || e.Err == nil {
		return "fetch error"
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func transportErr(err error) *Error { return &Error{Kind: KindTransport, Err: err} }
func protocolErr(err error) *Error { return &Error{Kind: KindProtocol, Err: err} }

// Request is a snapshot of the connection fields a single fetch needs. The
// caller takes the snapshot at tick start so config edits never alter an
// in-flight poll.
type Request struct {
	URL            string
	ConnectionType string
	Headers        map[string]string
	// SubscribeFrame, when non-empty, is written to a ws_json socket before
	// the first read.
	SubscribeFrame string
}

// Result carries the raw payload plus transport metadata. A non-2xx Status is
// not a hard failure; the caller decides what to do with it.
type Result struct {
	Status      int
	ContentType string
	Body        []byte
}

// Doer is what the poll worker and test service depend on; tests substitute
// their own implementation.
type Doer interface {
	Do(ctx context.Context, req Request, timeout time.Duration) (Result, error)
}

// Client performs one network exchange per call. No retries beyond the
// documented default-header browser fallback; retry policy lives with the
// scheduler's next tick.
type Client struct {
	HTTP      *http.Client
	UserAgent string
}

func NewClient(userAgent string) *Client {
	return &Client{
		HTTP:      &http.Client{},
		UserAgent: userAgent,
	}
}

func (c *Client) Do(ctx context.Context, req Request, timeout time.Duration) (Result, error) {
	if c == nil {
		return Result{}, transportErr(fmt.Errorf("fetch client is nil"))
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if strings.EqualFold(req.ConnectionType, models.TypeWSJSON) {
		return c.fetchWS(ctx, req)
	}
	return c.fetchHTTP(ctx, req)
}

func (c *Client) fetchHTTP(ctx context.Context, req Request) (Result, error) {
	headers := req.Headers
	usedDefaults := false
	if len(headers) == 0 {
		headers = DefaultHeaders(req.ConnectionType)
		usedDefaults = true
	}

	res, err := c.send(ctx, req.URL, headers)
	if err != nil {
		if usedDefaults {
			// Some feeds reject non-browser clients outright; try once with
			// browser-like headers before giving up.
			if retry, retryErr := c.send(ctx, req.URL, BrowserHeaders(req.ConnectionType, req.URL)); retryErr == nil {
				return retry, nil
			}
		}
		return Result{}, transportErr(err)
	}

	if usedDefaults && (res.Status < 200 || res.Status >= 300) {
		if retry, retryErr := c.send(ctx, req.URL, BrowserHeaders(req.ConnectionType, req.URL)); retryErr == nil {
			res = retry
		}
	}
	return res, nil
}

func (c *Client) send(ctx context.Context, url string, headers map[string]string) (Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, err
	}
	if c.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
