package clients

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

	"github.com/rs/zerolog"

	"github.com/alejandrobarreracorrea/cloudscan/pkg/engine"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/executor"
)

// Config holds the settings baked into every client the factory creates.
type Config struct {
	// EndpointTemplate builds the per-task base URL. {namespace} and
	// {region} are substituted, e.g.
	// "https://{namespace}.{region}.api.internal".
	EndpointTemplate string

	// TargetHeader carries the operation name on each request.
	TargetHeader string

	// ConnectTimeout bounds dialing and TLS setup.
	ConnectTimeout time.Duration

	// ReadTimeout bounds the whole request including the response body.
	ReadTimeout time.Duration

	// Headers are added to every request (authentication and the like).
	Headers map[string]string
}

func (c Config) withDefaults() Config {
	if c.TargetHeader == "" {
		c.TargetHeader = "X-Api-Target"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	return c
}

// HTTPClientFactory creates per-(namespace, region) clients sharing one
// transport.
type HTTPClientFactory struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

// NewHTTPClientFactory creates a client factory.
func NewHTTPClientFactory(cfg Config, log zerolog.Logger) (*HTTPClientFactory, error) {
	cfg = cfg.withDefaults()
	if cfg.EndpointTemplate == "" {
		return nil, fmt.Errorf("endpoint template is required")
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConnsPerHost:   8,
	}

	return &HTTPClientFactory{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.ReadTimeout,
		},
		log: log.With().Str("component", "clients").Logger(),
	}, nil
}

// NewClient implements executor.ClientFactory.
func (f *HTTPClientFactory) NewClient(namespace, region string) (executor.Client, error) {
	endpoint := strings.NewReplacer(
		"{namespace}", namespace,
		"{region}", region,
	).Replace(f.cfg.EndpointTemplate)

	return &httpClient{
		endpoint:  endpoint,
		namespace: namespace,
		region:    region,
		cfg:       f.cfg,
		http:      f.http,
		log:       f.log.With().Str("namespace", namespace).Str("region", region).Logger(),
	}, nil
}

type httpClient struct {
	endpoint  string
	namespace string
	region    string
	cfg       Config
	http      *http.Client
	log       zerolog.Logger
}

// apiError is the error shape endpoints return alongside a non-2xx status.
type apiError struct {
	Type    string `json:"__type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e apiError) code() string {
	code := e.Type
	if code == "" {
		code = e.Code
	}
	// Some endpoints prefix the code with its namespace shape.
	if i := strings.IndexByte(code, '#'); i >= 0 {
		code = code[i+1:]
	}
	return code
}

// Invoke implements executor.Client.
func (c *httpClient) Invoke(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, engine.NewUnexpectedError("encoding request", err).WithOperation(operation)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, engine.NewUnexpectedError("building request", err).WithOperation(operation)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(c.cfg.TargetHeader, operation)
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(operation, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.statusError(operation, resp.StatusCode, data)
	}

	out := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, engine.NewUnexpectedError("decoding response", err).
				WithEndpoint(c.namespace, c.region).
				WithOperation(operation)
		}
	}
	return out, nil
}

// Paginator implements executor.Client. Every operation gets a token-driven
// paginator; operations whose responses carry no continuation token simply
// stop after the first page.
func (c *httpClient) Paginator(operation string) (executor.Paginator, bool) {
	return &tokenPaginator{client: c, operation: operation}, true
}

func (c *httpClient) transportError(operation string, err error) error {
	msg := "calling endpoint"
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		msg = "endpoint timed out"
	}
	return engine.NewConnectivityError(msg, err).
		WithCode("EndpointNotAvailable").
		WithEndpoint(c.namespace, c.region).
		WithOperation(operation)
}

func (c *httpClient) statusError(operation string, status int, body []byte) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)
	code := ae.code()
	message := ae.Message
	if message == "" {
		message = fmt.Sprintf("endpoint returned status %d", status)
	}

	var opErr *engine.OpError
	switch {
	case status == http.StatusTooManyRequests || throttlingCode(code):
		opErr = engine.NewThrottledError(message, nil)
		if code == "" {
			code = "Throttling"
		}
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		opErr = engine.NewPermissionError(message, nil)
		if code == "" {
			code = "AccessDenied"
		}
	case code == "UnknownOperationException" || code == "OperationNotFound" || code == "InvalidAction":
		opErr = engine.NewAbsentError(message, nil)
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		opErr = engine.NewConnectivityError(message, nil)
		if code == "" {
			code = "EndpointNotAvailable"
		}
	default:
		opErr = engine.NewUnexpectedError(message, nil)
		if code == "" {
			code = fmt.Sprintf("HTTP%d", status)
		}
	}

	return opErr.WithCode(code).
		WithEndpoint(c.namespace, c.region).
		WithOperation(operation)
}

func throttlingCode(code string) bool {
	switch code {
	case "Throttling", "ThrottlingException", "TooManyRequestsException",
		"RequestLimitExceeded", "SlowDown":
		return true
	}
	return false
}

// continuationFields maps response token fields to the request parameter
// that carries them on the next call.
var continuationFields = [...]struct {
	response string
	request  string
}{
	{"NextToken", "NextToken"},
	{"NextMarker", "Marker"},
	{"NextPageToken", "PageToken"},
	{"NextContinuationToken", "ContinuationToken"},
	{"Marker", "Marker"},
}

// tokenPaginator re-issues the operation following continuation tokens. The
// executor bounds the page count; the paginator only reports whether another
// page can be fetched.
type tokenPaginator struct {
	client    *httpClient
	operation string
	started   bool
	token     string
	tokenParm string
}

func (p *tokenPaginator) HasMorePages() bool {
	return !p.started || p.token != ""
}

func (p *tokenPaginator) NextPage(ctx context.Context) (map[string]any, error) {
	var params map[string]any
	if p.started {
		if p.token == "" {
			return nil, fmt.Errorf("no more pages")
		}
		params = map[string]any{p.tokenParm: p.token}
	}

	page, err := p.client.Invoke(ctx, p.operation, params)
	if err != nil {
		return nil, err
	}
	p.started = true

	p.token, p.tokenParm = "", ""
	for _, f := range continuationFields {
		if v, ok := page[f.response].(string); ok && v != "" {
			p.token, p.tokenParm = v, f.request
			break
		}
	}
	return page, nil
}
