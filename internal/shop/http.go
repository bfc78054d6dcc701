package shop

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL   = "https://www.ozon.ru"
	DefaultTimeout   = 5 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36"

	apiPrefix = "/api/composer-api.bx/_action"
)

var sessionUIDRegex = regexp.MustCompile(`session_uid=([a-f0-9-]+)`)

// ClientOptions configures an HTTPClient.
type ClientOptions struct {
	BaseURL   string        // Defaults to DefaultBaseURL
	Cookies   string        // Raw Cookie header carrying the account session
	Timeout   time.Duration // Per request; defaults to DefaultTimeout
	UserAgent string
}

// HTTPClient implements Client over resty.
type HTTPClient struct {
	http *resty.Client

	mu      sync.Mutex
	referer string // Last URL that returned a response
}

// NewHTTPClient builds a client bound to one account session.
func NewHTTPClient(opts ClientOptions) (*HTTPClient, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetCookieJar(jar)
	client.SetTimeout(opts.Timeout)
	client.SetHeader("user-agent", opts.UserAgent)
	if opts.Cookies != "" {
		client.SetHeader("cookie", opts.Cookies)
	}

	c := &HTTPClient{http: client}
	client.OnBeforeRequest(c.setReferer)
	client.OnAfterResponse(c.trackReferer)
	instrumentResty(client)

	return c, nil
}

// SetProxy routes subsequent requests through proxy. A nil proxy restores
// direct connections.
func (c *HTTPClient) SetProxy(proxy *url.URL) {
	if proxy == nil {
		c.http.RemoveProxy()
		return
	}
	c.http.SetProxy(proxy.String())
}

func (c *HTTPClient) setReferer(_ *resty.Client, req *resty.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.referer != "" && req.Header.Get("referer") == "" {
		req.SetHeader("referer", c.referer)
	}
	return nil
}

func (c *HTTPClient) trackReferer(_ *resty.Client, res *resty.Response) error {
	if res.RawResponse == nil || res.RawResponse.Request == nil {
		return nil
	}
	c.mu.Lock()
	c.referer = res.RawResponse.Request.URL.String()
	c.mu.Unlock()
	return nil
}

func (c *HTTPClient) AddToCart(ctx context.Context, productIDs []uint64) error {
	const op = "addToCart"

	items := make([]cartItem, 0, len(productIDs))
	for _, id := range productIDs {
		items = append(items, cartItem{ID: id, Quantity: 1})
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(items).
		Post(apiPrefix + "/addToCart")
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	if !res.IsSuccess() {
		return &BadStatusError{Op: op, Status: res.StatusCode()}
	}

	var body map[string]any
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		return &MalformedResponseError{Op: op, Err: err}
	}
	if ok, _ := body["success"].(bool); !ok {
		return &BusinessRejectionError{Op: op, Reason: string(res.Body())}
	}

	return nil
}

func (c *HTTPClient) SessionUID(ctx context.Context) (string, error) {
	const op = "sessionUid"

	res, err := c.http.R().
		SetContext(ctx).
		Get("/cart")
	if err != nil {
		return "", &NetworkError{Op: op, Err: err}
	}
	if !res.IsSuccess() {
		return "", &BadStatusError{Op: op, Status: res.StatusCode()}
	}

	groups := sessionUIDRegex.FindSubmatch(res.Body())
	if len(groups) < 2 {
		return "", fmt.Errorf("%s: session_uid: %w", op, ErrNotFound)
	}

	return string(groups[1]), nil
}

func (c *HTTPClient) GoToCheckout(ctx context.Context, sessionUID string) error {
	const op = "goToCheckout"

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"start":       "0",
			"activeTab":   "0",
			"session_uid": sessionUID,
			"snp":         "false",
		}).
		Get("/gocheckout")
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	if !res.IsSuccess() {
		return &BadStatusError{Op: op, Status: res.StatusCode()}
	}

	return nil
}

func (c *HTTPClient) CartTotalPrice(ctx context.Context) (uint64, error) {
	const op = "summary"

	res, err := c.http.R().
		SetContext(ctx).
		Get(apiPrefix + "/summary")
	if err != nil {
		return 0, &NetworkError{Op: op, Err: err}
	}
	if !res.IsSuccess() {
		return 0, &BadStatusError{Op: op, Status: res.StatusCode()}
	}

	var items []productSummary
	if err := json.Unmarshal(res.Body(), &items); err != nil {
		return 0, &MalformedResponseError{Op: op, Err: err}
	}

	var total uint64
	for _, item := range items {
		total += item.TotalPrice
	}

	return total, nil
}

func (c *HTTPClient) CreateOrder(ctx context.Context) (json.RawMessage, error) {
	const op = "createOrder"

	res, err := c.http.R().
		SetContext(ctx).
		Get(apiPrefix + "/v2/createOrder")
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	if !res.IsSuccess() {
		// 403 bodies are anti-bot challenge pages, not diagnostics.
		if res.StatusCode() == http.StatusForbidden {
			return nil, &BadStatusError{Op: op, Status: res.StatusCode()}
		}
		return nil, &BadStatusError{Op: op, Status: res.StatusCode(), Body: res.String()}
	}

	var body map[string]any
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		return nil, &MalformedResponseError{Op: op, Err: err}
	}
	if reason, _ := body["error"].(string); reason != "" {
		return nil, &BusinessRejectionError{Op: op, Reason: reason}
	}

	return json.RawMessage(res.Body()), nil
}
