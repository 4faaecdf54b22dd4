// Package gamma provides a client for a gamma-style prediction market feed
package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/marketsift/internal/common"
	"github.com/bobmcallan/marketsift/internal/interfaces"
	"github.com/bobmcallan/marketsift/internal/models"
)

const (
	DefaultBaseURL   = "https://gamma-api.polymarket.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5 // requests per second
)

// Client implements the MarketFeedClient interface
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new gamma feed client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a feed API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gamma API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("Gamma API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// FetchMarkets retrieves one page of markets ordered by volume descending.
// A response shorter than limit signals end-of-data to the caller.
func (c *Client) FetchMarkets(ctx context.Context, limit, offset int) ([]*models.Market, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("order", "volumeNum")
	params.Set("ascending", "false")

	var raw []marketResponse
	if err := c.get(ctx, "/markets", params, &raw); err != nil {
		return nil, err
	}

	markets := make([]*models.Market, 0, len(raw))
	for i := range raw {
		markets = append(markets, raw[i].toModel())
	}

	c.logger.Debug().Int("offset", offset).Int("markets", len(markets)).Msg("Gamma markets page fetched")

	return markets, nil
}

// marketResponse mirrors the feed's market object. Numeric fields arrive as
// numbers or strings depending on the endpoint revision, and outcomePrices is
// usually a JSON array encoded inside a string.
type marketResponse struct {
	ID            string        `json:"id"`
	Question      string        `json:"question"`
	Description   string        `json:"description"`
	OutcomePrices outcomePrices `json:"outcomePrices"`
	Volume        flexFloat64   `json:"volumeNum"`
	Liquidity     flexFloat64   `json:"liquidityNum"`
	Active        bool          `json:"active"`
	Closed        bool          `json:"closed"`
	Resolved      bool          `json:"umaResolved"`
	EndDate       string        `json:"endDate"`
	Events        []struct {
		Title string `json:"title"`
	} `json:"events"`
}

func (r *marketResponse) toModel() *models.Market {
	m := &models.Market{
		ID:            r.ID,
		Question:      r.Question,
		Description:   r.Description,
		OutcomePrices: r.OutcomePrices.pair(),
		Volume:        float64(r.Volume),
		Liquidity:     float64(r.Liquidity),
		Active:        r.Active,
		Closed:        r.Closed,
		Resolved:      r.Resolved,
	}

	if len(r.Events) > 0 {
		m.EventTitle = r.Events[0].Title
	}

	if r.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, r.EndDate); err == nil {
			m.EndDate = &t
		}
	}

	return m
}

// flexFloat64 handles JSON values that may be either a number or a string.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" || s == "N/A" {
			*f = 0
			return nil
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

// outcomePrices tolerates the three shapes the feed has shipped:
// ["0.6","0.4"], [0.6,0.4], and "[\"0.6\", \"0.4\"]". Anything unparseable
// decodes to the [0,0] default rather than failing the whole page.
type outcomePrices []float64

func (p *outcomePrices) UnmarshalJSON(data []byte) error {
	var asStrings []string
	if err := json.Unmarshal(data, &asStrings); err == nil {
		*p = parsePriceStrings(asStrings)
		return nil
	}

	var asNumbers []float64
	if err := json.Unmarshal(data, &asNumbers); err == nil {
		*p = asNumbers
		return nil
	}

	var encoded string
	if err := json.Unmarshal(data, &encoded); err == nil {
		var inner []string
		if err := json.Unmarshal([]byte(encoded), &inner); err == nil {
			*p = parsePriceStrings(inner)
			return nil
		}
	}

	*p = nil
	return nil
}

func parsePriceStrings(strs []string) []float64 {
	prices := make([]float64, 0, len(strs))
	for _, s := range strs {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			v = 0
		}
		prices = append(prices, v)
	}
	return prices
}

func (p outcomePrices) pair() [2]float64 {
	var pair [2]float64
	for i := 0; i < len(p) && i < 2; i++ {
		if p[i] >= 0 {
			pair[i] = p[i]
		}
	}
	return pair
}

// Ensure Client implements MarketFeedClient
var _ interfaces.MarketFeedClient = (*Client)(nil)
