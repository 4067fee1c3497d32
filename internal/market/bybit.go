package market

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultBybitBaseURL - публичный REST Bybit v5
	DefaultBybitBaseURL = "https://api.bybit.com"

	bybitTickersPath = "/v5/market/tickers"
	maxResponseBytes = 1 << 20
)

// BybitConfig - параметры клиента Bybit
type BybitConfig struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond ограничивает публичные запросы (default: 5)
	RequestsPerSecond float64
	// HTTPClient можно подменить в тестах
	HTTPClient *http.Client
}

// Bybit - публичные котировки спотового рынка Bybit
type Bybit struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewBybit создаёт клиент Bybit
func NewBybit(cfg BybitConfig) *Bybit {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBybitBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	client := cfg.HTTPClient
	if client == nil {
		httpCfg := DefaultHTTPClientConfig()
		if cfg.Timeout > 0 {
			httpCfg.TotalTimeout = cfg.Timeout
		}
		client = NewHTTPClient(httpCfg)
	}

	return &Bybit{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

type bybitEnvelope struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []bybitTicker `json:"list"`
	} `json:"result"`
	Time int64 `json:"time"`
}

type bybitTicker struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
	Bid1Price string `json:"bid1Price"`
	Ask1Price string `json:"ask1Price"`
}

// GetTicker - GET /v5/market/tickers?category=spot&symbol=
func (b *Bybit) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)

	body, err := b.doRequest(ctx, bybitTickersPath, params)
	if err != nil {
		return nil, err
	}

	var env bybitEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &APIError{Venue: "bybit", Message: "malformed response", Original: err}
	}
	if env.RetCode != 0 {
		return nil, &APIError{
			Venue:      "bybit",
			Code:       strconv.Itoa(env.RetCode),
			Message:    env.RetMsg,
			StatusCode: http.StatusOK,
		}
	}

	if len(env.Result.List) == 0 {
		return nil, fmt.Errorf("bybit %s: %w", symbol, ErrSymbolNotFound)
	}

	t := env.Result.List[0]
	ts := time.Now().UTC()
	if env.Time > 0 {
		ts = time.UnixMilli(env.Time).UTC()
	}

	return &Ticker{
		Symbol:    t.Symbol,
		Last:      parsePrice(t.LastPrice),
		Bid:       parsePrice(t.Bid1Price),
		Ask:       parsePrice(t.Ask1Price),
		Timestamp: ts,
	}, nil
}

func (b *Bybit) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := b.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Venue: "bybit", Message: "request failed", Original: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &APIError{Venue: "bybit", Message: "read body", StatusCode: resp.StatusCode, Original: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			Venue:      "bybit",
			Message:    fmt.Sprintf("unexpected status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}
	return body, nil
}

// parsePrice: пустая или нечисловая цена превращается в NaN
func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
