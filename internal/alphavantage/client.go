package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/epeers/marketsync/internal/marketdata"
	"github.com/epeers/marketsync/internal/models"
	"github.com/epeers/marketsync/internal/util"
	log "github.com/sirupsen/logrus"
)

// Alphavantage is a Stock and ETF API that fetches data including pricing data
// It is a subscription service, but provides free API access
// https://www.alphavantage.co/documentation/
const defaultBaseURL = "https://www.alphavantage.co/query"

// compactDays is how far back outputsize=compact (the last 100 trading days) safely reaches
const compactDays = 100

// ErrRateLimited is returned when AlphaVantage answers with a "Note" or "Information" payload
var ErrRateLimited = errors.New("alphavantage rate limit")

// Client is an HTTP client for the AlphaVantage API
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retry      util.RetryPolicy
	now        func() time.Time
}

var _ marketdata.PriceSource = (*Client)(nil)

// NewClient creates a new AlphaVantage client
func NewClient(apiKey string, retry util.RetryPolicy) *Client {
	return NewClientWithBaseURL(apiKey, defaultBaseURL, retry)
}

// NewClientWithBaseURL creates a new AlphaVantage client with a custom base URL (for testing)
func NewClientWithBaseURL(apiKey, baseURL string, retry util.RetryPolicy) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{},
		retry:      retry,
		now:        time.Now,
	}
}

func (c *Client) Name() string { return "alphavantage" }

// OutputSize picks "compact" (last 100 points) when start is recent enough, otherwise "full"
func OutputSize(start, now time.Time) string {
	if now.Sub(start).Hours()/24.0 < compactDays {
		return "compact"
	}
	return "full"
}

// DailyBars fetches daily price data for a symbol and keeps the rows within [start, end]
func (c *Client) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error) {
	if start.After(end) {
		return nil, nil
	}

	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("outputsize", OutputSize(start, c.now()))
	params.Set("apikey", c.apiKey)

	var tsResp TimeSeriesDailyResponse
	err := c.retry.Do(ctx, "alphavantage "+symbol, func(ctx context.Context) error {
		body, err := c.doRequest(ctx, params)
		if err != nil {
			return err
		}
		tsResp = TimeSeriesDailyResponse{}
		if err := json.Unmarshal(body, &tsResp); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to unmarshal response: %w", err))
		}
		switch {
		case tsResp.ErrorMessage != "":
			return backoff.Permanent(fmt.Errorf("alphavantage error for %s: %s", symbol, tsResp.ErrorMessage))
		case tsResp.Note != "":
			return fmt.Errorf("%w: %s", ErrRateLimited, tsResp.Note)
		case tsResp.Information != "":
			return fmt.Errorf("%w: %s", ErrRateLimited, tsResp.Information)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	bars := make([]models.PriceBar, 0, len(tsResp.TimeSeries))
	for dateStr, ohlcv := range tsResp.TimeSeries {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			log.WithField("symbol", symbol).Warnf("Skipping row with bad date %q", dateStr)
			continue
		}

		open, errOpen := strconv.ParseFloat(ohlcv.Open, 64)
		high, errHigh := strconv.ParseFloat(ohlcv.High, 64)
		low, errLow := strconv.ParseFloat(ohlcv.Low, 64)
		closePrice, errClose := strconv.ParseFloat(ohlcv.Close, 64)
		if err := errors.Join(errOpen, errHigh, errLow, errClose); err != nil {
			log.WithFields(log.Fields{"symbol": symbol, "date": dateStr}).Warnf("Skipping bar with missing prices: %v", err)
			continue
		}
		volume, _ := strconv.ParseInt(ohlcv.Volume, 10, 64)

		bars = append(bars, models.PriceBar{
			Symbol: symbol,
			Date:   date,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}

	return marketdata.Normalize(symbol, bars, start, end), nil
}

func (c *Client) doRequest(ctx context.Context, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &util.HTTPStatusError{
			Service:    "alphavantage",
			StatusCode: resp.StatusCode,
			RetryAfter: util.ParseRetryAfter(resp.Header),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
