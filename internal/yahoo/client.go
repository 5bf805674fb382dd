package yahoo

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

	"github.com/cenkalti/backoff/v4"
	"github.com/epeers/marketsync/internal/marketdata"
	"github.com/epeers/marketsync/internal/models"
	"github.com/epeers/marketsync/internal/util"
	log "github.com/sirupsen/logrus"
)

// Yahoo Finance's public chart endpoint. No key is needed, but it rate limits
// aggressively, so calls go through the retry policy.
const defaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// Client fetches daily bars from the Yahoo Finance chart API
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      util.RetryPolicy
}

var _ marketdata.PriceSource = (*Client)(nil)

// NewClient creates a new Yahoo chart client
func NewClient(retry util.RetryPolicy) *Client {
	return NewClientWithBaseURL(defaultBaseURL, retry)
}

// NewClientWithBaseURL creates a new Yahoo chart client with a custom base URL (for testing)
func NewClientWithBaseURL(baseURL string, retry util.RetryPolicy) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		retry:      retry,
	}
}

func (c *Client) Name() string { return "yahoo" }

// Ticker maps a stored symbol to Yahoo's form: share classes use '-' (BRK.B -> BRK-B)
func Ticker(symbol string) string {
	return strings.ReplaceAll(symbol, ".", "-")
}

// chartResponse is the response structure from the Yahoo Finance chart API.
// Price arrays contain nulls for halted or holiday rows.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string `json:"symbol"`
				ExchangeTimezoneName string `json:"exchangeTimezoneName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// DailyBars fetches bars dated within [start, end]. Timestamps are converted to
// calendar dates in the exchange's time zone.
func (c *Client) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error) {
	if start.After(end) {
		return nil, nil
	}

	params := url.Values{}
	// widen by a day on each side; Normalize trims to the window after the zone conversion
	params.Set("period1", strconv.FormatInt(start.AddDate(0, 0, -1).Unix(), 10))
	params.Set("period2", strconv.FormatInt(end.AddDate(0, 0, 2).Unix(), 10))
	params.Set("interval", "1d")
	params.Set("events", "history")
	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(Ticker(symbol)), params.Encode())

	var chart chartResponse
	err := c.retry.Do(ctx, "yahoo "+symbol, func(ctx context.Context) error {
		body, err := c.get(ctx, reqURL)
		if err != nil {
			return err
		}
		chart = chartResponse{}
		if err := json.Unmarshal(body, &chart); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to unmarshal response: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if chart.Chart.Error != nil {
		// unknown ticker and similar; Yahoo reports these with a 404 too, caught in get
		return nil, fmt.Errorf("yahoo api error %s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]

	loc := time.UTC
	if tz := result.Meta.ExchangeTimezoneName; tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		} else {
			log.WithField("tz", tz).Warnf("Unknown exchange time zone, using UTC: %v", err)
		}
	}

	bars := make([]models.PriceBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		date := util.CalendarDate(time.Unix(ts, 0), loc)
		open, okOpen := at(quote.Open, i)
		high, okHigh := at(quote.High, i)
		low, okLow := at(quote.Low, i)
		closePrice, okClose := at(quote.Close, i)
		if !okOpen && !okHigh && !okLow && !okClose {
			// holidays and halted sessions come back as all-null rows
			continue
		}
		if !okOpen || !okHigh || !okLow || !okClose {
			log.WithFields(log.Fields{
				"symbol": symbol,
				"date":   date.Format("2006-01-02"),
			}).Warn("Skipping bar with missing prices")
			continue
		}
		volume, _ := at(quote.Volume, i)
		bars = append(bars, models.PriceBar{
			Symbol: symbol,
			Date:   date,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: int64(volume),
		})
	}

	return marketdata.Normalize(symbol, bars, start, end), nil
}

// at returns values[i] and whether it was present
func at(values []*float64, i int) (float64, bool) {
	if i >= len(values) || values[i] == nil {
		return 0, false
	}
	return *values[i], true
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &util.HTTPStatusError{
			Service:    "yahoo",
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 200),
			RetryAfter: util.ParseRetryAfter(resp.Header),
		}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
