package alphavantage

// TimeSeriesDailyResponse represents the AlphaVantage TIME_SERIES_DAILY response.
// On throttling or a bad request the API still answers 200 and fills one of
// Note, Information or ErrorMessage instead of TimeSeries.
type TimeSeriesDailyResponse struct {
	MetaData     MetaData              `json:"Meta Data"`
	TimeSeries   map[string]DailyOHLCV `json:"Time Series (Daily)"`
	Note         string                `json:"Note"`
	Information  string                `json:"Information"`
	ErrorMessage string                `json:"Error Message"`
}

// MetaData is the header block of a time series response
type MetaData struct {
	Symbol        string `json:"2. Symbol"`
	LastRefreshed string `json:"3. Last Refreshed"`
	OutputSize    string `json:"4. Output Size"`
	TimeZone      string `json:"5. Time Zone"`
}

// DailyOHLCV is one day of a time series. AlphaVantage sends every number as a string.
type DailyOHLCV struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}
