package models

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// QueryRequest is the body of POST /query
type QueryRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k"`
}

// SearchStatus tells the caller whether a query produced matches
type SearchStatus string

const (
	SearchOK    SearchStatus = "ok"
	SearchEmpty SearchStatus = "empty" // no embeddings stored yet for the configured model
)

// SearchMatch is one ranked embedding joined with its company and recent history
type SearchMatch struct {
	Rank       int           `json:"rank"`
	Symbol     string        `json:"symbol"`
	Name       string        `json:"name"`
	Sector     string        `json:"sector"`
	Date       Date          `json:"date"`
	Similarity float64       `json:"similarity"`
	History    []PriceBarDTO `json:"history"`
}

// SearchResponse is returned by the query façade
type SearchResponse struct {
	Query    string        `json:"query"`
	Model    string        `json:"model"`
	Status   SearchStatus  `json:"status"`
	Message  string        `json:"message,omitempty"`
	Matches  []SearchMatch `json:"matches"`
	Warnings []Warning     `json:"warnings,omitempty"`
}

// PriceBarDTO is a PriceBar with the date rendered as YYYY-MM-DD
type PriceBarDTO struct {
	Date   Date    `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// NewPriceBarDTOs converts stored bars for the API
func NewPriceBarDTOs(bars []PriceBar) []PriceBarDTO {
	out := make([]PriceBarDTO, 0, len(bars))
	for _, b := range bars {
		out = append(out, PriceBarDTO{
			Date:   NewDate(b.Date),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	return out
}

// GetPricesResponse represents the response for GET /prices/:symbol
type GetPricesResponse struct {
	Symbol     string        `json:"symbol"`
	DataPoints int           `json:"data_points"`
	Prices     []PriceBarDTO `json:"prices"`
}

// StatusResponse represents the response for GET /admin/status
type StatusResponse struct {
	Model  string       `json:"model"`
	Tables []TableCount `json:"tables"`
}
