package models

import (
	"time"
)

// UnknownField is stored for optional company fields that the reference data does not supply
const UnknownField = "Unknown"

// CompanyRecord represents a row of company_metadata, keyed by symbol
type CompanyRecord struct {
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Sector       string `json:"sector"`
	Headquarters string `json:"headquarters"`
	// PreviousHeadquarters is Unknown unless the company has relocated
	PreviousHeadquarters string `json:"previous_headquarters"`
}

// PriceBar represents one trading day for a symbol. (Symbol, Date) is the natural key.
// Date is always a calendar date at UTC midnight.
type PriceBar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// EmbeddingRecord is one vector per price bar, keyed by (Symbol, Date).
// Model records which embedding model produced the vector; vectors from
// different models are never compared.
type EmbeddingRecord struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Model  string    `json:"model"`
	Vector []float32 `json:"-"`
}

// TableCount is the row count and a short preview of one store table
type TableCount struct {
	Table   string           `json:"table"`
	Rows    int64            `json:"rows"`
	Preview []map[string]any `json:"preview"`
}
