package models

// WarningCode categorizes warnings by subsystem.
// W1xxx = reference data, W2xxx = pricing, W3xxx = embeddings, W4xxx = query.
type WarningCode string

const (
	WarnUnknownCompany     WarningCode = "W1001" // symbol has no matching profile row, name/sector defaulted
	WarnHistoryUnavailable WarningCode = "W2001" // price history lookup failed for a matched symbol
	WarnNoPriceHistory     WarningCode = "W2002" // matched symbol has no stored price bars
	WarnModelMismatch      WarningCode = "W3001" // stored vectors exist but none were produced by the configured model
	WarnTopKClamped        WarningCode = "W4001" // requested top_k was outside the allowed range
)

// Warning represents a non-fatal issue encountered during processing.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}
