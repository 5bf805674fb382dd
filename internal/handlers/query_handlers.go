package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/epeers/marketsync/internal/marketdata"
	"github.com/epeers/marketsync/internal/models"
	"github.com/epeers/marketsync/internal/services"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Searcher is the query façade used by QueryHandler
type Searcher interface {
	Search(ctx context.Context, query string, topK int) (*models.SearchResponse, error)
	History(ctx context.Context, symbol string, limit int) ([]models.PriceBar, error)
}

// QueryHandler handles the similarity search and price history endpoints
type QueryHandler struct {
	searchSvc Searcher
}

// NewQueryHandler creates a new QueryHandler
func NewQueryHandler(searchSvc Searcher) *QueryHandler {
	return &QueryHandler{
		searchSvc: searchSvc,
	}
}

// Query handles POST /query
// @Summary Similarity search over stored embeddings
// @Description Embed the query text and return the most similar (symbol, date) bars with company and recent closing prices
// @Tags query
// @Accept json
// @Produce json
// @Param request body models.QueryRequest true "Query text and optional top_k"
// @Success 200 {object} models.SearchResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /query [post]
func (h *QueryHandler) Query(c *gin.Context) {
	var req models.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	resp, err := h.searchSvc.Search(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		if errors.Is(err, services.ErrEmptyQuery) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_request",
				Message: err.Error(),
			})
			return
		}
		log.Errorf("Query failed: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetPrices handles GET /prices/:symbol
// @Summary Recent daily bars for a symbol
// @Description Return the most recent stored bars for a symbol, oldest first
// @Tags query
// @Produce json
// @Param symbol path string true "Ticker symbol"
// @Param limit query int false "Number of bars (defaults to HISTORY_LIMIT)"
// @Success 200 {object} models.GetPricesResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /prices/{symbol} [get]
func (h *QueryHandler) GetPrices(c *gin.Context) {
	symbol := marketdata.NormalizeSymbol(c.Param("symbol"))

	limit := 0
	if s := c.Query("limit"); s != "" {
		var err error
		limit, err = strconv.Atoi(s)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_request",
				Message: "limit must be a positive integer",
			})
			return
		}
	}

	bars, err := h.searchSvc.History(c.Request.Context(), symbol, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}
	if len(bars) == 0 {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "no stored prices for symbol: " + symbol,
		})
		return
	}

	c.JSON(http.StatusOK, models.GetPricesResponse{
		Symbol:     symbol,
		DataPoints: len(bars),
		Prices:     models.NewPriceBarDTOs(bars),
	})
}
