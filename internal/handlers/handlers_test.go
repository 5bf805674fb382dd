package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/epeers/marketsync/internal/models"
	"github.com/epeers/marketsync/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearcher struct {
	resp      *models.SearchResponse
	err       error
	bars      []models.PriceBar
	gotTopK   int
	gotSymbol string
	gotLimit  int
}

func (s *stubSearcher) Search(_ context.Context, query string, topK int) (*models.SearchResponse, error) {
	s.gotTopK = topK
	if s.err != nil {
		return nil, s.err
	}
	if strings.TrimSpace(query) == "" {
		return nil, services.ErrEmptyQuery
	}
	return s.resp, nil
}

func (s *stubSearcher) History(_ context.Context, symbol string, limit int) ([]models.PriceBar, error) {
	s.gotSymbol, s.gotLimit = symbol, limit
	return s.bars, s.err
}

type stubSyncer struct {
	report *models.RunReport
	err    error
}

func (s *stubSyncer) Run(context.Context) (*models.RunReport, error) { return s.report, s.err }

type stubStatus struct{}

func (stubStatus) Status(context.Context) (*models.StatusResponse, error) {
	return &models.StatusResponse{Model: "m", Tables: []models.TableCount{{Table: "stock_data", Rows: 3}}}, nil
}

func setupRouter(search Searcher, syncer Syncer) *gin.Engine {
	gin.SetMode(gin.TestMode)

	queryHandler := NewQueryHandler(search)
	adminHandler := NewAdminHandler(syncer, stubStatus{})

	router := gin.New()
	router.POST("/query", queryHandler.Query)
	router.GET("/prices/:symbol", queryHandler.GetPrices)
	admin := router.Group("/admin")
	{
		admin.POST("/sync", adminHandler.Sync)
		admin.GET("/status", adminHandler.Status)
	}
	return router
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestQuery(t *testing.T) {
	search := &stubSearcher{resp: &models.SearchResponse{
		Query:   "tech",
		Status:  models.SearchOK,
		Matches: []models.SearchMatch{{Rank: 1, Symbol: "AAPL", Similarity: 0.9}},
	}}
	router := setupRouter(search, &stubSyncer{})

	w := do(router, http.MethodPost, "/query", `{"query":"tech","top_k":3}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3, search.gotTopK)

	var resp models.SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "AAPL", resp.Matches[0].Symbol)
}

func TestQuery_EmptyStoreIsNotAnError(t *testing.T) {
	search := &stubSearcher{resp: &models.SearchResponse{Status: models.SearchEmpty, Matches: []models.SearchMatch{}}}
	router := setupRouter(search, &stubSyncer{})

	w := do(router, http.MethodPost, "/query", `{"query":"anything"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"empty"`)
	assert.Contains(t, w.Body.String(), `"matches":[]`)
}

func TestQuery_BadRequests(t *testing.T) {
	router := setupRouter(&stubSearcher{}, &stubSyncer{})

	for _, body := range []string{`{}`, `{"query":"   "}`, `not json`} {
		w := do(router, http.MethodPost, "/query", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestQuery_InternalError(t *testing.T) {
	router := setupRouter(&stubSearcher{err: errors.New("db down")}, &stubSyncer{})

	w := do(router, http.MethodPost, "/query", `{"query":"tech"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal_error")
}

func TestGetPrices(t *testing.T) {
	search := &stubSearcher{bars: []models.PriceBar{
		{Symbol: "BRK.B", Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 360.5},
	}}
	router := setupRouter(search, &stubSyncer{})

	w := do(router, http.MethodGet, "/prices/brk.b?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "BRK.B", search.gotSymbol)
	assert.Equal(t, 10, search.gotLimit)

	var resp models.GetPricesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.DataPoints)
	assert.Equal(t, "2024-01-02", resp.Prices[0].Date.String())

	w = do(router, http.MethodGet, "/prices/AAPL?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPrices_NotFound(t *testing.T) {
	router := setupRouter(&stubSearcher{}, &stubSyncer{})

	w := do(router, http.MethodGet, "/prices/NOPE", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminSync(t *testing.T) {
	report := &models.RunReport{Fetched: 2, Failed: 1}
	router := setupRouter(&stubSearcher{}, &stubSyncer{report: report})

	w := do(router, http.MethodPost, "/admin/sync", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got models.RunReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Fetched)
	assert.Equal(t, 1, got.Failed)
}

func TestAdminSync_Conflict(t *testing.T) {
	router := setupRouter(&stubSearcher{}, &stubSyncer{err: services.ErrRunInProgress})

	w := do(router, http.MethodPost, "/admin/sync", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminStatus(t *testing.T) {
	router := setupRouter(&stubSearcher{}, &stubSyncer{})

	w := do(router, http.MethodGet, "/admin/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rows":3`)
}
