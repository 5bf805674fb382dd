package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/epeers/marketsync/internal/models"
	"github.com/epeers/marketsync/internal/services"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Syncer runs one synchronization pass
type Syncer interface {
	Run(ctx context.Context) (*models.RunReport, error)
}

// StatusReporter describes the store contents
type StatusReporter interface {
	Status(ctx context.Context) (*models.StatusResponse, error)
}

// AdminHandler handles admin endpoints
type AdminHandler struct {
	syncSvc   Syncer
	statusSvc StatusReporter
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(syncSvc Syncer, statusSvc StatusReporter) *AdminHandler {
	return &AdminHandler{
		syncSvc:   syncSvc,
		statusSvc: statusSvc,
	}
}

// Sync handles POST /admin/sync
// @Summary Run an incremental sync
// @Description Fetch new daily bars for every reference symbol, store them, and embed any bars without a vector for the configured model
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} models.RunReport
// @Failure 401 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /admin/sync [post]
func (h *AdminHandler) Sync(c *gin.Context) {
	// the run outlives a dropped client connection
	ctx := context.WithoutCancel(c.Request.Context())

	report, err := h.syncSvc.Run(ctx)
	if err != nil {
		if errors.Is(err, services.ErrRunInProgress) {
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "conflict",
				Message: err.Error(),
			})
			return
		}
		log.Errorf("Sync failed: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

// Status handles GET /admin/status
// @Summary Store contents
// @Description Row count and the first rows of each table; embedding rows show the vector dimension
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} models.StatusResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /admin/status [get]
func (h *AdminHandler) Status(c *gin.Context) {
	resp, err := h.statusSvc.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}
