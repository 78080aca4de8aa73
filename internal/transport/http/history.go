package httptransport

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ai-sentinel/internal/domain/history"
	"ai-sentinel/internal/utils"
)

const maxHistoryPage = 500

// HistoryService serves stored analyses.
type HistoryService struct {
	store  history.Store
	logger *utils.Logger
}

func NewHistoryService(store history.Store, logger *utils.Logger) *HistoryService {
	return &HistoryService{store: store, logger: logger}
}

func (s *HistoryService) Register(router *gin.RouterGroup) {
	router.GET("/history", s.handleList)
	router.GET("/history/stats", s.handleStats)
	router.GET("/history/:id", s.handleGet)
	router.DELETE("/history/:id", s.handleDelete)
}

func (s *HistoryService) handleList(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		RespondError(c, http.StatusBadRequest, "limit must be a non-negative integer", nil)
		return
	}
	if limit == 0 || limit > maxHistoryPage {
		limit = maxHistoryPage
	}

	records, err := s.store.List(c.Request.Context(), limit)
	if err != nil {
		s.logger.ErrorTag("History", "list failed: %v", err)
		RespondFailure(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, records, "")
}

func (s *HistoryService) handleGet(c *gin.Context) {
	rec, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondFailure(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, rec, "")
}

func (s *HistoryService) handleDelete(c *gin.Context) {
	if err := s.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondFailure(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{"id": c.Param("id")}, "record deleted")
}

func (s *HistoryService) handleStats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		RespondFailure(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, stats, "")
}
