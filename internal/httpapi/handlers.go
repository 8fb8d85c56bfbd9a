package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/amishk599/jobinbox/internal/ingest"
	"github.com/amishk599/jobinbox/internal/model"
	"github.com/amishk599/jobinbox/internal/store"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

type runRequest struct {
	Sources     []string `json:"sources"`
	Window      string   `json:"window"`
	WindowLabel string   `json:"window_label"`
	Management  string   `json:"management"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// startRun handles POST /api/runs.
func (s *Server) startRun(c *gin.Context) {
	var body runRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	req, err := toRunRequest(body)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	err = s.runner.Start(req)
	switch {
	case errors.Is(err, model.ErrBusy):
		respondError(c, http.StatusConflict, err.Error())
	case errors.Is(err, ingest.ErrInvalidRequest):
		respondError(c, http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Error("starting run", "error", err)
		respondError(c, http.StatusInternalServerError, "failed to start run")
	default:
		c.JSON(http.StatusAccepted, gin.H{"message": "Scraping process initiated."})
	}
}

func toRunRequest(body runRequest) (model.RunRequest, error) {
	var req model.RunRequest
	for _, name := range body.Sources {
		if name == "" || name == "all" {
			req.Sources = nil
			break
		}
		src, ok := model.ParseSource(name)
		if !ok {
			return req, errors.New("unknown source " + strconv.Quote(name))
		}
		req.Sources = append(req.Sources, src)
	}

	window, err := model.ParseWindow(body.Window)
	if err != nil {
		return req, err
	}
	req.Window = window
	req.WindowLabel = body.WindowLabel
	if req.WindowLabel == "" {
		req.WindowLabel = body.Window
	}

	mgmt, ok := model.ParseManagement(body.Management)
	if !ok {
		return req, errors.New("unknown management option " + strconv.Quote(body.Management))
	}
	req.Management = mgmt
	return req, nil
}

// runStatus handles GET /api/runs/status.
func (s *Server) runStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.runner.Status())
}

// listRuns handles GET /api/runs.
func (s *Server) listRuns(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	runs, err := s.repo.ListRuns(c.Request.Context(), s.owner, limit)
	if err != nil {
		s.internalError(c, "listing runs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// listSources handles GET /api/sources.
func (s *Server) listSources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": s.runner.Sources()})
}

// listListings handles GET /api/listings.
func (s *Server) listListings(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	var f store.ListFilter
	f.Limit = limit
	if raw := c.Query("status"); raw != "" {
		st, err := model.ParseStatus(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		f.Status = st
	}

	listings, err := s.repo.ListListings(c.Request.Context(), s.owner, f)
	if err != nil {
		s.internalError(c, "listing listings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": listings, "count": len(listings)})
}

// updateStatus handles PATCH /api/listings/:id/status.
func (s *Server) updateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body statusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	to, err := model.ParseStatus(body.Status)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	listing, err := s.repo.UpdateStatus(c.Request.Context(), s.owner, id, to, s.now())
	if err != nil {
		s.workflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// resetApplicationDate handles DELETE /api/listings/:id/application-date.
func (s *Server) resetApplicationDate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.repo.ResetApplicationDate(c.Request.Context(), s.owner, id); err != nil {
		s.workflowError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// stats handles GET /api/stats.
func (s *Server) stats(c *gin.Context) {
	counts, err := s.repo.CountByStatus(c.Request.Context(), s.owner)
	if err != nil {
		s.internalError(c, "counting listings", err)
		return
	}
	total := 0
	byStatus := make(map[string]int, len(model.Statuses()))
	for _, st := range model.Statuses() {
		byStatus[string(st)] = counts[st]
		total += counts[st]
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "by_status": byStatus})
}

func (s *Server) workflowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrConflict):
		respondError(c, http.StatusConflict, err.Error())
	default:
		s.internalError(c, "updating listing", err)
	}
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	s.logger.Error(op, "error", err)
	respondError(c, http.StatusInternalServerError, op+" failed")
}

func respondError(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid listing id")
		return 0, false
	}
	return id, true
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		respondError(c, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return min(n, maxLimit), true
}
