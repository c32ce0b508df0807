package projection

import (
	"errors"
	"net/http"

	coreagg "github.com/aevon-lab/rollupd/internal/core/aggregation"
	httperr "github.com/aevon-lab/rollupd/internal/core/errors"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all projection API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/aggregations", s.HandleListDefinitions)
	r.GET("/v1/aggregations/:name", s.HandleQueryAggregates)
	r.POST("/v1/aggregations/:name/flush", s.HandleFlush)
}

// HandleListDefinitions handles GET /v1/aggregations
func (s *Service) HandleListDefinitions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"aggregations": s.Definitions()})
}

// HandleQueryAggregates handles GET /v1/aggregations/:name
// Query parameters: per, within (repeatable), group, at
func (s *Service) HandleQueryAggregates(c *gin.Context) {
	var uri struct {
		Name string `uri:"name" binding:"required"`
	}
	var query struct {
		Per    string   `form:"per" binding:"required"`
		Within []string `form:"within"`
		Group  string   `form:"group"`
		At     string   `form:"at"`
	}

	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid path parameters",
			Details:   err.Error(),
		})
		return
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	req := AggregateQueryRequest{
		Name:        uri.Name,
		Granularity: query.Per,
		Within:      query.Within,
		GroupKey:    query.Group,
		At:          query.At,
	}

	resp, err := s.QueryAggregates(c.Request.Context(), req)
	if err != nil {
		writeError(c, err, "Failed to query aggregates")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleFlush handles POST /v1/aggregations/:name/flush
func (s *Service) HandleFlush(c *gin.Context) {
	resp, err := s.Flush(c.Request.Context(), c.Param("name"))
	if err != nil {
		if resp != nil && errors.Is(err, coreagg.ErrStorageUnavailable) {
			c.JSON(http.StatusServiceUnavailable, httperr.ErrorResponse{
				ErrorType: httperr.HttpUnavailableError,
				Message:   "Flush deferred: bucket store unavailable",
				Details:   resp,
			})
			return
		}
		writeError(c, err, "Failed to flush aggregation")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func writeError(c *gin.Context, err error, internalMsg string) {
	switch {
	case errors.Is(err, ErrUnknownAggregation):
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   err.Error(),
		})
	case errors.Is(err, coreagg.ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid aggregate query",
			Details:   err.Error(),
		})
	case errors.Is(err, coreagg.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, httperr.ErrorResponse{
			ErrorType: httperr.HttpUnavailableError,
			Message:   internalMsg,
			Details:   err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   internalMsg,
			Details:   err.Error(),
		})
	}
}
