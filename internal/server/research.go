package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mohammad-safakhou/researcher/internal/agent"
	"github.com/mohammad-safakhou/researcher/internal/logging"
)

// MsgNothingUseful is returned when a run produced neither sources nor an answer.
const MsgNothingUseful = "Search successful but could not find/extract useful information from any page."

type Researcher interface {
	Run(ctx context.Context, query string, maxResults int) (*agent.Result, error)
}

type ResearchHandler struct {
	agent   Researcher
	timeout time.Duration
	logger  zerolog.Logger
}

func NewResearchHandler(r Researcher, timeout time.Duration) *ResearchHandler {
	return &ResearchHandler{agent: r, timeout: timeout, logger: logging.Component("http.research")}
}

func (h *ResearchHandler) Register(g *echo.Group) {
	g.POST("/search", h.search)
}

// search runs one research pipeline.
//
//	@Summary	Research a question
//	@Tags		research
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		SearchRequest	true	"Query and result count"
//	@Success	200		{object}	agent.Result
//	@Failure	400		{object}	HTTPError
//	@Failure	500		{object}	HTTPError
//	@Router		/api/search [post]
func (h *ResearchHandler) search(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Empty query")
	}

	ctx := c.Request().Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	res, err := h.agent.Run(ctx, req.Query, req.MaxResults)
	if err != nil {
		if errors.Is(err, agent.ErrEmptyQuery) {
			return echo.NewHTTPError(http.StatusBadRequest, "Empty query")
		}
		h.logger.Error().Err(err).Str("query", req.Query).Msg("research failed")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(res.Sources) == 0 && res.Answer == "" {
		return echo.NewHTTPError(http.StatusInternalServerError, MsgNothingUseful)
	}
	return c.JSON(http.StatusOK, res)
}
