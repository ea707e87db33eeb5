package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/researcher/internal/agent"
	"github.com/mohammad-safakhou/researcher/internal/store"
)

type HistoryStore interface {
	GetRun(ctx context.Context, id string) (store.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]store.Run, error)
}

type HistoryHandler struct {
	store HistoryStore
}

func (h *HistoryHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/:id", h.get)
}

// list
//
//	@Summary	List past research runs
//	@Tags		history
//	@Produce	json
//	@Param		limit	query		int	false	"Page size (default 20)"
//	@Param		offset	query		int	false	"Rows to skip"
//	@Success	200		{object}	HistoryResponse
//	@Failure	400		{object}	HTTPError
//	@Router		/api/history [get]
func (h *HistoryHandler) list(c echo.Context) error {
	limit, err := intParam(c, "limit", 20)
	if err != nil {
		return err
	}
	offset, err := intParam(c, "offset", 0)
	if err != nil {
		return err
	}
	runs, err := h.store.ListRuns(c.Request().Context(), limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := HistoryResponse{Runs: make([]RunSummary, 0, len(runs)), Limit: limit, Offset: offset}
	for _, r := range runs {
		out.Runs = append(out.Runs, toSummary(r))
	}
	return c.JSON(http.StatusOK, out)
}

// get
//
//	@Summary	Get one research run
//	@Tags		history
//	@Produce	json
//	@Param		id	path		string	true	"Run ID"
//	@Success	200	{object}	agent.Result
//	@Failure	404	{object}	HTTPError
//	@Router		/api/history/{id} [get]
func (h *HistoryHandler) get(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	run, err := h.store.GetRun(c.Request().Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	res, err := agent.FromRun(run)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
}
