package handlers

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/4uJustDev/medical-calculator-haq/internal/models"
	"github.com/4uJustDev/medical-calculator-haq/internal/services"
	"github.com/4uJustDev/medical-calculator-haq/internal/views"

	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"go.uber.org/zap"
)

type HistoryHandler struct {
	log     *zap.Logger
	history *services.HistoryService
	catalog *models.Catalog
}

func NewHistoryHandler(log *zap.Logger, history *services.HistoryService, catalog *models.Catalog) *HistoryHandler {
	return &HistoryHandler{log: log, history: history, catalog: catalog}
}

// List shows stored submissions, optionally filtered by ?patient=.
func (h *HistoryHandler) List(c *gin.Context) {
	h.list(c, nil)
}

func (h *HistoryHandler) list(c *gin.Context, notice templ.Component) {
	patient := c.Query("patient")
	subs, err := h.history.List(c.Request.Context(), patient)
	if err != nil {
		if wantsJSON(c) {
			c.JSON(statusFor(err), gin.H{"error": userMessage(err)})
			return
		}
		notice = views.Alert(userMessage(err), "error")
		subs = nil
	}

	if wantsJSON(c) {
		if subs == nil {
			subs = []*models.Submission{}
		}
		c.JSON(http.StatusOK, gin.H{"persistent": h.history.Persistent(), "submissions": subs})
		return
	}
	page := views.HistoryPage(subs, patient, h.history.Persistent(), c.GetString(CSPNonceKey), notice)
	render(c, http.StatusOK, "My submissions", "history", page)
}

func parseID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid submission id %q", models.ErrValidation, c.Param("id"))
	}
	return id, nil
}

// Delete removes one submission and re-renders the list. The row only
// disappears once the store confirmed the delete.
func (h *HistoryHandler) Delete(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.deleteFailed(c, err)
		return
	}
	if err := h.history.Delete(c.Request.Context(), id); err != nil {
		h.deleteFailed(c, err)
		return
	}

	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"deleted": id})
		return
	}
	h.list(c, views.Alert("Submission deleted.", "success"))
}

func (h *HistoryHandler) deleteFailed(c *gin.Context, err error) {
	if wantsJSON(c) {
		c.JSON(statusFor(err), gin.H{"error": userMessage(err)})
		return
	}
	h.list(c, views.Alert(userMessage(err), "error"))
}

// Export streams the PDF report of one submission as a download. htmx
// requests only check that the report can be built: on success the browser
// is redirected to the download, on failure the list comes back with an
// alert.
func (h *HistoryHandler) Export(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.exportFailed(c, err)
		return
	}

	name, data, err := h.history.Export(c.Request.Context(), id)
	if err != nil {
		h.exportFailed(c, err)
		return
	}

	if isHTMX(c) {
		c.Header("HX-Redirect", c.Request.URL.Path)
		c.Status(http.StatusNoContent)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	c.Data(http.StatusOK, "application/pdf", data)
}

func (h *HistoryHandler) exportFailed(c *gin.Context, err error) {
	if wantsJSON(c) {
		c.JSON(statusFor(err), gin.H{"error": userMessage(err)})
		return
	}
	h.list(c, views.Alert(userMessage(err), "error"))
}

// Chart returns the echarts options of the score-over-time chart.
func (h *HistoryHandler) Chart(c *gin.Context) {
	points, err := h.history.Timeline(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to get timeline data", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": userMessage(err)})
		return
	}
	min, max := h.catalog.ValueRange()
	c.JSON(http.StatusOK, scoreChart(points, min, max).JSON())
}

func scoreChart(points []services.TimelinePoint, min, max float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Score Over Time",
			Subtitle: "Disability index per submission",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Type: "time",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type: "value",
			Min:  min,
			Max:  max,
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)

	items := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		items = append(items, opts.LineData{Value: []interface{}{p.Date, p.Score}})
	}

	line.AddSeries("Score", items).SetSeriesOptions(charts.WithLineStyleOpts(opts.LineStyle{Width: 2}))
	return line
}

// Health reports whether the app is running and whether storage is available.
func Health(history *services.HistoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		storage := "persistent"
		if !history.Persistent() {
			storage = "memory"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "storage": storage})
	}
}
