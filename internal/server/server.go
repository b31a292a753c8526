/*
PURPOSE:
  Serves the live report and the result records over HTTP while a sweep is
  still writing them.

REQUIREMENTS:
  Implementation-discovered:
  - The CSV is re-read on every request; the store's atomic rename means a
    request sees either the old or the new snapshot, never a torn one.
  - Query filters override the server's default filter.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (serve)
  - Uses: internal/output (Load), internal/report

ERROR HANDLING:
  - 400 for malformed query parameters, 500 with JSON body when the file cannot be read.

USAGE:
  srv := server.New("results.csv", output.Filter{})
  srv.Run(":8080")
*/

package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/daryltucker/packbench/internal/model"
	"github.com/daryltucker/packbench/internal/output"
	"github.com/daryltucker/packbench/internal/report"
)

type handler struct {
	csvPath string
	filter  output.Filter
}

// New builds the HTTP engine for csvPath.
func New(csvPath string, filter output.Filter) *gin.Engine {
	h := &handler{csvPath: csvPath, filter: filter}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/", h.page)
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api := r.Group("/api")
	api.GET("/records", h.records)
	api.GET("/summary", h.summary)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		output.Logger.LogAttrs(c.Request.Context(), slog.LevelDebug, "HTTP request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// load applies query overrides (?dataset=1,2&algorithm=greedy) on top of the default filter.
func (h *handler) load(c *gin.Context) ([]model.Record, bool) {
	f := h.filter
	if q := c.Query("dataset"); q != "" {
		ds, err := ParseDatasets(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
		f.Datasets = ds
	}
	if q, ok := c.GetQuery("algorithm"); ok {
		f.Algorithm = q
	}

	recs, err := output.Load(h.csvPath, f)
	if err != nil {
		output.Logger.Error("Failed to load results", "path", h.csvPath, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return recs, true
}

func (h *handler) records(c *gin.Context) {
	recs, ok := h.load(c)
	if !ok {
		return
	}
	if recs == nil {
		recs = []model.Record{}
	}
	c.JSON(http.StatusOK, recs)
}

func (h *handler) summary(c *gin.Context) {
	recs, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, report.Summarize(recs))
}

func (h *handler) page(c *gin.Context) {
	recs, ok := h.load(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.WriteHTML(&buf, recs, "Truck Packing Algorithm Performance Report"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// ParseDatasets parses "1,2, 5" into dataset ids.
func ParseDatasets(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, &datasetError{value: part}
		}
		out = append(out, n)
	}
	return out, nil
}

type datasetError struct{ value string }

func (e *datasetError) Error() string {
	return "invalid dataset " + strconv.Quote(e.value) + ": must be a positive integer"
}
