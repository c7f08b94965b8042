package sandbox

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// maxClusters mirrors the seed endpoint's per-request cap so generated
// output is always POSTable in one call.
const maxClusters = 100

// Handler serves synthetic data generation. It is stateless: every request
// generates afresh, so there is nothing to reset between demos.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/sandbox/clusters", h.GenerateClusters)
	g.GET("/sandbox/export", h.Export)
}

type clustersResponse struct {
	Clusters []Cluster `json:"clusters"`
}

// GenerateClusters returns synthetic clusters in the seed request shape.
func (h *Handler) GenerateClusters(c echo.Context) error {
	cfg := DefaultConfig()
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if cfg.Clusters > maxClusters {
		return echo.NewHTTPError(http.StatusUnprocessableEntity,
			fmt.Sprintf("clusters must not exceed %d per request", maxClusters))
	}
	gen := NewGenerator(cfg.Seed)
	return c.JSON(http.StatusOK, clustersResponse{Clusters: gen.GenerateClusters(cfg)})
}

// Export streams clusters as newline-delimited JSON for bulk loads. Query
// parameters: clusters, records, seed.
func (h *Handler) Export(c echo.Context) error {
	cfg := DefaultConfig()
	if v := c.QueryParam("clusters"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "clusters must be a positive integer")
		}
		cfg.Clusters = n
	}
	if v := c.QueryParam("records"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "records must be a positive integer")
		}
		cfg.RecordsPerCluster = n
	}
	if v := c.QueryParam("seed"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "seed must be an integer")
		}
		cfg.Seed = n
	}
	if cfg.Clusters > maxClusters {
		return echo.NewHTTPError(http.StatusUnprocessableEntity,
			fmt.Sprintf("clusters must not exceed %d per request", maxClusters))
	}

	gen := NewGenerator(cfg.Seed)
	clusters := gen.GenerateClusters(cfg)

	c.Response().Header().Set(echo.HeaderContentType, "application/x-ndjson")
	c.Response().WriteHeader(http.StatusOK)
	return WriteNDJSON(c.Response().Writer, clusters)
}

// WriteNDJSON writes one cluster per line.
func WriteNDJSON(w io.Writer, clusters []Cluster) error {
	enc := json.NewEncoder(w)
	for i := range clusters {
		if err := enc.Encode(clusters[i]); err != nil {
			return fmt.Errorf("encoding cluster %d: %w", i, err)
		}
	}
	return nil
}
