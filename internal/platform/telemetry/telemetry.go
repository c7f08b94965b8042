// Package telemetry collects in-process metrics for the MPI server and
// exposes them in Prometheus text format. Counters, gauges, and histograms
// live in memory with no external collector; everything resets on restart.
package telemetry

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// Metric names. The HTTP pair follows the OpenTelemetry semantic
// conventions; the mpi_* family is specific to record linkage.
const (
	MetricHTTPDuration       = "http_server_request_duration_seconds"
	MetricHTTPActiveRequests = "http_server_active_requests"
	MetricLinkDecisions      = "mpi_link_decisions_total"
	MetricBlockingCandidates = "mpi_blocking_candidates"
)

// defaultDurationBuckets covers request latencies from fast reads to the
// slowest tolerated linkage call.
var defaultDurationBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// candidateBuckets sizes the blocking candidate sets. Anything past the last
// bucket indicates a degenerate blocking pass worth investigating.
var candidateBuckets = []float64{0, 1, 2, 5, 10, 25, 50, 100, 250}

// ---------------------------------------------------------------------------
// histogram
// ---------------------------------------------------------------------------

// histogram is a fixed-bucket histogram safe for concurrent observation.
// Bucket counts and the total count use atomic increments; the sum uses a
// compare-and-swap loop over the float's bit pattern.
type histogram struct {
	buckets []float64
	counts  []uint64
	sum     uint64 // math.Float64bits
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) observe(v float64) {
	for i, upper := range h.buckets {
		if v <= upper {
			atomic.AddUint64(&h.counts[i], 1)
			break
		}
	}
	atomic.AddUint64(&h.count, 1)
	atomicAddFloat64(&h.sum, v)
}

func atomicAddFloat64(bits *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(bits)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(bits, old, next) {
			return
		}
	}
}

// snapshot returns cumulative bucket counts, the total count, and the sum.
func (h *histogram) snapshot() ([]uint64, uint64, float64) {
	cumulative := make([]uint64, len(h.buckets))
	var running uint64
	for i := range h.buckets {
		running += atomic.LoadUint64(&h.counts[i])
		cumulative[i] = running
	}
	count := atomic.LoadUint64(&h.count)
	sum := math.Float64frombits(atomic.LoadUint64(&h.sum))
	return cumulative, count, sum
}

// ---------------------------------------------------------------------------
// labeled stores
// ---------------------------------------------------------------------------

// labelsKey joins label values into a map key. Values are positional, so
// callers must always pass them in the same order.
func labelsKey(values ...string) string {
	return strings.Join(values, "|")
}

type histogramStore struct {
	mu      sync.RWMutex
	buckets []float64
	series  map[string]*histogram
}

func newHistogramStore(buckets []float64) *histogramStore {
	return &histogramStore{buckets: buckets, series: make(map[string]*histogram)}
}

func (s *histogramStore) observe(key string, v float64) {
	s.mu.RLock()
	h, ok := s.series[key]
	s.mu.RUnlock()
	if !ok {
		s.mu.Lock()
		h, ok = s.series[key]
		if !ok {
			h = newHistogram(s.buckets)
			s.series[key] = h
		}
		s.mu.Unlock()
	}
	h.observe(v)
}

func (s *histogramStore) sortedKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.series))
	for k := range s.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *histogramStore) get(key string) *histogram {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.series[key]
}

type counterStore struct {
	mu     sync.RWMutex
	series map[string]*uint64
}

func newCounterStore() *counterStore {
	return &counterStore{series: make(map[string]*uint64)}
}

func (s *counterStore) add(key string, delta uint64) {
	s.mu.RLock()
	c, ok := s.series[key]
	s.mu.RUnlock()
	if !ok {
		s.mu.Lock()
		c, ok = s.series[key]
		if !ok {
			c = new(uint64)
			s.series[key] = c
		}
		s.mu.Unlock()
	}
	atomic.AddUint64(c, delta)
}

func (s *counterStore) snapshot() map[string]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]uint64, len(s.series))
	for k, c := range s.series {
		out[k] = atomic.LoadUint64(c)
	}
	return out
}

// gaugeFunc is evaluated at scrape time.
type gaugeFunc struct {
	name string
	help string
	fn   func() float64
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

// Provider owns every metric series the server emits.
type Provider struct {
	httpDuration *histogramStore
	candidates   *histogramStore
	decisions    *counterStore

	activeRequests int64

	mu         sync.RWMutex
	gaugeFuncs []gaugeFunc
}

func NewProvider() *Provider {
	return &Provider{
		httpDuration: newHistogramStore(defaultDurationBuckets),
		candidates:   newHistogramStore(candidateBuckets),
		decisions:    newCounterStore(),
	}
}

// LinkDecision counts one linkage outcome by algorithm label and grade.
func (p *Provider) LinkDecision(algorithm, grade string) {
	p.decisions.add(labelsKey(algorithm, grade), 1)
}

// BlockingCandidates records the candidate set size one pass retrieved.
func (p *Provider) BlockingCandidates(pass string, count int) {
	p.candidates.observe(pass, float64(count))
}

// RegisterGaugeFunc exposes a gauge whose value is read at scrape time,
// e.g. connection pool statistics.
func (p *Provider) RegisterGaugeFunc(name, help string, fn func() float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gaugeFuncs = append(p.gaugeFuncs, gaugeFunc{name: name, help: help, fn: fn})
}

// HTTPMiddleware observes request durations by method, route template, and
// status, and tracks the number of in-flight requests.
func (p *Provider) HTTPMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&p.activeRequests, 1)
			start := time.Now()

			err := next(c)

			atomic.AddInt64(&p.activeRequests, -1)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			key := labelsKey(c.Request().Method, route, strconv.Itoa(status))
			p.httpDuration.observe(key, time.Since(start).Seconds())
			return err
		}
	}
}

// ---------------------------------------------------------------------------
// Prometheus exposition
// ---------------------------------------------------------------------------

// Handler serves the scrape endpoint in Prometheus text format 0.0.4.
func (p *Provider) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		writeHistogramFamily(&b, MetricHTTPDuration,
			"HTTP request duration in seconds.",
			p.httpDuration, []string{"method", "route", "status"})

		writeHistogramFamily(&b, MetricBlockingCandidates,
			"Candidate patients retrieved per blocking pass.",
			p.candidates, []string{"pass"})

		writeCounterFamily(&b, MetricLinkDecisions,
			"Linkage decisions by algorithm and grade.",
			p.decisions, []string{"algorithm", "grade"})

		fmt.Fprintf(&b, "# HELP %s Requests currently being served.\n", MetricHTTPActiveRequests)
		fmt.Fprintf(&b, "# TYPE %s gauge\n", MetricHTTPActiveRequests)
		fmt.Fprintf(&b, "%s %d\n", MetricHTTPActiveRequests, atomic.LoadInt64(&p.activeRequests))

		p.mu.RLock()
		funcs := make([]gaugeFunc, len(p.gaugeFuncs))
		copy(funcs, p.gaugeFuncs)
		p.mu.RUnlock()
		for _, g := range funcs {
			fmt.Fprintf(&b, "# HELP %s %s\n", g.name, g.help)
			fmt.Fprintf(&b, "# TYPE %s gauge\n", g.name)
			fmt.Fprintf(&b, "%s %s\n", g.name, formatFloat(g.fn()))
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/plain; version=0.0.4; charset=utf-8")
		return c.String(http.StatusOK, b.String())
	}
}

func writeHistogramFamily(b *strings.Builder, name, help string, store *histogramStore, labels []string) {
	keys := store.sortedKeys()
	if len(keys) == 0 {
		return
	}
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s histogram\n", name)
	for _, key := range keys {
		h := store.get(key)
		if h == nil {
			continue
		}
		cumulative, count, sum := h.snapshot()
		base := renderLabels(labels, strings.Split(key, "|"))
		for i, upper := range h.buckets {
			fmt.Fprintf(b, "%s_bucket{%s,le=%q} %d\n", name, base, formatFloat(upper), cumulative[i])
		}
		fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, base, count)
		fmt.Fprintf(b, "%s_sum{%s} %s\n", name, base, formatFloat(sum))
		fmt.Fprintf(b, "%s_count{%s} %d\n", name, base, count)
	}
}

func writeCounterFamily(b *strings.Builder, name, help string, store *counterStore, labels []string) {
	snap := store.snapshot()
	if len(snap) == 0 {
		return
	}
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s counter\n", name)
	for _, key := range keys {
		fmt.Fprintf(b, "%s{%s} %d\n", name, renderLabels(labels, strings.Split(key, "|")), snap[key])
	}
}

// renderLabels pairs label names with positional values.
func renderLabels(names, values []string) string {
	pairs := make([]string, 0, len(names))
	for i, n := range names {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		pairs = append(pairs, fmt.Sprintf("%s=%q", n, v))
	}
	return strings.Join(pairs, ",")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
