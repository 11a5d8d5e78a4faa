// Package telemetry keeps in-process HTTP and session metrics and serves them
// in the Prometheus text exposition format.
package telemetry

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// Config identifies the service in the exported build info.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "readmit-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// durationBuckets are request duration bucket bounds in seconds.
var durationBuckets = []float64{
	0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0,
}

// sizeBuckets are response size bucket bounds in bytes.
var sizeBuckets = []float64{
	100, 1_000, 10_000, 100_000, 1_000_000,
}

// histogram stores non-cumulative bucket counts; cumulative counts are
// computed at export time.
type histogram struct {
	boundaries   []float64
	mu           sync.Mutex
	bucketCounts []int64
	count        int64
	sum          float64
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{boundaries: boundaries, bucketCounts: make([]int64, len(boundaries))}
}

func (h *histogram) observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

func (h *histogram) snapshot() (cum []int64, count int64, sum float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum = make([]int64, len(h.bucketCounts))
	var running int64
	for i, c := range h.bucketCounts {
		running += c
		cum[i] = running
	}
	return cum, h.count, h.sum
}

type gauge struct {
	name string
	help string
	fn   func() float64
}

// Provider holds every metric of the process.
type Provider struct {
	cfg Config

	histMu    sync.RWMutex
	durations map[string]*histogram // method|route|status
	sizes     *histogram

	active int64

	countMu sync.RWMutex
	events  map[string]*int64 // type|outcome

	gaugeMu sync.RWMutex
	gauges  []gauge
}

// NewProvider creates an empty provider.
func NewProvider(cfg Config) *Provider {
	cfg.applyDefaults()
	return &Provider{
		cfg:       cfg,
		durations: make(map[string]*histogram),
		sizes:     newHistogram(sizeBuckets),
		events:    make(map[string]*int64),
	}
}

// LabelsKey builds the key of a labelled request duration histogram.
func LabelsKey(method, route, statusCode string) string {
	return method + "|" + route + "|" + statusCode
}

func (p *Provider) duration(key string) *histogram {
	p.histMu.RLock()
	h, ok := p.durations[key]
	p.histMu.RUnlock()
	if ok {
		return h
	}
	p.histMu.Lock()
	defer p.histMu.Unlock()
	if h, ok = p.durations[key]; !ok {
		h = newHistogram(durationBuckets)
		p.durations[key] = h
	}
	return h
}

// RequestCount returns how many requests were observed for one label set.
func (p *Provider) RequestCount(method, route, statusCode string) int64 {
	p.histMu.RLock()
	h, ok := p.durations[LabelsKey(method, route, statusCode)]
	p.histMu.RUnlock()
	if !ok {
		return 0
	}
	_, count, _ := h.snapshot()
	return count
}

// ActiveRequests returns the number of requests in flight.
func (p *Provider) ActiveRequests() int64 {
	return atomic.LoadInt64(&p.active)
}

// RecordSessionEvent counts one session event by type and outcome.
func (p *Provider) RecordSessionEvent(eventType, outcome string) {
	key := eventType + "|" + outcome
	p.countMu.RLock()
	c, ok := p.events[key]
	p.countMu.RUnlock()
	if !ok {
		p.countMu.Lock()
		if c, ok = p.events[key]; !ok {
			c = new(int64)
			p.events[key] = c
		}
		p.countMu.Unlock()
	}
	atomic.AddInt64(c, 1)
}

// SessionEvents returns the count for one event type and outcome.
func (p *Provider) SessionEvents(eventType, outcome string) int64 {
	p.countMu.RLock()
	defer p.countMu.RUnlock()
	if c, ok := p.events[eventType+"|"+outcome]; ok {
		return atomic.LoadInt64(c)
	}
	return 0
}

// RegisterGauge adds a gauge read from fn at every scrape. name must be a
// valid Prometheus metric name.
func (p *Provider) RegisterGauge(name, help string, fn func() float64) {
	p.gaugeMu.Lock()
	defer p.gaugeMu.Unlock()
	p.gauges = append(p.gauges, gauge{name: name, help: help, fn: fn})
}

// MetricsMiddleware records request duration by method, route pattern and
// status, the response size, and the number of requests in flight.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&p.active, 1)
			defer atomic.AddInt64(&p.active, -1)

			start := time.Now()
			err := next(c)
			elapsed := time.Since(start).Seconds()

			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = http.StatusInternalServerError
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			// unmatched paths share one label to bound cardinality
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}

			p.duration(LabelsKey(c.Request().Method, route, fmt.Sprint(status))).observe(elapsed)
			if size := c.Response().Size; size > 0 {
				p.sizes.observe(float64(size))
			}
			return err
		}
	}
}

// PrometheusHandler serves every metric in the text exposition format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.Blob(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(p.Expose()))
	}
}

// Expose renders the current metrics. Series are sorted so output is stable.
func (p *Provider) Expose() string {
	var b strings.Builder

	b.WriteString("# HELP readmit_build_info Build information.\n")
	b.WriteString("# TYPE readmit_build_info gauge\n")
	fmt.Fprintf(&b, "readmit_build_info{service=%q,version=%q,environment=%q} 1\n\n",
		p.cfg.ServiceName, p.cfg.ServiceVersion, p.cfg.Environment)

	const durName = "http_server_request_duration_seconds"
	fmt.Fprintf(&b, "# HELP %s Duration of HTTP requests in seconds.\n# TYPE %s histogram\n", durName, durName)
	p.histMu.RLock()
	keys := make([]string, 0, len(p.durations))
	for k := range p.durations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	hists := make([]*histogram, len(keys))
	for i, k := range keys {
		hists[i] = p.durations[k]
	}
	p.histMu.RUnlock()
	for i, k := range keys {
		parts := strings.SplitN(k, "|", 3)
		labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", parts[0], parts[1], parts[2])
		writeHistogram(&b, durName, labels, hists[i])
	}
	b.WriteByte('\n')

	b.WriteString("# HELP http_server_active_requests Number of HTTP requests in flight.\n")
	b.WriteString("# TYPE http_server_active_requests gauge\n")
	fmt.Fprintf(&b, "http_server_active_requests %d\n\n", p.ActiveRequests())

	const sizeName = "http_server_response_size_bytes"
	fmt.Fprintf(&b, "# HELP %s Size of HTTP response bodies in bytes.\n# TYPE %s histogram\n", sizeName, sizeName)
	writeHistogram(&b, sizeName, "", p.sizes)
	b.WriteByte('\n')

	b.WriteString("# HELP readmit_session_events_total Session events by type and outcome.\n")
	b.WriteString("# TYPE readmit_session_events_total counter\n")
	p.countMu.RLock()
	eventKeys := make([]string, 0, len(p.events))
	for k := range p.events {
		eventKeys = append(eventKeys, k)
	}
	sort.Strings(eventKeys)
	for _, k := range eventKeys {
		parts := strings.SplitN(k, "|", 2)
		fmt.Fprintf(&b, "readmit_session_events_total{type=%q,outcome=%q} %d\n",
			parts[0], parts[1], atomic.LoadInt64(p.events[k]))
	}
	p.countMu.RUnlock()
	b.WriteByte('\n')

	p.gaugeMu.RLock()
	gauges := append([]gauge(nil), p.gauges...)
	p.gaugeMu.RUnlock()
	sort.Slice(gauges, func(i, j int) bool { return gauges[i].name < gauges[j].name })
	for _, g := range gauges {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %s\n\n", g.name, g.help, g.name, g.name, formatValue(g.fn()))
	}

	return b.String()
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum, count, sum := h.snapshot()
	prefix, suffix := "", ""
	if labels != "" {
		prefix = labels + ","
		suffix = "{" + labels + "}"
	}
	for i, bound := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%sle=\"%g\"} %d\n", name, prefix, bound, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%sle=\"+Inf\"} %d\n", name, prefix, count)
	fmt.Fprintf(b, "%s_sum%s %g\n", name, suffix, sum)
	fmt.Fprintf(b, "%s_count%s %d\n", name, suffix, count)
}

func formatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NaN"
	}
	return fmt.Sprintf("%g", v)
}
