package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	jobtypes "github.com/yungbote/contentplan-backend/internal/domain/jobs"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
)

// Metrics is a small Prometheus text-format registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	apiRequests  *CounterVec
	apiLatency   *HistogramVec
	batches      *CounterVec
	batchLatency *HistogramVec
	chatRequests *CounterVec
	chatLatency  *HistogramVec
	itemsMade    *CounterVec
	jobQueue     *GaugeVec
}

var (
	latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
	metricsOnce    sync.Once
	current        *Metrics
)

func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests:  NewCounterVec("contentplan_api_requests_total", "HTTP requests by route and status.", []string{"method", "route", "status"}),
		apiLatency:   NewHistogramVec("contentplan_api_request_seconds", "HTTP request latency.", []string{"method", "route"}, latencyBuckets),
		batches:      NewCounterVec("contentplan_batches_total", "Strategy batches by phase and outcome.", []string{"phase", "outcome"}),
		batchLatency: NewHistogramVec("contentplan_batch_seconds", "Strategy batch duration.", []string{"phase"}, latencyBuckets),
		chatRequests: NewCounterVec("contentplan_chat_requests_total", "Chat calls by provider, model and status.", []string{"provider", "model", "status"}),
		chatLatency:  NewHistogramVec("contentplan_chat_seconds", "Chat call latency.", []string{"provider", "model"}, latencyBuckets),
		itemsMade:    NewCounterVec("contentplan_items_total", "Content items written by phase.", []string{"phase"}),
		jobQueue:     NewGaugeVec("contentplan_job_runs", "job_run rows by status.", []string{"status"}),
	}
}

// Init returns the process-wide registry.
func Init() *Metrics {
	metricsOnce.Do(func() { current = NewMetrics() })
	return current
}

// Current returns the registry installed by Init, or nil.
func Current() *Metrics { return current }

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.Inc(method, route, strconv.Itoa(status))
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) ObserveBatch(phase, outcome string, dur time.Duration, items int) {
	if m == nil {
		return
	}
	m.batches.Inc(phase, outcome)
	m.batchLatency.Observe(dur.Seconds(), phase)
	if items > 0 {
		m.itemsMade.Add(float64(items), phase)
	}
}

func (m *Metrics) ObserveChat(provider, model string, err error, dur time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.chatRequests.Inc(provider, model, status)
	m.chatLatency.Observe(dur.Seconds(), provider, model)
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if err := m.WritePrometheus(w); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.batches, m.batchLatency,
		m.chatRequests, m.chatLatency, m.itemsMade, m.jobQueue,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

// StartJobQueueCollector samples job_run counts by status until ctx ends.
func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB, every time.Duration) {
	if m == nil || db == nil {
		return
	}
	if every <= 0 {
		every = 15 * time.Second
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			if err := m.collectJobQueue(ctx, db); err != nil && ctx.Err() == nil {
				log.Warn("Job queue metrics collection failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}

func (m *Metrics) collectJobQueue(ctx context.Context, db *gorm.DB) error {
	var rows []struct {
		Status string
		N      int64
	}
	err := db.WithContext(ctx).Model(&jobtypes.JobRun{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, r := range rows {
		m.jobQueue.Set(float64(r.N), r.Status)
		seen[r.Status] = true
	}
	for _, st := range []string{jobtypes.StatusQueued, jobtypes.StatusRunning, jobtypes.StatusFailed, jobtypes.StatusDead} {
		if !seen[st] {
			m.jobQueue.Set(0, st)
		}
	}
	return nil
}

type series struct {
	name       string
	help       string
	kind       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func (s *series) add(v float64, set bool, labels []string) {
	if s == nil {
		return
	}
	key := labelString(s.labelNames, labels)
	s.mu.Lock()
	if set {
		s.values[key] = v
	} else {
		s.values[key] += v
	}
	s.mu.Unlock()
}

func (s *series) WritePrometheus(w io.Writer) error {
	if s == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", s.name, s.help, s.name, s.kind); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range sortedKeys(s.values) {
		if _, err := fmt.Fprintf(w, "%s%s %g\n", s.name, k, s.values[k]); err != nil {
			return err
		}
	}
	return nil
}

type CounterVec struct{ series }

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{series{name: name, help: help, kind: "counter", labelNames: labels, values: map[string]float64{}}}
}

func (c *CounterVec) Inc(values ...string)            { c.add(1, false, values) }
func (c *CounterVec) Add(v float64, values ...string) { c.add(v, false, values) }

type GaugeVec struct{ series }

func NewGaugeVec(name, help string, labels []string) *GaugeVec {
	return &GaugeVec{series{name: name, help: help, kind: "gauge", labelNames: labels, values: map[string]float64{}}}
}

func (g *GaugeVec) Set(v float64, values ...string) { g.add(v, true, values) }

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.Mutex
	series     map[string]*histogram
}

type histogram struct {
	counts []uint64
	sum    float64
	count  uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	return &HistogramVec{name: name, help: help, labelNames: labels, buckets: buckets, series: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	key := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.series[key]
	if s == nil {
		s = &histogram{counts: make([]uint64, len(h.buckets))}
		h.series[key] = s
	}
	for i, b := range h.buckets {
		if v <= b {
			s.counts[i]++
		}
	}
	s.sum += v
	s.count++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, 0, len(h.series))
	for k := range h.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s := h.series[k]
		for i, b := range h.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, strconv.FormatFloat(b, 'g', -1, 64)), s.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n%s_sum%s %g\n%s_count%s %d\n",
			h.name, withLe(k, "+Inf"), s.count, h.name, k, s.sum, h.name, k, s.count); err != nil {
			return err
		}
	}
	return nil
}

func labelString(names, values []string) string {
	if len(names) == 0 {
		return ""
	}
	parts := make([]string, len(names))
	for i, n := range names {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		parts[i] = fmt.Sprintf(`%s="%s"`, n, escapeLabel(v))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func escapeLabel(v string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`).Replace(v)
}

func withLe(labels, le string) string {
	if labels == "" {
		return fmt.Sprintf(`{le="%s"}`, le)
	}
	return strings.TrimSuffix(labels, "}") + fmt.Sprintf(`,le="%s"}`, le)
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func parseRatio(raw string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return def
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
