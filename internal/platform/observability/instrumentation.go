package observability

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricPoint is the accumulated value of one metric series.
type MetricPoint struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Count  int64             `json:"count"`
	Sum    float64           `json:"sum"`
	Last   float64           `json:"last"`
}

type counterSet struct {
	mu     sync.Mutex
	series map[string]*MetricPoint
}

func newCounterSet() *counterSet {
	return &counterSet{series: make(map[string]*MetricPoint)}
}

func seriesKey(name string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(labels[k])
	}
	return b.String()
}

func (c *counterSet) add(name string, value float64, labels map[string]string) {
	key := seriesKey(name, labels)

	c.mu.Lock()
	defer c.mu.Unlock()
	point, ok := c.series[key]
	if !ok {
		copied := make(map[string]string, len(labels))
		for k, v := range labels {
			copied[k] = v
		}
		point = &MetricPoint{Name: name, Labels: copied}
		c.series[key] = point
	}
	point.Count++
	point.Sum += value
	point.Last = value
}

func (c *counterSet) snapshot() []MetricPoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.series))
	for k := range c.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]MetricPoint, 0, len(keys))
	for _, k := range keys {
		out = append(out, *c.series[k])
	}
	return out
}

// StartSpan records the lifecycle of an operation and its duration metric.
func StartSpan(ctx context.Context, component, operation string) (context.Context, func(error)) {
	logger, cfg := currentState()
	start := time.Now()

	if logger != nil && cfg.Enabled {
		logger.LogAttrs(ctx, slog.LevelDebug, "obs span start",
			slog.String("component", component),
			slog.String("operation", operation),
		)
	}

	return ctx, func(err error) {
		duration := time.Since(start)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		RecordMetric(ctx, component+".duration_ms", float64(duration.Milliseconds()), map[string]string{
			"operation": operation,
			"outcome":   outcome,
		})

		if logger == nil || !cfg.Enabled {
			return
		}
		level := slog.LevelDebug
		attrs := []slog.Attr{
			slog.String("component", component),
			slog.String("operation", operation),
			slog.Duration("duration", duration),
		}
		if err != nil {
			level = slog.LevelError
			attrs = append(attrs, slog.Any("error", err))
		}
		logger.LogAttrs(ctx, level, "obs span end", attrs...)
	}
}

// RecordMetric accumulates a datapoint and logs it when span logging is enabled.
func RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) {
	stateMu.RLock()
	set := counters
	stateMu.RUnlock()
	set.add(name, value, labels)

	logger, cfg := currentState()
	if logger == nil || !cfg.Enabled {
		return
	}

	attrs := []slog.Attr{
		slog.String("metric", name),
		slog.Float64("value", value),
	}
	for k, v := range labels {
		attrs = append(attrs, slog.String(k, v))
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "obs metric", attrs...)
}

// Snapshot returns the accumulated metric series ordered by name and labels.
func Snapshot() []MetricPoint {
	stateMu.RLock()
	set := counters
	stateMu.RUnlock()
	return set.snapshot()
}
