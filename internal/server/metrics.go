package server

import (
	"net/http"
	"runtime"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/saylee206/AWS-API/internal/utils"
)

// Health is the liveness payload. Gauge fields degrade to zero when the
// underlying stat fails; the endpoint itself never fails.
type Health struct {
	Status            string  `json:"status"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	Requests          uint64  `json:"requests"`
	Errors            uint64  `json:"errors"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	ExportDirFreeGB   float64 `json:"export_dir_free_gb"`
	Timestamp         string  `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	health := Health{
		Status:        "ok",
		UptimeSeconds: utils.Round(s.stats.Uptime().Seconds()),
		Requests:      s.stats.Requests(),
		Errors:        s.stats.Errors(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}

	if vmem, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		s.logger.Warn("Could not read memory stats", zap.Error(err))
	} else {
		health.MemoryUsedPercent = utils.Round(vmem.UsedPercent)
	}

	if usage, err := disk.UsageWithContext(ctx, s.exportDir); err != nil {
		s.logger.Warn("Could not read export directory usage",
			zap.String("dir", s.exportDir),
			zap.Error(err))
	} else {
		health.ExportDirFreeGB = utils.GBytes(usage.Free)
	}

	s.writeJSON(w, http.StatusOK, health)
}

// handleMetrics serves the request counters and process gauges in the
// Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.stats.Snapshot()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	families := []*dto.MetricFamily{
		labeledCounters("aws_inventory_requests_total",
			"Total HTTP requests by route.", "route", snap.Routes),
		labeledCounters("aws_inventory_responses_total",
			"Total HTTP responses by status code.", "code", snap.Statuses),
		gauge("aws_inventory_uptime_seconds",
			"Seconds since the connector started.", time.Since(snap.Started).Seconds()),
		gauge("aws_inventory_goroutines",
			"Number of live goroutines.", float64(runtime.NumGoroutine())),
		gauge("aws_inventory_memory_alloc_bytes",
			"Heap bytes allocated and still in use.", float64(memStats.Alloc)),
	}

	w.Header().Set("Content-Type", string(expfmt.FmtText))
	encoder := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, family := range families {
		if len(family.Metric) == 0 {
			continue
		}
		if err := encoder.Encode(family); err != nil {
			s.logger.Error("Could not encode metric family",
				zap.String("family", family.GetName()),
				zap.Error(err))
			return
		}
	}
}

// labeledCounters builds a counter family with one series per label
// value, in sorted label order.
func labeledCounters(name, help, label string, samples map[string]uint64) *dto.MetricFamily {
	family := &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
	}

	values := make([]string, 0, len(samples))
	for value := range samples {
		values = append(values, value)
	}
	sort.Strings(values)

	for _, value := range values {
		family.Metric = append(family.Metric, &dto.Metric{
			Label: []*dto.LabelPair{{
				Name:  proto.String(label),
				Value: proto.String(value),
			}},
			Counter: &dto.Counter{Value: proto.Float64(float64(samples[value]))},
		})
	}
	return family
}

func gauge(name, help string, value float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{
			{Gauge: &dto.Gauge{Value: proto.Float64(value)}},
		},
	}
}
