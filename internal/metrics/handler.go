package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the metrics summary endpoint.
type Summary struct {
	HTTP      httpSummary        `json:"http"`
	Provider  providerSummary    `json:"provider"`
	Ledger    ledgerSummary      `json:"ledger"`
	Tutor     map[string]float64 `json:"tutor"`
	Exams     map[string]float64 `json:"exams"`
	Vouchers  map[string]float64 `json:"vouchers"`
	RateLimit rateLimitInfo      `json:"rateLimit"`
	Collector collectorInfo      `json:"collector"`
	Auth      authInfo           `json:"auth"`
	DB        dbInfo             `json:"db"`
	Server    serverInfo         `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type providerSummary struct {
	Attempts   float64            `json:"attempts"`
	BySource   map[string]float64 `json:"bySource"`
	ByOutcome  map[string]float64 `json:"byOutcome"`
	KeyErrors  float64            `json:"keyErrors"`
	HardErrors float64            `json:"hardErrors"`
}

type ledgerSummary struct {
	Charged      float64 `json:"charged"`
	Skipped      float64 `json:"skipped"`
	Insufficient float64 `json:"insufficient"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type collectorInfo struct {
	BufferSize   float64 `json:"bufferSize"`
	TotalFlushes float64 `json:"totalFlushes"`
	FlushErrors  float64 `json:"flushErrors"`
	Transactions float64 `json:"transactions"`
}

type authInfo struct {
	Failures float64 `json:"failures"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
	MaxConns      float64 `json:"maxConns"`
}

// Handler returns an http.HandlerFunc that serves live metrics in JSON format.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		families, err := m.registry.Gather()
		if err != nil {
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store")
		_ = json.NewEncoder(w).Encode(summarize(families, time.Now()))
	}
}

func summarize(families []*dto.MetricFamily, now time.Time) Summary {
	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	attempts := fam["eduvoice_provider_attempts_total"]
	classes := fam["eduvoice_provider_classifications_total"]
	charges := fam["eduvoice_ledger_charges_total"]
	start := gaugeValue(fam["eduvoice_server_start_time_seconds"])

	return Summary{
		HTTP: httpSummary{
			TotalRequests: sumCounter(fam["eduvoice_http_requests_total"]),
			ErrorRate:     computeErrorRate(fam["eduvoice_http_requests_total"]),
			P50Latency:    histogramPercentile(fam["eduvoice_http_request_duration_seconds"], 0.50),
			P95Latency:    histogramPercentile(fam["eduvoice_http_request_duration_seconds"], 0.95),
			P99Latency:    histogramPercentile(fam["eduvoice_http_request_duration_seconds"], 0.99),
		},
		Provider: providerSummary{
			Attempts:   sumCounter(attempts),
			BySource:   countersByLabel(attempts, "source"),
			ByOutcome:  countersByLabel(attempts, "outcome"),
			KeyErrors:  counterWithLabel(classes, "kind", "key_or_quota"),
			HardErrors: counterWithLabel(classes, "kind", "hard"),
		},
		Ledger: ledgerSummary{
			Charged:      counterWithLabel(charges, "result", "charged"),
			Skipped:      counterWithLabel(charges, "result", "skipped"),
			Insufficient: counterWithLabel(charges, "result", "insufficient"),
		},
		Tutor:    countersByLabel(fam["eduvoice_tutor_operations_total"], "result"),
		Exams:    countersByLabel(fam["eduvoice_exam_transitions_total"], "to"),
		Vouchers: countersByLabel(fam["eduvoice_voucher_redemptions_total"], "result"),
		RateLimit: rateLimitInfo{
			Rejections: counterValue(fam["eduvoice_ratelimit_rejections_total"]),
		},
		Collector: collectorInfo{
			BufferSize:   gaugeValue(fam["eduvoice_collector_buffer_size"]),
			TotalFlushes: sumCounter(fam["eduvoice_collector_flushes_total"]),
			FlushErrors:  counterWithLabel(fam["eduvoice_collector_flushes_total"], "status", "error"),
			Transactions: counterValue(fam["eduvoice_collector_transactions_total"]),
		},
		Auth: authInfo{
			Failures: sumCounter(fam["eduvoice_auth_failures_total"]),
		},
		DB: dbInfo{
			TotalConns:    gaugeValue(fam["eduvoice_db_pool_total_conns"]),
			IdleConns:     gaugeValue(fam["eduvoice_db_pool_idle_conns"]),
			AcquiredConns: gaugeValue(fam["eduvoice_db_pool_acquired_conns"]),
			MaxConns:      gaugeValue(fam["eduvoice_db_pool_max_conns"]),
		},
		Server: serverInfo{
			StartTime:     start,
			UptimeSeconds: float64(now.Unix()) - start,
		},
	}
}

// --- Prometheus metric helpers ---

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetGauge() != nil {
		return ms[0].GetGauge().GetValue()
	}
	return 0
}

func counterValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetCounter() != nil {
		return ms[0].GetCounter().GetValue()
	}
	return 0
}

func counterWithLabel(f *dto.MetricFamily, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	for _, m := range f.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == labelName && lp.GetValue() == labelValue {
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func computeErrorRate(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total, errors float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" {
				code := lp.GetValue()
				if len(code) > 0 && code[0] >= '4' {
					errors += v
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errors / total
}

// countersByLabel sums a counter family grouped by one label's values.
func countersByLabel(f *dto.MetricFamily, labelName string) map[string]float64 {
	out := map[string]float64{}
	if f == nil {
		return out
	}
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		for _, lp := range m.GetLabel() {
			if lp.GetName() == labelName {
				out[lp.GetValue()] += m.GetCounter().GetValue()
			}
		}
	}
	return out
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

// histogramPercentile computes a percentile from aggregated histogram buckets
// using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	// Aggregate all histogram metrics in the family.
	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			// Linear interpolation within this bucket.
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	// If we didn't find it, return the last finite bucket upper bound.
	if len(buckets) > 0 {
		for i := len(buckets) - 1; i >= 0; i-- {
			if !math.IsInf(buckets[i].upperBound, 1) {
				return buckets[i].upperBound
			}
		}
	}
	return 0
}
