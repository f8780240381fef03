package metrics

import (
	"sort"
	"sync"
	"time"
)

// Series names recorded for every run
const (
	SeriesBatchSeconds  = "batch_seconds"
	SeriesSampleSeconds = "sample_seconds"
	SeriesBestObjective = "best_objective"
)

// Aggregation holds summary statistics of one series
type Aggregation struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Summary is the end-of-run view of a Collector
type Summary struct {
	StartTime    time.Time               `json:"start_time"`
	EndTime      time.Time               `json:"end_time"`
	Duration     time.Duration           `json:"duration"`
	Aggregations map[string]*Aggregation `json:"aggregations"`
}

// Collector keeps in-process series for one run so the final result can
// report batch and sample timing without scraping Prometheus.
type Collector struct {
	mu sync.RWMutex

	startTime time.Time
	endTime   time.Time

	series map[string][]float64
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		series:    make(map[string][]float64),
	}
}

// Start marks the start of metric collection
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
}

// Stop marks the end of metric collection
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTime = time.Now()
}

// Record appends a value to a series
func (c *Collector) Record(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series[name] = append(c.series[name], value)
}

// Values returns a copy of a series
func (c *Collector) Values(name string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]float64(nil), c.series[name]...)
}

// GetAggregation returns statistics for a series, or nil if it is empty
func (c *Collector) GetAggregation(name string) *Aggregation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return calculateAggregation(c.series[name])
}

// GetSummary returns aggregations of every recorded series
func (c *Collector) GetSummary() *Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	end := c.endTime
	if end.IsZero() {
		end = time.Now()
	}
	summary := &Summary{
		StartTime:    c.startTime,
		EndTime:      end,
		Duration:     end.Sub(c.startTime),
		Aggregations: make(map[string]*Aggregation, len(c.series)),
	}
	for name, values := range c.series {
		if agg := calculateAggregation(values); agg != nil {
			summary.Aggregations[name] = agg
		}
	}
	return summary
}

// calculateAggregation calculates aggregated statistics from raw values
func calculateAggregation(raw []float64) *Aggregation {
	if len(raw) == 0 {
		return nil
	}

	values := append([]float64(nil), raw...)
	sort.Float64s(values)

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return &Aggregation{
		Count: int64(len(values)),
		Sum:   sum,
		Min:   values[0],
		Max:   values[len(values)-1],
		Mean:  sum / float64(len(values)),
		P50:   calculatePercentile(values, 0.50),
		P95:   calculatePercentile(values, 0.95),
		P99:   calculatePercentile(values, 0.99),
	}
}

// calculatePercentile calculates the percentile value from a sorted slice
func calculatePercentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return 0.0
	}
	if len(sortedValues) == 1 {
		return sortedValues[0]
	}

	index := p * float64(len(sortedValues)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sortedValues) {
		return sortedValues[len(sortedValues)-1]
	}

	weight := index - float64(lower)
	return sortedValues[lower]*(1-weight) + sortedValues[upper]*weight
}
