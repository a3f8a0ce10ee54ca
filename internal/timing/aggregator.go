// Package timing implements the Timing Aggregator (spec.md §4.6): a pure
// function of (SuperGraph, base graph) to per-Super statistics. It never
// writes through the Updater and never mutates structure — aggregation
// results are immutable snapshots consumed by the Analysis Bundle API
// (internal/analysis).
package timing

import (
	"math"
	"sort"

	"github.com/Benny93/dkg-go/internal/diagnostics"
	"github.com/Benny93/dkg-go/internal/graph"
	"github.com/Benny93/dkg-go/internal/view"
)

// DefaultCriticalThreshold is the slack at or below which a member is
// counted critical (spec.md §4.6 "Default threshold = 0").
const DefaultCriticalThreshold = 0.0

// DefaultNearCriticalAlpha scales the clock period to derive the near-
// critical slack band (spec.md §4.6 "Default α=0.1").
const DefaultNearCriticalAlpha = 0.1

// NodeMetrics is the immutable per-SuperNode timing snapshot.
type NodeMetrics struct {
	MinSlack          float64
	P5Slack           float64
	MaxArrivalTime    float64
	MinRequiredTime   float64
	CriticalNodeRatio float64
	NearCriticalRatio float64

	// TimingRiskScore is nil when no member carried a slack value.
	TimingRiskScore *float64
}

// EdgeMetrics is the immutable per-SuperEdge timing snapshot.
type EdgeMetrics struct {
	MaxDelay          float64
	P95Delay          float64
	FlowTypeHistogram map[graph.FlowType]int
	FanoutMax         float64
	FanoutP95         float64
}

// Summary is a whole-SuperGraph timing rollup.
type Summary struct {
	WorstSlack        float64
	ViolationCount    int
	NearCriticalCount int
	ClockPeriod       float64
	AnalysisMode      string
}

// Alert names a Super entity, a severity, a human reason, and the metrics
// snapshot it was derived from (spec.md §4.6 "generate_timing_alerts").
type Alert struct {
	EntityRef string
	Severity  diagnostics.Severity
	Reason    string
	Metrics   any
}

// Aggregator computes timing statistics against a fixed graph.Store.
type Aggregator struct {
	store     *graph.Store
	threshold float64
	alpha     float64
}

// New creates an Aggregator with the spec's default threshold and alpha.
func New(store *graph.Store) *Aggregator {
	return &Aggregator{store: store, threshold: DefaultCriticalThreshold, alpha: DefaultNearCriticalAlpha}
}

// SetThreshold overrides DefaultCriticalThreshold.
func (a *Aggregator) SetThreshold(t float64) { a.threshold = t }

// SetAlpha overrides DefaultNearCriticalAlpha.
func (a *Aggregator) SetAlpha(alpha float64) { a.alpha = alpha }

// NodeMetricsFor computes TimingNodeMetrics for sn from its member nodes'
// slack/arrival/required fields.
func (a *Aggregator) NodeMetricsFor(sn *view.SuperNode, clockPeriodNs float64) NodeMetrics {
	var slacks, arrivals, requireds []float64
	for _, id := range sn.Members {
		n := a.store.GetNode(id)
		if n == nil {
			continue
		}
		if n.Slack != nil {
			slacks = append(slacks, *n.Slack)
		}
		if n.ArrivalTime != nil {
			arrivals = append(arrivals, *n.ArrivalTime)
		}
		if n.RequiredTime != nil {
			requireds = append(requireds, *n.RequiredTime)
		}
	}

	total := len(sn.Members)
	critical := 0
	nearCritical := 0
	nearBand := a.alpha * clockPeriodNs
	for _, s := range slacks {
		if s <= a.threshold {
			critical++
		}
		if s < nearBand {
			nearCritical++
		}
	}

	m := NodeMetrics{
		MinSlack:        minOrNaN(slacks),
		P5Slack:         percentile(slacks, 5),
		MaxArrivalTime:  maxOrNaN(arrivals),
		MinRequiredTime: minOrNaN(requireds),
	}
	if total > 0 {
		m.CriticalNodeRatio = float64(critical) / float64(total)
		m.NearCriticalRatio = float64(nearCritical) / float64(total)
	}
	if len(slacks) > 0 {
		risk := 10*m.CriticalNodeRatio + 5*m.NearCriticalRatio + math.Max(0, -m.MinSlack)
		m.TimingRiskScore = &risk
	}
	return m
}

// EdgeMetricsFor computes TimingEdgeMetrics for se from its member edges'
// delay fields and their source nodes' out-degree.
func (a *Aggregator) EdgeMetricsFor(se *view.SuperEdge) EdgeMetrics {
	var delays, fanouts []float64
	for _, id := range se.MemberEdges {
		e := a.store.GetEdge(id)
		if e == nil {
			continue
		}
		if e.Delay != nil {
			delays = append(delays, *e.Delay)
		}
		fanouts = append(fanouts, float64(a.store.OutDegree(e.Source)))
	}

	hist := make(map[graph.FlowType]int, len(se.FlowHistogram))
	for k, v := range se.FlowHistogram {
		hist[k] = v
	}

	return EdgeMetrics{
		MaxDelay:          maxOrNaN(delays),
		P95Delay:          percentile(delays, 95),
		FlowTypeHistogram: hist,
		FanoutMax:         maxOrNaN(fanouts),
		FanoutP95:         percentile(fanouts, 95),
	}
}

// Summarize computes the whole-SuperGraph rollup.
func (a *Aggregator) Summarize(sg *view.SuperGraph, clockPeriodNs float64) Summary {
	worst := math.Inf(1)
	violations := 0
	nearCriticalNodes := 0
	for _, sn := range sg.Nodes {
		m := a.NodeMetricsFor(sn, clockPeriodNs)
		if !math.IsNaN(m.MinSlack) && m.MinSlack < worst {
			worst = m.MinSlack
		}
		if !math.IsNaN(m.MinSlack) && m.MinSlack <= a.threshold {
			violations++
		}
		if m.NearCriticalRatio > 0 {
			nearCriticalNodes++
		}
	}
	if math.IsInf(worst, 1) {
		worst = math.NaN()
	}

	return Summary{
		WorstSlack:        worst,
		ViolationCount:    violations,
		NearCriticalCount: nearCriticalNodes,
		ClockPeriod:       clockPeriodNs,
		AnalysisMode:      string(sg.Context) + "/" + string(sg.View),
	}
}

// GenerateAlerts emits one alert per SuperNode that is in violation
// (min_slack ≤ threshold, severity Error) or near-critical (severity
// Warn) — spec.md §4.6 "generate_timing_alerts".
func (a *Aggregator) GenerateAlerts(sg *view.SuperGraph, clockPeriodNs float64) []Alert {
	var alerts []Alert
	ids := make([]string, 0, len(sg.Nodes))
	for id := range sg.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		sn := sg.Nodes[id]
		m := a.NodeMetricsFor(sn, clockPeriodNs)
		switch {
		case !math.IsNaN(m.MinSlack) && m.MinSlack <= a.threshold:
			alerts = append(alerts, Alert{EntityRef: id, Severity: diagnostics.SeverityError, Reason: "timing violation: min_slack at or below threshold", Metrics: m})
		case m.NearCriticalRatio > 0:
			alerts = append(alerts, Alert{EntityRef: id, Severity: diagnostics.SeverityWarn, Reason: "near-critical timing margin", Metrics: m})
		}
	}
	return alerts
}

func minOrNaN(vs []float64) float64 {
	if len(vs) == 0 {
		return math.NaN()
	}
	min := vs[0]
	for _, v := range vs[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

func maxOrNaN(vs []float64) float64 {
	if len(vs) == 0 {
		return math.NaN()
	}
	max := vs[0]
	for _, v := range vs[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// percentile computes the p-th percentile of vs via linear interpolation
// between closest ranks (spec.md §4.6 "p5_slack = 5th-percentile (linear
// interpolation)").
func percentile(vs []float64, p float64) float64 {
	if len(vs) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}

	idx := (p / 100) * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
