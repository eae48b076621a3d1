package metrics

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"aitrade-hq/governor/pkg/store"
)

const (
	spoolKey     = "metrics/totals.json"
	spoolLockKey = "metrics"

	typeCounter   = "counter"
	typeHistogram = "histogram"
)

// Spool accumulates the counters and histograms of every governor process
// sharing a control root. Each short-lived CLI process flushes what it
// recorded into one totals record; the daemon serves the totals.
//
// Spool implements prometheus.Collector as an unchecked collector: the
// families it exposes are only known once the totals are read.
type Spool struct {
	records *store.Store
	logger  *slog.Logger

	mu sync.Mutex
	// flushed holds the values this process has already added, by series key.
	flushed map[string]*spoolSeries
}

type spoolTotals struct {
	Families map[string]*spoolFamily `json:"families"`
}

type spoolFamily struct {
	Help   string                  `json:"help"`
	Type   string                  `json:"type"`
	Series map[string]*spoolSeries `json:"series"`
}

type spoolSeries struct {
	Labels  map[string]string `json:"labels,omitempty"`
	Value   float64           `json:"value,omitempty"`
	Count   uint64            `json:"count,omitempty"`
	Sum     float64           `json:"sum,omitempty"`
	Buckets map[string]uint64 `json:"buckets,omitempty"`
}

// NewSpool creates a spool keeping its totals in records.
func NewSpool(records *store.Store, logger *slog.Logger) *Spool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Spool{
		records: records,
		logger:  logger.With("component", "metrics.spool"),
		flushed: make(map[string]*spoolSeries),
	}
}

// Flush adds everything g gathered since the previous Flush to the totals.
// Only counters and histograms are spooled.
func (s *Spool) Flush(g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deltas, current := s.deltas(families)
	if len(deltas) == 0 {
		return nil
	}

	unlock, err := s.records.Lock(spoolLockKey)
	if err != nil {
		return err
	}
	defer unlock()

	totals := s.load()
	for name, delta := range deltas {
		fam, ok := totals.Families[name]
		if !ok {
			fam = &spoolFamily{Help: delta.Help, Type: delta.Type, Series: make(map[string]*spoolSeries)}
			totals.Families[name] = fam
		}
		if fam.Type != delta.Type {
			s.logger.Warn("metric type changed, dropping spooled samples", "metric", name, "was", fam.Type, "now", delta.Type)
			continue
		}
		for sig, d := range delta.Series {
			fam.Series[sig] = addSeries(fam.Series[sig], d)
		}
	}

	if err := s.records.WriteJSON(spoolKey, totals); err != nil {
		return fmt.Errorf("failed to persist metric totals: %w", err)
	}
	for key, ser := range current {
		s.flushed[key] = ser
	}
	return nil
}

// deltas returns, per family, the growth of each series since the last
// Flush, along with the current values by series key.
func (s *Spool) deltas(families []*dto.MetricFamily) (map[string]*spoolFamily, map[string]*spoolSeries) {
	deltas := make(map[string]*spoolFamily)
	current := make(map[string]*spoolSeries)

	for _, mf := range families {
		var typ string
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			typ = typeCounter
		case dto.MetricType_HISTOGRAM:
			typ = typeHistogram
		default:
			continue
		}

		for _, m := range mf.GetMetric() {
			ser := seriesOf(typ, m)
			sig := signature(ser.Labels)
			key := mf.GetName() + "|" + sig
			current[key] = ser

			d := subSeries(ser, s.flushed[key])
			if d == nil {
				continue
			}
			fam, ok := deltas[mf.GetName()]
			if !ok {
				fam = &spoolFamily{Help: mf.GetHelp(), Type: typ, Series: make(map[string]*spoolSeries)}
				deltas[mf.GetName()] = fam
			}
			fam.Series[sig] = d
		}
	}
	return deltas, current
}

// load reads the totals. A corrupt record starts over, which scrapers see
// as a counter reset.
func (s *Spool) load() *spoolTotals {
	totals := &spoolTotals{}
	err := s.records.ReadJSON(spoolKey, totals)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("metric totals unreadable, starting over", "error", err)
		totals = &spoolTotals{}
	}
	if totals.Families == nil {
		totals.Families = make(map[string]*spoolFamily)
	}
	return totals
}

// Describe implements prometheus.Collector. It sends nothing, which makes
// the spool an unchecked collector.
func (s *Spool) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector by emitting the totals as
// constant metrics.
func (s *Spool) Collect(ch chan<- prometheus.Metric) {
	totals := s.load()

	names := make([]string, 0, len(totals.Families))
	for name := range totals.Families {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fam := totals.Families[name]
		for _, ser := range fam.Series {
			labelNames := make([]string, 0, len(ser.Labels))
			for k := range ser.Labels {
				labelNames = append(labelNames, k)
			}
			sort.Strings(labelNames)
			values := make([]string, len(labelNames))
			for i, k := range labelNames {
				values[i] = ser.Labels[k]
			}

			desc := prometheus.NewDesc(name, fam.Help, labelNames, nil)
			var (
				m   prometheus.Metric
				err error
			)
			switch fam.Type {
			case typeCounter:
				m, err = prometheus.NewConstMetric(desc, prometheus.CounterValue, ser.Value, values...)
			case typeHistogram:
				var buckets map[float64]uint64
				buckets, err = parseBuckets(ser.Buckets)
				if err == nil {
					m, err = prometheus.NewConstHistogram(desc, ser.Count, ser.Sum, buckets, values...)
				}
			default:
				err = fmt.Errorf("unknown metric type %q", fam.Type)
			}
			if err != nil {
				m = prometheus.NewInvalidMetric(desc, err)
			}
			ch <- m
		}
	}
}

func seriesOf(typ string, m *dto.Metric) *spoolSeries {
	ser := &spoolSeries{Labels: make(map[string]string, len(m.GetLabel()))}
	for _, lp := range m.GetLabel() {
		ser.Labels[lp.GetName()] = lp.GetValue()
	}
	if typ == typeCounter {
		ser.Value = m.GetCounter().GetValue()
		return ser
	}

	h := m.GetHistogram()
	ser.Count = h.GetSampleCount()
	ser.Sum = h.GetSampleSum()
	ser.Buckets = make(map[string]uint64, len(h.GetBucket()))
	for _, b := range h.GetBucket() {
		if math.IsInf(b.GetUpperBound(), 1) {
			continue
		}
		ser.Buckets[strconv.FormatFloat(b.GetUpperBound(), 'g', -1, 64)] = b.GetCumulativeCount()
	}
	return ser
}

// subSeries returns cur minus prev, or nil when nothing grew.
func subSeries(cur, prev *spoolSeries) *spoolSeries {
	if prev == nil {
		prev = &spoolSeries{}
	}
	d := &spoolSeries{
		Labels: cur.Labels,
		Value:  cur.Value - prev.Value,
		Count:  cur.Count - prev.Count,
		Sum:    cur.Sum - prev.Sum,
	}
	if len(cur.Buckets) > 0 {
		d.Buckets = make(map[string]uint64, len(cur.Buckets))
		for k, v := range cur.Buckets {
			d.Buckets[k] = v - prev.Buckets[k]
		}
	}
	if d.Value == 0 && d.Count == 0 {
		return nil
	}
	return d
}

func addSeries(total, d *spoolSeries) *spoolSeries {
	if total == nil {
		total = &spoolSeries{Labels: d.Labels}
	}
	total.Value += d.Value
	total.Count += d.Count
	total.Sum += d.Sum
	if len(d.Buckets) > 0 && total.Buckets == nil {
		total.Buckets = make(map[string]uint64, len(d.Buckets))
	}
	for k, v := range d.Buckets {
		total.Buckets[k] += v
	}
	return total
}

func parseBuckets(raw map[string]uint64) (map[float64]uint64, error) {
	buckets := make(map[float64]uint64, len(raw))
	for k, v := range raw {
		ub, err := strconv.ParseFloat(k, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bucket bound %q: %w", k, err)
		}
		buckets[ub] = v
	}
	return buckets, nil
}

func signature(labels map[string]string) string {
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, k+"="+strconv.Quote(v))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}
