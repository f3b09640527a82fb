// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package poolstats exports registry pool statistics to Prometheus.
package poolstats

import (
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"github.com/multigres/dbpool/go/pools/connpool"
)

// Source supplies pool snapshots. *registry.Registry implements it.
type Source interface {
	Stats() []connpool.Stats
}

// Collector is a prometheus.Collector reading a Source on every scrape.
type Collector struct {
	source Source

	size       *prometheus.Desc
	idle       *prometheus.Desc
	checkedOut *prometheus.Desc
	waiting    *prometheus.Desc
	capacity   *prometheus.Desc

	created      *prometheus.Desc
	discarded    *prometheus.Desc
	stale        *prometheus.Desc
	waitCount    *prometheus.Desc
	waitTimeouts *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds a collector whose metric names start with namespace.
func NewCollector(namespace string, source Source) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", name), help, []string{"alias"}, nil)
	}
	return &Collector{
		source:       source,
		size:         desc("size", "Live connections, including those being opened."),
		idle:         desc("idle", "Idle connections."),
		checkedOut:   desc("checked_out", "Connections currently borrowed."),
		waiting:      desc("waiting", "Callers queued for a connection."),
		capacity:     desc("capacity", "Maximum live connections (max_size + max_overflow)."),
		created:      desc("created_total", "Physical connections opened."),
		discarded:    desc("discarded_total", "Physical connections closed."),
		stale:        desc("stale_total", "Reused connections that failed pre-ping."),
		waitCount:    desc("wait_total", "Acquires that had to wait."),
		waitTimeouts: desc("wait_timeouts_total", "Acquires that gave up waiting."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.size, c.idle, c.checkedOut, c.waiting, c.capacity,
		c.created, c.discarded, c.stale, c.waitCount, c.waitTimeouts,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.source.Stats() {
		gauge := func(d *prometheus.Desc, v int) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), s.Alias)
		}
		counter := func(d *prometheus.Desc, v int64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), s.Alias)
		}
		gauge(c.size, s.Size)
		gauge(c.idle, s.Idle)
		gauge(c.checkedOut, s.CheckedOut)
		gauge(c.waiting, s.Waiting)
		gauge(c.capacity, s.Capacity)
		counter(c.created, s.Created)
		counter(c.discarded, s.Discarded)
		counter(c.stale, s.Stale)
		counter(c.waitCount, s.WaitCount)
		counter(c.waitTimeouts, s.WaitTimeouts)
	}
}

// NewRegistry returns a Prometheus registry holding only a Collector for
// source.
func NewRegistry(namespace string, source Source) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(namespace, source)); err != nil {
		return nil, err
	}
	return reg, nil
}

// Handler serves the pool metrics of source in the Prometheus exposition
// format.
func Handler(namespace string, source Source) (http.Handler, error) {
	reg, err := NewRegistry(namespace, source)
	if err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

// WriteText gathers the pool metrics once and writes them to w in the
// Prometheus text format.
func WriteText(w io.Writer, namespace string, source Source) error {
	reg, err := NewRegistry(namespace, source)
	if err != nil {
		return err
	}
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
