// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlhelper

import (
	"database/sql"
	"time"

	"github.com/pingcap/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	txnCommit       = "commit"
	txnRollback     = "rollback"
	txnCommitFailed = "commit_failed"
)

// Metrics holds the prometheus collectors of a Helper.
type Metrics struct {
	duration     *prometheus.HistogramVec
	failures     *prometheus.CounterVec
	inFlight     prometheus.Gauge
	transactions *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sql",
				Name:      "handle_duration_seconds",
				Help:      "Bucketed histogram of processing time (s) of sql calls.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 18),
			}, []string{"op"}),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sql",
				Name:      "error_total",
				Help:      "Total count of failed sql calls.",
			}, []string{"op"}),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sql",
				Name:      "in_flight",
				Help:      "Number of sql calls holding a connection.",
			}),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sql",
				Name:      "txn_total",
				Help:      "Total count of finished transactions by result.",
			}, []string{"result"}),
	}
}

// Collectors returns every collector, for custom registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.duration, m.failures, m.inFlight, m.transactions}
}

// Register registers the collectors. Collectors already registered are skipped.
func (m *Metrics) Register(registry prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := registry.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return errors.Trace(err)
			}
		}
	}
	return nil
}

func (m *Metrics) observe(op string, cost time.Duration, err error) {
	m.duration.WithLabelValues(op).Observe(cost.Seconds())
	if err != nil && errors.Cause(err) != sql.ErrNoRows {
		m.failures.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) txnDone(result string) {
	m.transactions.WithLabelValues(result).Inc()
}
