// Copyright 2024-2025 Logz.io
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

// Package metrics holds the process-wide Prometheus collectors, exposed on
// the optional status endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apifetcher_records_fetched_total",
		Help: "Records extracted from API responses, per source.",
	}, []string{"source"})

	TickFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apifetcher_tick_failures_total",
		Help: "Scheduled ticks that terminated with an error, per source.",
	}, []string{"source"})

	BulksShipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apifetcher_bulks_shipped_total",
		Help: "Compressed bulks accepted by a listener.",
	})

	ShipFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apifetcher_ship_failures_total",
		Help: "Bulk shipments that failed after retries.",
	})

	OversizedDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apifetcher_oversized_records_dropped_total",
		Help: "Records dropped for exceeding the per-log size limit.",
	})
)
