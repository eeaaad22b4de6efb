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

// Package manager schedules the configured sources: one worker goroutine per
// source runs fetch ticks on the source's interval and fans the records out
// to its bound shippers.
package manager

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/logzio/logzio-api-fetcher/internal/adapters"
	"github.com/logzio/logzio-api-fetcher/internal/config"
	"github.com/logzio/logzio-api-fetcher/internal/fetch"
	"github.com/logzio/logzio-api-fetcher/internal/logging"
	"github.com/logzio/logzio-api-fetcher/internal/metrics"
	"github.com/logzio/logzio-api-fetcher/internal/shipper"
)

// Pipeline binds one source to its shippers. Each shipper instance belongs to
// exactly one pipeline so batch state is never shared between workers.
type Pipeline struct {
	Source   *fetch.Fetcher
	Shippers []*shipper.Shipper
}

// BuildPipelines instantiates the configured sources and binds each one to a
// dedicated shipper per matching output. Invalid API entries are skipped with
// an error; having no valid source at all is fatal.
func BuildPipelines(cfg *config.Config) ([]*Pipeline, error) {
	var pipelines []*Pipeline

	for _, raw := range cfg.APIs {
		source, err := adapters.Build(raw)
		if err != nil {
			zlog.Error().Msgf("Failed to create API fetcher for config %v due to error: %s", raw["name"], err)
			continue
		}

		var shippers []*shipper.Shipper
		for _, out := range cfg.Logzio {
			if len(out.Inputs) > 0 && !slices.Contains(out.Inputs, source.Name) {
				continue
			}
			shippers = append(shippers, shipper.New(out.URL, out.Token))
		}
		if len(shippers) == 0 {
			zlog.Warn().Msgf("No outputs match api %s; its records will be discarded", source.Name)
		}

		pipelines = append(pipelines, &Pipeline{Source: source, Shippers: shippers})
		zlog.Debug().Msgf("Created %s.", source.Name)
	}

	if len(pipelines) == 0 {
		return nil, errors.New("no valid API inputs were configured")
	}
	return pipelines, nil
}

// Manager runs the pipelines until the context is canceled or a shipper hits
// an unrecoverable listener error.
type Manager struct {
	pipelines []*Pipeline

	// TestMode runs a single tick per source and exits, for config checks.
	TestMode bool
}

func New(pipelines []*Pipeline) *Manager {
	return &Manager{pipelines: pipelines}
}

// Run blocks until all workers stop. The returned error is non-nil only on
// an unrecoverable shipping failure, which cancels every other worker.
func (m *Manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var fatalOnce sync.Once
	var fatalErr error

	abort := func(err error) {
		fatalOnce.Do(func() {
			fatalErr = err
			cancel()
		})
	}

	zlog.Debug().Msgf("Configured %d API inputs.", len(m.pipelines))

	for _, p := range m.pipelines {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.runWorker(ctx, p, abort)
		}()
	}
	wg.Wait()
	return fatalErr
}

// runWorker loops fetch ticks for one source. Ticks never overlap: the next
// wait starts only after the current tick finished.
func (m *Manager) runWorker(ctx context.Context, p *Pipeline, abort func(error)) {
	interval := time.Duration(p.Source.ScrapeIntervalMinutes) * time.Minute

	// The stop signal preempts the inter-tick wait only: a tick in flight
	// drains its fetch and ship calls, bounded by the HTTP timeouts.
	tickCtx := context.WithoutCancel(ctx)

	for {
		m.runTick(tickCtx, p, abort)
		if m.TestMode {
			return
		}

		zlog.Info().Msgf("Task finished for api %s. New task will run in %d minutes.",
			p.Source.Name, p.Source.ScrapeIntervalMinutes)

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// runTick executes one fetch-and-ship cycle. A panicking adapter hook takes
// down only the tick, not the worker.
func (m *Manager) runTick(ctx context.Context, p *Pipeline, abort func(error)) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("Task for api %s panicked: %v", p.Source.Name, r)
		}
	}()

	zlog.Info().Msgf("Starting task for api %s.", p.Source.Name)

	records, err := p.Source.FetchLogs(ctx)
	if err != nil {
		metrics.TickFailures.WithLabelValues(p.Source.Name).Inc()
		zlog.Error().Msgf("Failed to fetch data from api %s: %s", p.Source.Name, logging.MaskErr(err))
		return
	}
	if len(records) == 0 {
		return
	}
	metrics.RecordsFetched.WithLabelValues(p.Source.Name).Add(float64(len(records)))

	for _, s := range p.Shippers {
		if err := m.ship(ctx, s, p.Source, records); err != nil {
			zlog.Error().Msgf("Failed to send data to Logz.io for api %s: %s", p.Source.Name, err)
			if errors.Is(err, shipper.ErrUnauthorized) || errors.Is(err, shipper.ErrBadRequest) {
				abort(err)
				return
			}
		}
	}
}

// ship forwards the records of one tick to one shipper and flushes whatever
// remains buffered.
func (m *Manager) ship(ctx context.Context, s *shipper.Shipper, source *fetch.Fetcher, records []any) error {
	for _, record := range records {
		if err := s.AddRecord(ctx, record, source.AdditionalFields); err != nil {
			return err
		}
	}
	return s.Flush(ctx)
}
