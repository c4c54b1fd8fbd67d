/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package metrics provides Prometheus-compatible metrics for HeapDB.

METRIC CATEGORIES:
==================
- Records: inserted, fetched by RID, visited by scans
- Scans: full table scans started
- Pages: allocated by inserts, examined by the first-fit search
- Bytes: record bytes written
- Errors: failed table operations

PROMETHEUS ENDPOINT:
====================
The shell can expose metrics at /metrics in Prometheus text format.
WriteText renders the same text to any writer.

EXAMPLE METRICS:
================

	heapdb_records_inserted_total 238
	heapdb_pages_allocated_total 4
	heapdb_insert_pages_examined_total 711
*/
package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"heapdb/internal/config"
	"heapdb/internal/logging"
)

// Storage holds heap table counters. The zero value is ready to use.
type Storage struct {
	RecordsInserted     atomic.Uint64
	RecordsFetched      atomic.Uint64
	RecordsScanned      atomic.Uint64
	Scans               atomic.Uint64
	PagesAllocated      atomic.Uint64
	InsertPagesExamined atomic.Uint64
	BytesWritten        atomic.Uint64
	Errors              atomic.Uint64
}

// Global metrics instance
var globalStorage = &Storage{}

// Get returns the global metrics instance.
func Get() *Storage {
	return globalStorage
}

// RecordInsert records one inserted record of n bytes that was placed
// after examining pages pages.
func (s *Storage) RecordInsert(n int, pages int, allocated bool) {
	s.RecordsInserted.Add(1)
	s.BytesWritten.Add(uint64(n))
	s.InsertPagesExamined.Add(uint64(pages))
	if allocated {
		s.PagesAllocated.Add(1)
	}
}

// RecordFetch records one lookup by RID.
func (s *Storage) RecordFetch() {
	s.RecordsFetched.Add(1)
}

// RecordScan records a completed scan that visited n records.
func (s *Storage) RecordScan(n int) {
	s.Scans.Add(1)
	s.RecordsScanned.Add(uint64(n))
}

// RecordError records a failed table operation.
func (s *Storage) RecordError() {
	s.Errors.Add(1)
}

// AveragePagesPerInsert returns the mean number of pages the first-fit
// search examined per insert.
func (s *Storage) AveragePagesPerInsert() float64 {
	n := s.RecordsInserted.Load()
	if n == 0 {
		return 0
	}
	return float64(s.InsertPagesExamined.Load()) / float64(n)
}

// WriteText writes the counters in Prometheus text format.
func (s *Storage) WriteText(w io.Writer) error {
	counters := []struct {
		name, help string
		value      uint64
	}{
		{"heapdb_records_inserted_total", "Records inserted", s.RecordsInserted.Load()},
		{"heapdb_records_fetched_total", "Records fetched by RID", s.RecordsFetched.Load()},
		{"heapdb_records_scanned_total", "Records visited by full scans", s.RecordsScanned.Load()},
		{"heapdb_scans_total", "Full table scans", s.Scans.Load()},
		{"heapdb_pages_allocated_total", "Pages allocated by inserts", s.PagesAllocated.Load()},
		{"heapdb_insert_pages_examined_total", "Pages examined by the first-fit search", s.InsertPagesExamined.Load()},
		{"heapdb_bytes_written_total", "Record bytes written", s.BytesWritten.Load()},
		{"heapdb_errors_total", "Failed table operations", s.Errors.Load()},
	}
	for _, c := range counters {
		if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", c.name, c.help, c.name, c.name, c.value); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "# HELP heapdb_insert_pages_examined_avg Mean pages examined per insert\n"+
		"# TYPE heapdb_insert_pages_examined_avg gauge\n"+
		"heapdb_insert_pages_examined_avg %.2f\n", s.AveragePagesPerInsert())
	return err
}

// Server provides an HTTP server for Prometheus metrics.
type Server struct {
	config  *config.MetricsConfig
	storage *Storage
	server  *http.Server
	logger  *logging.Logger
}

// NewServer creates a new metrics server for storage.
func NewServer(cfg *config.MetricsConfig, storage *Storage) *Server {
	return &Server{
		config:  cfg,
		storage: storage,
		logger:  logging.NewLogger("metrics"),
	}
}

// Start starts the metrics HTTP server.
func (s *Server) Start() error {
	if !s.config.Enabled {
		s.logger.Debug("Metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)

	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("Starting metrics server", "addr", s.config.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server error", "error", err)
		}
	}()

	return nil
}

// Stop stops the metrics HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("Stopping metrics server")
	return s.server.Shutdown(ctx)
}

// handleMetrics handles the /metrics endpoint in Prometheus format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if err := s.storage.WriteText(w); err != nil {
		s.logger.Warn("Writing metrics failed", "error", err)
	}
}
