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

package main

import (
	"bytes"
	"strings"
	"testing"

	"heapdb/internal/cli"
	"heapdb/internal/config"
	herrors "heapdb/internal/errors"
	"heapdb/internal/ingest"
	"heapdb/internal/metrics"
)

const citiesCSV = `Country:varchar,Capital:varchar,Population:int
Sweden,Stockholm,975551
USA,"Washington, D.C.",689545
Monaco,Monaco,38350
Malta,Valletta,5827
`

func loadCities(t *testing.T, defaultIndex bool) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	tableOpts := cli.TableOptions(cfg)
	tableOpts.Metrics = &metrics.Storage{}
	_, err := ingest.Load(strings.NewReader(citiesCSV), ingest.Options{
		Path:         cfg.DBPath(),
		Table:        tableOpts,
		DefaultIndex: defaultIndex,
		IndexPathFor: cfg.IndexPath,
		SchemaPath:   cfg.SchemaPath(),
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return cfg
}

func TestDefaultIndexSplit(t *testing.T) {
	cfg := loadCities(t, true)

	var out bytes.Buffer
	if err := run(cfg, options{value: defaultSplit}, &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	want := "Malta,Valletta,5827\n" +
		"Monaco,Monaco,38350\n" +
		"USA,\"Washington, D.C.\",689545\n" +
		"Sweden,Stockholm,975551\n"
	if out.String() != want {
		t.Errorf("Unexpected output:\n%s", out.String())
	}
}

func TestSingleOperator(t *testing.T) {
	cfg := loadCities(t, true)
	cfg.IndexColumn = "Population"

	var out bytes.Buffer
	if err := run(cfg, options{value: "689545", op: ">="}, &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := strings.Count(out.String(), "\n"); got != 2 {
		t.Errorf("Expected 2 rows, got:\n%s", out.String())
	}
}

func TestIndexDumpWithoutIndex(t *testing.T) {
	cfg := loadCities(t, false)

	var out bytes.Buffer
	if err := run(cfg, options{value: defaultSplit}, &out); !herrors.IsStorageError(err) {
		t.Errorf("Expected a storage error for a missing index file, got %v", err)
	}
	out.Reset()
	if err := run(cfg, options{scan: true}, &out); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if !strings.HasPrefix(out.String(), "Sweden,Stockholm,975551\n") {
		t.Errorf("Unexpected scan output:\n%s", out.String())
	}
}
