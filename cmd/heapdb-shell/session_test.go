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
	"regexp"
	"strconv"
	"strings"
	"testing"

	"heapdb/internal/config"
)

const citySchema = "Country:varchar,Capital:varchar,Population:int"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.IndexColumn = "Population"
	return cfg
}

func run(t *testing.T, s *session, out *bytes.Buffer, line string) string {
	t.Helper()
	out.Reset()
	if _, err := s.exec(line); err != nil {
		t.Fatalf("%s: %v", line, err)
	}
	return out.String()
}

func TestSessionCommands(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	s, err := openSession(cfg, citySchema, &out)
	if err != nil {
		t.Fatalf("openSession failed: %v", err)
	}
	defer s.close()

	for _, row := range []string{"Sweden,Stockholm,975551", "Malta,Valletta,5827", "Chile,Santiago,100000"} {
		run(t, s, &out, "insert "+row)
	}
	if got := run(t, s, &out, "insert Peru,Lima,9751000"); got != "1.3 Peru\n" {
		t.Errorf("insert printed %q", got)
	}

	if got := run(t, s, &out, "get 1.1"); got != "1.1 Malta,Valletta,5827\n" {
		t.Errorf("get printed %q", got)
	}

	got := run(t, s, &out, "scan 2")
	if got != "1.0,Sweden,Stockholm,975551\n1.1,Malta,Valletta,5827\n(2 rows)\n" {
		t.Errorf("scan 2 printed %q", got)
	}
	if got := run(t, s, &out, "scan"); !strings.HasSuffix(got, "(4 rows)\n") {
		t.Errorf("scan printed %q", got)
	}

	got = run(t, s, &out, "find <= 100000")
	if got != "1.1,Malta,Valletta,5827\n1.2,Chile,Santiago,100000\n(2 rows)\n" {
		t.Errorf("find printed %q", got)
	}

	got = run(t, s, &out, "stats")
	if !strings.Contains(got, "records=4") || !strings.Contains(got, "entries=4") {
		t.Errorf("stats printed %q", got)
	}
	m := regexp.MustCompile(`hit_rate=([0-9.]+)%`).FindStringSubmatch(got)
	if m == nil {
		t.Fatalf("stats printed no hit rate: %q", got)
	}
	if rate, _ := strconv.ParseFloat(m[1], 64); rate <= 0 || rate > 100 {
		t.Errorf("hit rate %s%% is not a percentage", m[1])
	}
	if got := run(t, s, &out, "schema"); !strings.Contains(got, "Population") || !strings.Contains(got, "(indexed)") {
		t.Errorf("schema printed %q", got)
	}
	if got := run(t, s, &out, "metrics"); !strings.Contains(got, "heapdb_records_inserted_total") {
		t.Errorf("metrics printed %q", got)
	}
	if got := run(t, s, &out, "help"); !strings.Contains(got, "find <op> <value>") {
		t.Errorf("help printed %q", got)
	}
}

func TestSessionErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.IndexColumn = ""
	var out bytes.Buffer
	s, err := openSession(cfg, citySchema, &out)
	if err != nil {
		t.Fatalf("openSession failed: %v", err)
	}
	defer s.close()

	for _, line := range []string{
		"bogus",
		"insert Sweden,Stockholm",
		"insert Sweden,Stockholm,many",
		"get x.y",
		"get 1.0",
		"find = 5",
		"scan -1",
	} {
		if _, err := s.exec(line); err == nil {
			t.Errorf("%q: expected error", line)
		}
	}

	for _, line := range []string{"exit", "QUIT", "\\q"} {
		quit, err := s.exec(line)
		if err != nil || !quit {
			t.Errorf("%q: expected quit, got %v %v", line, quit, err)
		}
	}
	if quit, err := s.exec("   "); quit || err != nil {
		t.Errorf("blank line: got %v %v", quit, err)
	}
}

func TestSessionSavesIndexOnClose(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	s, err := openSession(cfg, citySchema, &out)
	if err != nil {
		t.Fatalf("openSession failed: %v", err)
	}
	run(t, s, &out, "insert Malta,Valletta,5827")
	run(t, s, &out, "insert Monaco,Monaco,38350")
	if err := s.close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	s, err = openSession(cfg, citySchema, &out)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.close()
	if s.idx.Len() != 2 {
		t.Fatalf("Expected 2 index entries after reopen, got %d", s.idx.Len())
	}
	if got := run(t, s, &out, "find > 6000"); got != "1.1,Monaco,Monaco,38350\n(1 rows)\n" {
		t.Errorf("find printed %q", got)
	}
}

func TestBatch(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	s, err := openSession(cfg, citySchema, &out)
	if err != nil {
		t.Fatalf("openSession failed: %v", err)
	}
	defer s.close()

	input := "insert Malta,Valletta,5827\nnot-a-command\nget 1.0\nexit\ninsert Never,Run,1\n"
	if err := batch(s, strings.NewReader(input)); err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "1.0 Malta,Valletta,5827") {
		t.Errorf("batch output missing get result:\n%s", got)
	}
	if !strings.Contains(got, "unknown command") {
		t.Errorf("batch output missing error:\n%s", got)
	}
	if strings.Contains(got, "Never") {
		t.Errorf("lines after exit ran:\n%s", got)
	}
}

func TestOpenSessionNeedsSchema(t *testing.T) {
	cfg := testConfig(t)
	if _, err := openSession(cfg, "", &bytes.Buffer{}); err == nil {
		t.Error("Expected error without schema text or schema file")
	}
	if _, err := openSession(cfg, "A:float", &bytes.Buffer{}); err == nil {
		t.Error("Expected error for malformed schema")
	}
}
