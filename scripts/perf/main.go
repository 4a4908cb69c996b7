// SPDX-License-Identifier: MIT

// Command perf runs the engine benchmarks and appends the results to a
// jsonl history file, printing the delta against the previous run.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type metric struct {
	NsPerOp     float64 `json:"ns_per_op"`
	AllocsPerOp float64 `json:"allocs_per_op,omitempty"`
}

type run struct {
	When    string            `json:"when"`
	Commit  string            `json:"commit"`
	Results map[string]metric `json:"results"`
}

var resultLine = regexp.MustCompile(`^(Benchmark\S+)\s+\d+\s+([0-9.]+)\s+ns/op(?:\s+[0-9.]+\s+B/op\s+([0-9.]+)\s+allocs/op)?`)

func main() {
	historyPath := flag.String("history", "perf/history.jsonl", "benchmark history jsonl file")
	pkg := flag.String("pkg", "./internal/engine", "benchmark package")
	benchtime := flag.String("benchtime", "1x", "go test -benchtime value")
	count := flag.Int("count", 5, "go test -count value")
	flag.Parse()

	raw, err := runBench(*pkg, *benchtime, *count)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	results, err := parseResults(raw)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	current := run{
		When:    time.Now().UTC().Format(time.RFC3339),
		Commit:  shortCommit(),
		Results: results,
	}
	previous, _ := lastRun(*historyPath)
	if err := appendRun(*historyPath, current); err != nil {
		fmt.Fprintf(os.Stderr, "append history: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("updated %s\n", *historyPath)
	printDelta(current, previous)
}

func runBench(pkg, benchtime string, count int) (string, error) {
	cmd := exec.Command("go", "test", "-run=^$", "-bench=.", "-benchmem",
		"-benchtime="+benchtime, "-count="+strconv.Itoa(count), pkg)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("benchmark run failed: %w\n%s", err, out.String())
	}
	return out.String(), nil
}

func parseResults(raw string) (map[string]metric, error) {
	results := make(map[string]metric)
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		match := resultLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if match == nil {
			continue
		}
		m := metric{NsPerOp: toFloat(match[2])}
		if match[3] != "" {
			m.AllocsPerOp = toFloat(match[3])
		}
		results[match[1]] = m
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no benchmark results in output")
	}
	return results, nil
}

func toFloat(v string) float64 {
	out, _ := strconv.ParseFloat(v, 64)
	return out
}

func shortCommit() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

func appendRun(path string, r run) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	line, err := json.Marshal(r)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = f.Write(append(line, '\n'))
	return err
}

func lastRun(path string) (*run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var last string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if last == "" {
		return nil, fmt.Errorf("history is empty")
	}
	var r run
	if err := json.Unmarshal([]byte(last), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func printDelta(current run, previous *run) {
	fmt.Println("ns/op:")
	for name, m := range current.Results {
		if previous != nil {
			if prev, ok := previous.Results[name]; ok && prev.NsPerOp > 0 {
				pct := (m.NsPerOp - prev.NsPerOp) / prev.NsPerOp * 100
				fmt.Printf("  %-44s %.2f (%+.2f%%)\n", name, m.NsPerOp, pct)
				continue
			}
		}
		fmt.Printf("  %-44s %.2f\n", name, m.NsPerOp)
	}
}
