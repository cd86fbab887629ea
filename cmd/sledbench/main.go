// sledbench measures the fuzzy locator strategies offline: it takes
// spans from real source files, perturbs them the way models do
// (re-indentation, blank-line insertion, boundary drift), and reports
// whether each strategy still finds the original span and at what
// confidence.
package main

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/youruser/sled/internal/match"
)

//go:embed testdata/*
var testdataFS embed.FS

// perturbation rewrites an expected block the way model output drifts
// from the real document.
type perturbation struct {
	name  string
	apply func(lines []string) []string
}

var perturbations = []perturbation{
	{
		name:  "verbatim",
		apply: func(lines []string) []string { return lines },
	},
	{
		name: "reindent_spaces",
		apply: func(lines []string) []string {
			out := make([]string, len(lines))
			for i, l := range lines {
				out[i] = strings.ReplaceAll(l, "\t", "    ")
			}
			return out
		},
	},
	{
		name: "extra_indent",
		apply: func(lines []string) []string {
			out := make([]string, len(lines))
			for i, l := range lines {
				if strings.TrimSpace(l) == "" {
					out[i] = l
					continue
				}
				out[i] = "  " + l
			}
			return out
		},
	},
	{
		name: "trailing_ws",
		apply: func(lines []string) []string {
			out := make([]string, len(lines))
			for i, l := range lines {
				out[i] = l + " "
			}
			return out
		},
	},
	{
		name: "leading_junk_line",
		apply: func(lines []string) []string {
			return append([]string{"// note:"}, lines...)
		},
	},
	{
		name: "trailing_junk_line",
		apply: func(lines []string) []string {
			return append(append([]string{}, lines...), "// end note")
		},
	},
}

type caseResult struct {
	strategy   string
	perturb    string
	located    int
	mislocated int
	missed     int
	confSum    float64
	elapsed    time.Duration
}

func main() {
	docs, err := loadDocs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sledbench: %v\n", err)
		os.Exit(1)
	}

	strategies := []match.Strategy{match.WindowScorer{}, match.TrimLadder{}}
	var results []caseResult

	for _, s := range strategies {
		for _, p := range perturbations {
			r := caseResult{strategy: s.Name(), perturb: p.name}
			start := time.Now()

			for _, doc := range docs {
				for _, span := range spans(doc) {
					expected := p.apply(doc[span.start:span.end])
					m, ok := s.Locate(doc, expected, nil)
					switch {
					case ok && m.StartLine == span.start:
						r.located++
						r.confSum += m.Confidence
					case ok:
						r.mislocated++
					default:
						r.missed++
					}
				}
			}

			r.elapsed = time.Since(start)
			results = append(results, r)
		}
	}

	report(results)
}

type span struct{ start, end int }

// spans picks a spread of window sizes across the document.
func spans(doc []string) []span {
	var out []span
	for _, size := range []int{1, 3, 8} {
		for start := 0; start+size <= len(doc); start += size * 4 {
			out = append(out, span{start, start + size})
		}
	}
	return out
}

func loadDocs() ([][]string, error) {
	entries, err := testdataFS.ReadDir("testdata")
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var docs [][]string
	for _, e := range entries {
		data, err := testdataFS.ReadFile("testdata/" + e.Name())
		if err != nil {
			return nil, err
		}
		content := strings.TrimSuffix(string(data), "\n")
		docs = append(docs, strings.Split(content, "\n"))
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no testdata files embedded")
	}
	return docs, nil
}

func report(results []caseResult) {
	fmt.Printf("%-8s %-20s %8s %8s %8s %10s %10s\n",
		"strategy", "perturbation", "located", "misloc", "missed", "avg conf", "elapsed")
	for _, r := range results {
		avg := 0.0
		if r.located > 0 {
			avg = r.confSum / float64(r.located)
		}
		fmt.Printf("%-8s %-20s %8d %8d %8d %10.3f %10s\n",
			r.strategy, r.perturb, r.located, r.mislocated, r.missed, avg, r.elapsed.Round(time.Microsecond))
	}
}
