// Command capcheck parses a CAP document offline and reports whether it
// would pass the severity and boundary filters.
//
// Usage:
//
//	go run ./cmd/capcheck -cap alert.xml -boundaries ./boundaries -min-severity moderate
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/couchcryptid/cap-alert-service/internal/capxml"
	"github.com/couchcryptid/cap-alert-service/internal/domain"
	"github.com/couchcryptid/cap-alert-service/internal/geodir"
	"github.com/couchcryptid/cap-alert-service/internal/geofence"
	"github.com/couchcryptid/cap-alert-service/internal/render"
)

// phase tracks pass/fail for one check.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("capcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	capPath := fs.String("cap", "", "path to a CAP XML document")
	boundariesDir := fs.String("boundaries", "", "directory of *.geojson boundaries (empty keeps everything)")
	minSeverity := fs.String("min-severity", "minor", "minimum severity to keep")
	printJSON := fs.Bool("json", false, "print the parsed alert as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *capPath == "" {
		fs.Usage()
		return 2
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	threshold, err := domain.ParseSeverity(*minSeverity)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: %v\n", err)
		return 2
	}
	data, err := os.ReadFile(*capPath)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: read CAP: %v\n", err)
		return 1
	}
	boundaries, err := geodir.Load(context.Background(), *boundariesDir, logger)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: load boundaries: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "=== CAP Alert Check ===")
	fmt.Fprintln(stdout)

	parse := &phase{name: "Parse"}
	alert, err := capxml.Parse(*capPath, data, logger)
	if err != nil {
		parse.errorf("%v", err)
		report(stdout, parse)
		return 1
	}
	if len(alert.Polygons()) == 0 {
		parse.errorf("alert %s has no area geometry", alert.GUID)
	}

	filter := &phase{name: "Filter"}
	set := domain.NewAlertSet(alert)
	if len(geofence.BySeverity(set, threshold)) == 0 {
		filter.errorf("severity %s is below %s", alert.Info.Severity, threshold)
	}
	kept, err := geofence.ByBoundary(set, boundaries)
	switch {
	case err != nil:
		filter.errorf("%v", err)
	case len(kept) == 0:
		filter.errorf("no area touches the %d boundary polygons", len(boundaries))
	}

	report(stdout, parse, filter)
	fmt.Fprintln(stdout)
	if *printJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(alert); err != nil {
			fmt.Fprintf(stderr, "FATAL: encode alert: %v\n", err)
			return 1
		}
	} else {
		fmt.Fprintln(stdout, render.Text(set, nil))
	}

	if !parse.passed() || !filter.passed() {
		return 1
	}
	return 0
}

func report(w io.Writer, phases ...*phase) {
	for _, p := range phases {
		if p.passed() {
			fmt.Fprintf(w, "PASS  %s\n", p.name)
			continue
		}
		fmt.Fprintf(w, "FAIL  %s\n", p.name)
		for _, e := range p.errors {
			fmt.Fprintf(w, "      - %s\n", e)
		}
	}
}
