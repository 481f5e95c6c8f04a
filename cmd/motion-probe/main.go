package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/motionscore/internal/probe"
	"github.com/okian/motionscore/pkg/logger"
)

// Default configuration constants.
const (
	defaultFrames      = 60
	defaultPerLevel    = 20
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		apiKey     = flag.String("key", os.Getenv("MOTIONSCORE_PROBE_KEY"), "Device API key (X-API-Key)")
		motion     = flag.String("motion", "probe_motion", "Motion type to exercise")
		channels   = flag.String("channels", "ax,ay,az,gx,gy,gz", "Comma separated channel schema")
		employees  = flag.String("employees", "E001", "Comma separated employee numbers")
		frames     = flag.Int("frames", defaultFrames, "Frames per recording")
		levels     = flag.String("levels", "0,0.1,0.3,1", "Comma separated noise levels")
		perLevel   = flag.Int("per-level", defaultPerLevel, "Evaluations per noise level")
		workers    = flag.Int("workers", runtime.NumCPU(), "Number of concurrent requests")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed       = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
		setup      = flag.Bool("setup", true, "Create the motion type and upload exemplars first")
		outputFile = flag.String("output", "", "YAML report file")
		logFormat  = flag.String("log-format", "text", "Log format: text or json")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*logFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(2)
	}

	noise, err := parseLevels(*levels)
	if err != nil {
		os.Stderr.WriteString("invalid -levels: " + err.Error() + "\n")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	cfg := &probe.Config{
		BaseURL:    strings.TrimRight(*baseURL, "/"),
		APIKey:     *apiKey,
		MotionName: *motion,
		Channels:   splitList(*channels),
		Employees:  splitList(*employees),
		Frames:     *frames,
		Levels:     noise,
		PerLevel:   *perLevel,
		Workers:    *workers,
		Timeout:    *timeout,
		Seed:       *seed,
		Setup:      *setup,
		OutputFile: *outputFile,
	}

	if _, err := probe.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "probe failed", logger.Error(err))
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseLevels returns the noise levels in ascending order.
func parseLevels(s string) ([]float64, error) {
	parts := splitList(s)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	sort.Float64s(out)
	return out, nil
}
