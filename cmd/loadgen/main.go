package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/okian/podium/internal/loadgen"
	"github.com/okian/podium/pkg/logger"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		users       = flag.Int("users", loadgen.DefaultUsers, "Number of distinct users")
		submissions = flag.Int("submissions", loadgen.DefaultSubmissions, "Number of scores to submit")
		categories  = flag.String("categories", "chess,darts", "Comma separated category ids; they must exist")
		maxValue    = flag.Int64("max-value", loadgen.DefaultMaxValue, "Largest random score value")
		workers     = flag.Int("workers", runtime.NumCPU()*2, "Number of concurrent workers")
		topN        = flag.Int("top", loadgen.DefaultTopN, "Entries fetched per board for the order check")
		timeout     = flag.Duration("timeout", loadgen.DefaultTimeout, "HTTP request timeout")
		logFormat   = flag.String("log-format", logger.FormatText, "Log format: text or json")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*logFormat)); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	var cats []string
	for _, c := range strings.Split(*categories, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, c)
		}
	}

	_, err := loadgen.Run(ctx, loadgen.Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Users:       *users,
		Submissions: *submissions,
		Categories:  cats,
		MaxValue:    *maxValue,
		Workers:     *workers,
		TopN:        *topN,
		Timeout:     *timeout,
	})
	if err != nil {
		logger.Get().Error(ctx, "load run failed", logger.Error(err))
		os.Exit(1)
	}
}
