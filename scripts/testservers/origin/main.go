// Command origin serves numbered plain-text resources at
// /cache/epub/{id}/pg{id}.txt for manual rangefetch runs.
//
//	go run ./scripts/testservers/origin --port 8080 --fail 7,13 --latency 50ms
//	rangefetch --url-template 'http://localhost:8080/cache/epub/{id}/pg{id}.txt' --store ./out
package main

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/torosent/rangefetch/internal/logging"
)

type options struct {
	port       int
	fail       []int
	failStatus int
	latency    time.Duration
	jitter     time.Duration
	size       int
	maxID      int
}

func main() {
	var opts options
	fs := pflag.NewFlagSet("origin", pflag.ExitOnError)
	fs.IntVar(&opts.port, "port", 8080, "Listening port")
	fs.IntSliceVar(&opts.fail, "fail", nil, "Identifiers that always fail")
	fs.IntVar(&opts.failStatus, "fail-status", http.StatusNotFound, "Status code returned for failing identifiers")
	fs.DurationVar(&opts.latency, "latency", 0, "Fixed delay added to every response")
	fs.DurationVar(&opts.jitter, "jitter", 0, "Random extra delay up to this duration")
	fs.IntVar(&opts.size, "size", 4096, "Approximate body size in bytes")
	fs.IntVar(&opts.maxID, "max-id", 0, "Identifiers above this return 404 (0 disables)")
	logLevel := fs.String("log-level", "info", "Log level")
	_ = fs.Parse(os.Args[1:])

	logger, err := logging.New(logging.Config{Level: *logLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if opts.port <= 0 {
		logger.Fatal("port must be > 0")
	}

	addr := fmt.Sprintf(":%d", opts.port)
	logger.Info("origin listening", zap.String("addr", addr), zap.Ints("fail", opts.fail))
	if err := http.ListenAndServe(addr, newHandler(opts, logger)); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newHandler(opts options, logger *zap.Logger) http.Handler {
	failing := make(map[int]bool, len(opts.fail))
	for _, id := range opts.fail {
		failing[id] = true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /cache/epub/{id}/{file}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil || id < 1 || r.PathValue("file") != fmt.Sprintf("pg%d.txt", id) {
			http.NotFound(w, r)
			return
		}

		delay := opts.latency
		if opts.jitter > 0 {
			delay += rand.N(opts.jitter)
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		if failing[id] || (opts.maxID > 0 && id > opts.maxID) {
			logger.Debug("rejecting", zap.Int("id", id), zap.Int("status", opts.failStatus))
			http.Error(w, http.StatusText(opts.failStatus), opts.failStatus)
			return
		}

		body := renderBook(id, opts.size)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write([]byte(body))
		logger.Debug("served", zap.Int("id", id), zap.Int("bytes", len(body)))
	})
	return mux
}

func renderBook(id, size int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The Project Sample EBook #%d\n\n", id)
	line := fmt.Sprintf("This is line text for sample book %d.\n", id)
	for b.Len() < size {
		b.WriteString(line)
	}
	return b.String()
}
