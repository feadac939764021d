// Command wf-engine runs the workflow engine's HTTP service: process wiring
// (structured logging, router construction, graceful shutdown) follows
// albert-saclot-workflow-go-challenge's api/main.go, the one complete
// process-entrypoint example in the retrieval pack.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/dshills/wf-engine/api"
	"github.com/dshills/wf-engine/compiler"
	"github.com/dshills/wf-engine/engine"
	"github.com/dshills/wf-engine/engine/emit"
)

// buildEmitter selects the event sink via WF_ENGINE_EMITTER: "log" for
// human/JSON-readable stdout logging, "buffered" for in-memory history
// retained for the process lifetime, "otel" for OpenTelemetry spans, or
// unset/anything else for no event emission at all.
func buildEmitter() emit.Emitter {
	switch os.Getenv("WF_ENGINE_EMITTER") {
	case "log":
		return emit.NewLogEmitter(os.Stdout, true)
	case "buffered":
		return emit.NewBufferedEmitter()
	case "otel":
		return emit.NewOTelEmitter(otel.Tracer("wf-engine"))
	default:
		return emit.NewNullEmitter()
	}
}

func main() {
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(logHandler))

	addr := os.Getenv("WF_ENGINE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	emitter := buildEmitter()

	var metrics *engine.PrometheusMetrics
	if os.Getenv("WF_ENGINE_METRICS") != "" {
		metrics = engine.NewPrometheusMetrics(prometheus.DefaultRegisterer)
	}

	svc := api.NewService(compiler.DefaultCompileContext(), emitter, metrics)

	root := mux.NewRouter()
	svc.LoadRoutes(root)
	if metrics != nil {
		root.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-Request-ID"}),
	)(root)

	srv := &http.Server{
		Addr:    addr,
		Handler: corsHandler,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("starting wf-engine service", "addr", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
		}
	case sig := <-shutdown:
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("could not stop server gracefully", "error", err)
			_ = srv.Close()
		}
	}
}
