package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/rcliao/tiermem/internal/lifecycle"
	"github.com/rcliao/tiermem/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run maintenance in the background and expose metrics",
		Long: "Keep the store loaded, run cleanup, compression, statistics and autosave " +
			"on their intervals, and serve /metrics, /healthz, /stats and /memories/{id} " +
			"until interrupted. A final snapshot is written on shutdown.",
		Run: runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default from config)")
	if err := v.BindPFlag("server.addr", cmd.Flags().Lookup("addr")); err != nil {
		panic(err)
	}

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	rt := mustOpen(cmd.Context())
	defer rt.Close()
	logger := rt.logger

	mgr := lifecycle.New(rt.store, rt.gateway, lifecycle.IntervalsFromConfig(rt.cfg),
		lifecycle.WithLogger(logger), lifecycle.WithMetrics(rt.metrics))

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	rt.store.RefreshStats()
	mgr.Start(runCtx)

	httpServer := &http.Server{
		Addr:    rt.cfg.Server.Addr,
		Handler: newRouter(rt),
	}
	go func() {
		logger.Info("server listening", "addr", rt.cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "err", err)
		_ = httpServer.Close()
	}
	if err := mgr.Stop(shutdownCtx); err != nil {
		logger.Error("final save failed", "err", err)
	}
	logger.Info("shutdown complete")
}

func newRouter(rt *runtime) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "memories": rt.store.Len()})
	})
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, rt.store.Stats())
	})
	r.Handle("/metrics", rt.metrics.Handler())
	r.Get("/memories/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		m, err := rt.store.Get(req.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		md, _ := rt.store.Metadata(id)
		writeJSON(w, http.StatusOK, map[string]any{"memory": m, "metadata": md})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, val any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	printJSON(w, val)
}
