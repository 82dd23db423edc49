// Command zerocached runs the Collection Engine as a single-node HTTP/JSON
// document store: an embedded record store paired with a per-collection
// inverted index (§1, §2).
package main

import (
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/brenik/zerocache/internal/appstate"
	"github.com/brenik/zerocache/internal/config"
	"github.com/brenik/zerocache/internal/httpapi"
	"github.com/brenik/zerocache/internal/registry"
	"github.com/brenik/zerocache/internal/store"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	settingsPath := env("ZEROCACHE_SETTINGS", "./settings.json")
	settings, err := config.Load(settingsPath, log)
	if err != nil {
		log.Fatal("failed to load settings", zap.Error(err))
	}
	snap := settings.Snapshot()

	if err := os.MkdirAll(snap.DataPath, 0o755); err != nil {
		log.Fatal("failed to create data_path", zap.Error(err))
	}
	st, err := store.Open(snap.DataPath + "/zerocache.db")
	if err != nil {
		log.Fatal("failed to open record store", zap.Error(err))
	}
	defer st.Close()

	reg, err := registry.Load(snap.IndexPath, log)
	if err != nil {
		log.Fatal("failed to load collection registry", zap.Error(err))
	}

	app := appstate.New(st, reg, settings, log)
	server := httpapi.NewServer(app)

	addr := fmt.Sprintf(":%d", snap.Port)
	log.Info("zerocached listening", zap.String("addr", addr), zap.String("data_path", snap.DataPath), zap.String("index_path", snap.IndexPath))
	if err := http.ListenAndServe(addr, server.Handler()); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}
