package main

import (
	"context"
	"log"
	"time"

	"bptrack/models"
	"bptrack/web"

	"github.com/rohanthewiz/logger"
)

func main() {
	// Initialize logger
	logger.SetLogLevel("info")

	cfg, err := models.LoadSyncConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	// Local persistence for the mutation queue and cached records
	if err := models.InitDB(cfg.DataPath); err != nil {
		log.Fatal("Failed to initialize local storage:", err)
	}
	defer models.CloseDB()

	network := models.NewNetworkMonitor()
	facade := models.NewHTTPFacade(cfg.RemoteURL, cfg.RemoteEmail, cfg.RemotePassword, cfg.RequestTimeout)

	manager := models.NewOfflineStorageManager(cfg.UserID, facade, network)
	defer manager.Close()

	// Attempt a catch-up pass shortly after boot so queued work from a
	// previous session drains without waiting for the first mutation
	go func() {
		time.Sleep(2 * time.Second)
		if _, err := manager.SyncOfflineData(context.Background()); err != nil {
			logger.Debug("Boot sync skipped", "reason", err.Error())
		}
	}()

	srv := web.NewServer(manager)
	logger.Info("Starting BP Tracker sync server on port 8000")
	log.Fatal(web.Run(srv))
}
