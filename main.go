package main

import (
	"github.com/wfunc/settlers/config"
	"github.com/wfunc/settlers/logger"
	"github.com/wfunc/settlers/monitor"
	"github.com/wfunc/settlers/persistence"
	"github.com/wfunc/settlers/room"
	"github.com/wfunc/settlers/server"
	"github.com/wfunc/settlers/services"
)

func main() {
	// Initialize logger
	logger.Init()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize save store
	store, err := persistence.NewFileStore(cfg.Saves.Dir)
	if err != nil {
		logger.Log.Fatalf("Failed to open saves directory: %v", err)
	}

	limits := room.Limits{
		MinPlayers: cfg.Game.MinPlayers,
		MaxPlayers: cfg.Game.MaxPlayers,
		HistoryCap: cfg.Saves.HistoryCap,
	}
	gameServer := server.NewGameServer(cfg.Server.HTTPAddress, limits, store)

	// Finished games are archived only when a database is configured.
	if cfg.Archive.Host != "" {
		archive, err := persistence.NewGormArchive(
			cfg.Archive.Host,
			cfg.Archive.Port,
			cfg.Archive.User,
			cfg.Archive.Password,
			cfg.Archive.DBName,
		)
		if err != nil {
			logger.Log.Fatalf("Failed to connect to archive database: %v", err)
		}
		defer archive.Close()
		gameServer.SetRecorder(services.NewRecordService(archive))
		logger.Log.Info("Archive database connection successful.")
	}

	mon := monitor.NewMonitor("settlers")
	mon.StartServer(cfg.Server.MonitorAddress)
	gameServer.SetMonitor(mon)

	// Start Server
	logger.Log.Infof("Starting game server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
