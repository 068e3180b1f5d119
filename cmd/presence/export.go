package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/MiaMao0615/AR-Accompanied/internal/config"
	"github.com/MiaMao0615/AR-Accompanied/internal/database"
	gormstorage "github.com/MiaMao0615/AR-Accompanied/internal/storage/gorm"
	"github.com/MiaMao0615/AR-Accompanied/internal/storage/memory"
)

// exportSessions converts dumped sqlite journals into the JSON export
// written by the memory backend. args[0] is a database file or a directory
// of .db dumps. An optional session id selects a session of a single file;
// otherwise the latest session of each database is exported.
func exportSessions(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("export needs a database path")
	}

	info, err := os.Stat(args[0])
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		var id uint
		if len(args) > 1 {
			n, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid session id %q: %w", args[1], err)
			}
			id = uint(n)
		}
		path, err := exportSession(args[0], id)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	dbPaths, err := database.GetBackupDBPaths(args[0])
	if err != nil {
		return nil, err
	}
	if len(dbPaths) == 0 {
		return nil, fmt.Errorf("no .db files in %s", args[0])
	}

	var exported []string
	for _, dbPath := range dbPaths {
		path, err := exportSession(dbPath, 0)
		if err != nil {
			Logger.Warn("Skipping database", "path", dbPath, "error", err)
			continue
		}
		exported = append(exported, path)
	}
	return exported, nil
}

// exportSession exports one session of dbPath. id 0 selects the latest.
func exportSession(dbPath string, id uint) (string, error) {
	db, err := database.GetSqliteDB(dbPath)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", dbPath, err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	if id == 0 {
		id, err = gormstorage.LatestSessionID(db)
		if err != nil {
			return "", err
		}
	}

	j, err := gormstorage.LoadJournal(db, id)
	if err != nil {
		return "", err
	}
	Logger.Info("Loaded session journal", "id", id, "name", j.Session.Name,
		"tracking", len(j.TrackingChanges), "transitions", len(j.Transitions),
		"motion", len(j.MotionEvents), "poses", len(j.PoseSamples))

	return memory.WriteExport(config.GetStorageConfig().Memory, j)
}
