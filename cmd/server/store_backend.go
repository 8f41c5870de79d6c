package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"terrastream.ai/internal/persistence/regiondb"
	"terrastream.ai/internal/sim/terrain/region"
)

func openStore(backend, dataDir string, logger *log.Logger) (region.Store, func(), error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		backend = strings.ToLower(strings.TrimSpace(os.Getenv("TERRASTREAM_STORE_BACKEND")))
	}
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "memory", "mem":
		logger.Printf("region store: memory (regions are lost on restart)")
		return region.NewMemStore(), func() {}, nil
	case "sqlite":
		dbPath := filepath.Join(dataDir, "regions.sqlite")
		db, err := regiondb.Open(dbPath, log.New(logger.Writer(), "[regiondb] ", log.LstdFlags|log.Lmicroseconds))
		if err != nil {
			return nil, nil, err
		}
		logger.Printf("region store: sqlite %s", dbPath)
		return db, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend: %s", backend)
	}
}
