// Command progressd runs the fabric's core process: broker, audit
// chain, and both client fan-out transports behind one HTTP server.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cncaiprojem/progressd/internal/audit"
	"github.com/cncaiprojem/progressd/internal/config"
	"github.com/cncaiprojem/progressd/internal/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to a JSON configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("failed to build server: %v", err)
	}

	if cfg.Audit.Store == "postgres" && cfg.Audit.PostgresDSN != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Audit.PostgresDSN)
		if err != nil {
			log.Fatalf("failed to connect to audit postgres DSN: %v", err)
		}
		defer pool.Close()
		srv.WithPostgresAudit(audit.NewPostgresStore(pool))
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
