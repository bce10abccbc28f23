package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"draw-relay/internal/blob"
	"draw-relay/internal/config"
	"draw-relay/internal/db"
	"draw-relay/internal/preview"
	"draw-relay/internal/server"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()

	conn, err := db.Open()
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := db.ConfigurePool(conn, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetimeSeconds, cfg.DBConnMaxIdleTimeSeconds); err != nil {
		log.Fatalf("database pool setup failed: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	blobs, err := blob.NewFSStore(cfg.BlobDir)
	if err != nil {
		log.Fatalf("blob store setup failed: %v", err)
	}
	host := preview.NewClient(cfg.PreviewBaseURL, cfg.PreviewClientID, time.Duration(cfg.PreviewTimeoutSeconds)*time.Second)

	srv := server.New(db.NewStore(conn), blobs, host, cfg)

	addr := ":8080"
	if env := os.Getenv("PORT"); env != "" {
		addr = ":" + env
	}
	log.Printf("draw-relay server listening on %s", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatal(err)
	}
}
