package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/lightning-goats/cl-hive-sub000/internal/config"
	"github.com/lightning-goats/cl-hive-sub000/internal/gateway"
	"github.com/lightning-goats/cl-hive-sub000/internal/kernel"
	"github.com/lightning-goats/cl-hive-sub000/internal/operator"
	"github.com/lightning-goats/cl-hive-sub000/internal/plugin"
	"github.com/lightning-goats/cl-hive-sub000/internal/scheduler"
	"github.com/lightning-goats/cl-hive-sub000/internal/store"
)

func main() {
	log.Println("Starting hive fleet-coordination agent...")

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	selfPubkey := requireEnv("HIVE_SELF_PUBKEY")
	socketPath := requireEnv("HIVE_GATEWAY_SOCKET")

	ctx := context.Background()

	db, err := store.Connect(ctx, cfg.StoreDSN)
	if err != nil {
		log.Fatalf("FATAL: failed to connect to store: %v", err)
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		log.Fatalf("FATAL: schema init failed: %v", err)
	}

	gw := gateway.NewClient(gateway.Config{
		SocketPath:   socketPath,
		CallTimeout:  10 * time.Second,
		MaxFailures:  cfg.MaxFailures,
		ResetTimeout: time.Duration(cfg.ResetTimeoutSeconds) * time.Second,
	})

	k := kernel.New(cfg, db, gw, selfPubkey)

	hub := operator.NewHub()
	go hub.Run()

	sched := scheduler.New(cfg, db, k.Intent, k.Expansion, k.Gossip, k.Settlement, selfPubkey)
	schedCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(schedCtx)

	pluginSrv := plugin.NewServer(k, selfPubkey, cfg.MaxMessageBytes, os.Stdin, os.Stdout)
	go func() {
		if err := pluginSrv.Run(schedCtx); err != nil {
			log.Printf("plugin transport stopped: %v", err)
		}
	}()

	r := operator.SetupRouter(cfg, db, k, hub)

	port := getEnvOrDefault("PORT", "7339")
	log.Printf("Operator API listening on :%s (governance_mode=%s)", port, cfg.GovernanceMode)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("FATAL: operator API stopped: %v", err)
	}
}

func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: required environment variable %s is not set", key)
	}
	return val
}

func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
