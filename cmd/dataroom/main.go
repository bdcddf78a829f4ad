package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wilson/dataroom/internal/agent"
	"github.com/wilson/dataroom/internal/charts"
	"github.com/wilson/dataroom/internal/gateway"
	"github.com/wilson/dataroom/internal/observability"
	"github.com/wilson/dataroom/internal/store"
	"github.com/wilson/dataroom/pkg/config"
)

func main() {
	observability.PrintBanner()

	// Serialize log output with banner writes.
	log.SetOutput(observability.NewTermWriter())

	cfg := config.LoadConfig("config.json")

	tgCfg, ok := cfg.GetTelegramConfig()
	if !ok {
		log.Fatal("Telegram gateway is not enabled or token is missing")
	}

	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		log.Fatal("No enabled provider found in config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	planner, err := agent.NewPlannerAgent(ctx, pName, pCfg.Model)
	if err != nil {
		log.Fatal(err)
	}

	audit, err := store.NewAuditStore(cfg.App.AuditDB)
	if err != nil {
		log.Fatal(err)
	}
	defer audit.Close()

	logger := observability.NewLogger()
	renderer := charts.NewRenderer(cfg.App.ChartsDir)

	// One orchestrator per chat session; the executor is per-session
	// too since it caches the active table.
	registry := agent.NewSessionRegistry(func(sessionID string) *agent.Orchestrator {
		executor := agent.NewLocalExecutor(renderer)
		return agent.NewOrchestrator(sessionID, planner, executor, audit, logger, cfg.Memory.MaxMessages)
	})

	tg, err := gateway.NewTelegramGateway(tgCfg.Token, registry, logger)
	if err != nil {
		log.Fatal(err)
	}

	observability.PrintStartupStatus(pName, pCfg.Model)

	go func() {
		if err := tg.Start(); err != nil {
			log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
			stop()
		}
	}()

	<-ctx.Done()

	_ = tg.Stop()

	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("data room shut down")
}
