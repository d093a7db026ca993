package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/colbyharris/pcforge/internal/api"
	"github.com/colbyharris/pcforge/internal/build"
	"github.com/colbyharris/pcforge/internal/discord"
	"github.com/colbyharris/pcforge/internal/filelock"
	"github.com/colbyharris/pcforge/internal/flow"
	"github.com/colbyharris/pcforge/internal/history"
	"github.com/colbyharris/pcforge/internal/llm"
	"github.com/colbyharris/pcforge/internal/policy"
	"github.com/colbyharris/pcforge/internal/session"
	"github.com/colbyharris/pcforge/pkg/utils"
)

func main() {
	// Find env file
	envFile := ".env"
	if os.Getenv("ENV_FILE") != "" {
		envFile = os.Getenv("ENV_FILE")
	}

	// Load global config
	cfg := utils.NewConfigFromEnv(envFile)

	dataDir := cfg.GetWithDefault("DATA_DIR", "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("[MAIN]: failed to create data dir %s: %v", dataDir, err)
	}

	// Every process gets its own instance token for lock marker payloads
	instance := uuid.NewString()
	log.Printf("[MAIN]: starting instance %s", instance)

	sessionGuard := filelock.New(filepath.Join(dataDir, "sessions.lock"), instance)
	collectiveGuard := filelock.New(filepath.Join(dataDir, "collective.lock"), instance)
	auditGuard := filelock.New(filepath.Join(dataDir, "audit.lock"), instance)

	// Sweep markers left behind by a crashed holder before touching the store
	markerTTL := cfg.GetDuration("LOCK_MARKER_TTL", 10*time.Minute)
	for _, g := range []*filelock.Guard{sessionGuard, collectiveGuard, auditGuard} {
		g.ReclaimStale(markerTTL)
	}

	store := session.NewStore(filepath.Join(dataDir, "sessions.json"), sessionGuard)
	if err := store.Load(); err != nil {
		log.Fatalf("[MAIN]: failed to load sessions: %v", err)
	}

	client, err := llm.NewClient(llm.Options{
		APIKey:  cfg.Get("OPENAI_API_KEY"),
		BaseURL: cfg.Get("OPENAI_BASE_URL"),
		Model:   cfg.GetWithDefault("OPENAI_MODEL", "gpt-4o-mini"),
		Timeout: cfg.GetDuration("LLM_TIMEOUT", 30*time.Second),
	})
	if err != nil {
		log.Fatalf("[MAIN]: failed to create LLM client: %v", err)
	}

	// Deployments can override the opener with a prompt file
	greeting := utils.LoadPromptWithFallback(cfg.Get("GREETING_FILE"), build.Greeting)

	generator := build.NewGenerator(client, cfg.GetWithDefault("CATALOG_PATH", filepath.Join(dataDir, "catalog.txt")), greeting)
	if err := generator.CheckCatalog(); err != nil {
		log.Printf("[MAIN]: WARNING: %v (builds cannot be generated until this is fixed)", err)
	}

	keywords := policy.DefaultKeywords()
	if path := cfg.Get("POLICY_KEYWORDS_FILE"); path != "" {
		keywords, err = policy.LoadKeywords(path)
		if err != nil {
			log.Fatalf("[MAIN]: failed to load policy keywords: %v", err)
		}
	}

	builds := history.NewLog(filepath.Join(dataDir, "collective_builds.txt"), collectiveGuard)
	audit := history.NewAudit(filepath.Join(dataDir, "sessions_audit.txt"), auditGuard, instance)

	machine := flow.NewMachine(store, generator, keywords, builds, audit, nil)

	bot, err := discord.NewBot(cfg, machine, store, builds, client, generator)
	if err != nil {
		log.Fatalf("[MAIN]: failed to create bot: %v", err)
	}

	// Wait for interrupt signal to gracefully shut down the bot
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Background staleness eviction
	maxAge := cfg.GetDuration("SESSION_MAX_AGE", 24*time.Hour)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.GetWithDefault("EVICT_SCHEDULE", "@every 6h"), func() {
		if _, err := store.EvictStale(maxAge); err != nil {
			log.Printf("[MAIN]: stale session eviction: %v", err)
		}
	}); err != nil {
		log.Fatalf("[MAIN]: failed to schedule eviction: %v", err)
	}
	scheduler.Start()

	server := api.New(cfg, store, generator)
	go server.Start(ctx)

	log.Println("[MAIN]: Starting bot...")
	if err := bot.Start(); err != nil {
		log.Fatalf("[MAIN]: failed to start bot: %v", err)
	}

	log.Println("[MAIN]: Bot is running. Press Ctrl+C to exit.")
	<-ctx.Done()

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()

	if err := bot.Stop(); err != nil {
		log.Printf("[MAIN]: error during bot shutdown: %v", err)
	}

	if err := store.Close(); err != nil {
		log.Printf("[MAIN]: final session flush failed: %v", err)
	}

	log.Println("[MAIN]: Bot stopped gracefully")
}
