package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	api "replypilot-backend/cmd/api"
	dispatchdomain "replypilot-backend/internal/dispatch/domain"
	dispatchRepo "replypilot-backend/internal/dispatch/repository"
	mailboxdomain "replypilot-backend/internal/mailbox/domain"
	mailboxRepo "replypilot-backend/internal/mailbox/repository"
	"replypilot-backend/internal/notification"
	"replypilot-backend/internal/pipeline/monitor"
	"replypilot-backend/internal/pipeline/scheduler"
	"replypilot-backend/internal/pipeline/usecase"
	"replypilot-backend/pkg/ai"
	"replypilot-backend/pkg/cache"
	"replypilot-backend/pkg/config"
	"replypilot-backend/pkg/database"
	"replypilot-backend/pkg/gmail"
)

// gmailProvider adapts the concrete Gmail service to the pipeline's provider
// interface.
type gmailProvider struct {
	service *gmail.Service
}

func (p *gmailProvider) Authorize(ctx context.Context, cred *mailboxdomain.Credential) (usecase.MailSession, error) {
	return p.service.Authorize(ctx, cred)
}

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(&mailboxdomain.MailboxWatch{}, &mailboxdomain.Credential{}, &dispatchdomain.DispatchLog{}); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	watchRepository := mailboxRepo.NewWatchRepository(db)
	credentialRepository := mailboxRepo.NewCredentialRepository(db)
	dispatchRepository := dispatchRepo.NewDispatchLogRepository(db)

	// Gmail watch registration wants the fully-qualified topic resource name.
	topicName := cfg.GooglePubSubTopic
	fullTopic := topicName
	if !strings.HasPrefix(fullTopic, "projects/") && cfg.GoogleProjectID != "" {
		fullTopic = fmt.Sprintf("projects/%s/topics/%s", cfg.GoogleProjectID, topicName)
	}
	if parts := strings.Split(topicName, "/"); len(parts) > 1 {
		topicName = parts[len(parts)-1]
	}

	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, fullTopic)
	provider := &gmailProvider{service: gmailService}

	// Initialize AI completion service
	aiService, err := ai.NewCompletionService(ai.Config{
		Provider:      ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey:  cfg.GeminiApiKey,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
	})
	if err != nil {
		log.Fatal("Failed to initialize AI service:", err)
	}

	// Thread cache doubles as the stale-read fallback under throttling.
	threadCache := cache.New(cache.DefaultTTL)

	classifier := usecase.NewClassifier(aiService)
	synthesizer := usecase.NewSynthesizer(aiService)
	dispatcher := usecase.NewDispatcher(dispatchRepository, cfg.AppURL)

	pipeline := usecase.NewPipeline(
		provider,
		watchRepository,
		credentialRepository,
		dispatchRepository,
		classifier,
		synthesizer,
		dispatcher,
		threadCache,
	)
	registrar := usecase.NewRegistrar(provider, watchRepository, credentialRepository)

	// Read-receipt monitor: one bounded polling goroutine per sent reply.
	sessionFactory := func(ctx context.Context, mailboxID string) (monitor.Session, func(), error) {
		session, err := pipeline.SessionFor(ctx, mailboxID)
		if err != nil {
			return nil, nil, err
		}
		release := func() { pipeline.PersistRefresh(mailboxID, session) }
		return session, release, nil
	}
	readMonitor := monitor.New(sessionFactory, dispatchRepository, cfg.MonitorGrace, cfg.MonitorInterval, cfg.MonitorMaxPolls)
	pipeline.SetDispatchHook(readMonitor.Start)

	// Follow-up sweeper
	followUpScheduler := scheduler.New(pipeline, dispatchRepository, cfg.FollowUpInterval, cfg.FollowUpAge)
	followUpScheduler.Start()

	// Pub/Sub pull subscriber (optional, HTTP push endpoint works without it)
	if cfg.GoogleProjectID != "" {
		notificationService, err := notification.NewService(cfg.GoogleProjectID, topicName, pipeline, cfg.GoogleCredentials)
		if err != nil {
			log.Printf("[WARN] Notification service disabled: %v", err)
		} else {
			go notificationService.Start(context.Background())
		}
	} else {
		log.Println("[WARN] GOOGLE_PROJECT_ID not set, Pub/Sub pull subscriber disabled")
	}

	handler := api.NewHandler(pipeline, registrar, dispatchRepository, cfg)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
