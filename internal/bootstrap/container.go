package bootstrap

import (
	"context"
	"log"

	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/config"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/controller"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/handler"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/pkg/logger"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/pkg/mailer"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/implementation"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/memory"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/unitofwork"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/service"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/websocket"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/dbexec"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/llm/factory"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/sqlgen"

	pktNats "github.com/DarshilChauhan1/sql-query-builder-llm/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	AuthController         controller.IAuthController
	WorkspaceController    controller.IWorkspaceController
	ConversationController controller.IConversationController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// WebSockets & Notification
	NotificationHandler *handler.NotificationHandler
	WebSocketHub        *websocket.Hub
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	emailService := mailer.NewEmailService(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Email,
		cfg.SMTP.Password,
		cfg.SMTP.SenderName,
	)

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// Initialize LLM Provider based on Config
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
		cfg.Ai.OpenAIKey,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// Query engine
	driverRegistry := dbexec.NewRegistry()
	executor := dbexec.NewExecutor(driverRegistry, cfg.Query.MaxResultRows)
	introspector := dbexec.NewIntrospector(driverRegistry)
	generator := sqlgen.NewGenerator(llmProvider)
	schemaCache := memory.NewSchemaCache()

	// 2.5 Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/notification.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 3. Services
	publisherService := service.NewPublisherService(cfg.Query.RefreshSchemaTopic, pubSub)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.Query.RefreshSchemaTopic,
		uowFactory,
		introspector,
		schemaCache,
		natsPub,
	)

	authService := service.NewAuthService(uowFactory, emailService)
	workspaceService := service.NewWorkspaceService(
		uowFactory,
		introspector,
		schemaCache,
		publisherService,
		sysLogger,
	)
	conversationService := service.NewConversationService(
		uowFactory,
		llmProvider,
		generator,
		executor,
		schemaCache,
		natsPub,
		sysLogger,
	)

	// 3.5 Notification System
	notifRepo := implementation.NewNotificationRepository(db)
	notifService := service.NewNotificationService(notifRepo, natsSub, wsHub, wsLogger)

	if natsSub != nil {
		go notifService.Start()
	}

	notifHandler := handler.NewNotificationHandler(notifRepo, wsHub, wsLogger)

	// 4. Controllers
	return &Container{
		NotificationHandler:    notifHandler,
		WebSocketHub:           wsHub,
		AuthController:         controller.NewAuthController(authService),
		WorkspaceController:    controller.NewWorkspaceController(workspaceService),
		ConversationController: controller.NewConversationController(conversationService, sysLogger),

		ConsumerService: consumerService,
	}
}
