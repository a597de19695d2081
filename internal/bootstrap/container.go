package bootstrap

import (
	"context"
	"log"

	"support-chat-be/internal/config"
	"support-chat-be/internal/controller"
	"support-chat-be/internal/handler"
	"support-chat-be/internal/pkg/logger"
	"support-chat-be/internal/repository/unitofwork"
	"support-chat-be/internal/service"
	"support-chat-be/internal/websocket"
	"support-chat-be/pkg/events"

	pktNats "support-chat-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const eventLogTopic = "conversation_events"

type Container struct {
	// Controllers
	ConversationController controller.IConversationController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// WebSockets
	SyncHandler  *handler.SyncHandler
	WebSocketHub *websocket.Hub
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

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
		log.Printf("[WARN] Failed to connect to Redis: %v. Fan-out stays single-instance", err)
		rdb = nil
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger(cfg.App.SyncLogFilePath)
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 3. Services
	publisherService := service.NewPublisherService(eventLogTopic, pubSub)
	consumerService := service.NewConsumerService(pubSub, eventLogTopic, uowFactory)

	conversationService := service.NewConversationService(
		uowFactory,
		websocket.NewHubDelivery(wsHub),
		publisherService,
		natsPub,
		sysLogger,
	)

	// Durable audit trail of domain events. External workers (CRM sync,
	// analytics) attach their own durables to the same stream.
	if natsSub != nil {
		err := natsSub.Subscribe("conversations.>", "sync-audit", func(ctx context.Context, event events.Event) error {
			sysLogger.Info("DomainEvents", "Event observed", map[string]interface{}{
				"type":    event.EventType(),
				"payload": event.Payload(),
			})
			return nil
		})
		if err != nil {
			log.Printf("[WARN] Failed to start audit subscriber: %v", err)
		}
	}

	// 4. Handlers & Controllers
	syncHandler := handler.NewSyncHandler(conversationService, wsHub, wsLogger)

	return &Container{
		ConversationController: controller.NewConversationController(conversationService),
		ConsumerService:        consumerService,
		SyncHandler:            syncHandler,
		WebSocketHub:           wsHub,
	}
}
