package bootstrap

import (
	"context"
	"log"

	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/config"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/controller"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/pkg/logger"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/service"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/websocket"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/coral"
	pktNats "github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/nats"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/tracker"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

const pipelineJobTopic = "PIPELINE_JOBS"

type Container struct {
	// Controllers
	PipelineController controller.IPipelineController
	HealthController   controller.IHealthController

	// Background Services (Exposed for main.go to run)
	PipelineService service.IPipelineService

	// WebSockets
	WebSocketHub *websocket.Hub
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus (in-process job bus)
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 2.5 Infrastructure
	// NATS (optional: pipeline lifecycle events)
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}

	// Redis (optional: cross-instance websocket fanout)
	var rdb *redis.Client
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb = redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
		rdb = nil
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/pipeline_ws.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 3. Clients
	coralClient := coral.NewClient(
		cfg.Coral.BaseURL,
		cfg.Coral.ApplicationID,
		cfg.Coral.PrivacyKey,
		cfg.Coral.RequestTimeout,
	)

	// 4. Services
	publisherService := service.NewPublisherService(pipelineJobTopic, pubSub)
	agentService := service.NewAgentService(cfg.Agent, sysLogger)

	registry := tracker.New()

	var eventPub service.IEventPublisher
	if natsPub != nil {
		eventPub = natsPub
	}

	pipelineService := service.NewPipelineService(
		registry,
		publisherService,
		pubSub,
		pipelineJobTopic,
		coralClient,
		agentService,
		cfg.Coral.AgentID,
		wsHub,
		eventPub,
		sysLogger,
	)

	// 5. Controllers
	return &Container{
		PipelineController: controller.NewPipelineController(pipelineService, wsHub),
		HealthController:   controller.NewHealthController(agentService),
		PipelineService:    pipelineService,
		WebSocketHub:       wsHub,
	}
}
