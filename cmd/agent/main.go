package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/agent"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/config"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/dto"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/pkg/logger"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/pkg/serverutils"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	if err := cfg.ValidateAgent(); err != nil {
		log.Fatalf("Invalid agent configuration: %v", err)
	}

	appLogger := logger.NewZapLogger("logs/agent.log", cfg.App.Environment == "production")
	defer appLogger.Sync()

	// 2. Build the Runner (providers, gateway, Coral client, listener)
	runner, err := agent.NewRunner(cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to build agent runner: %v", err)
	}

	// 3. Start the Event Stream Listener
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := runner.Listen(ctx); err != nil {
			// The listener only returns after exhausting its reconnect
			// attempts or on a terminal protocol error. Without the stream
			// the agent is deaf, so exit and let the supervisor restart.
			log.Fatalf("Event stream listener terminated: %v", err)
		}
		log.Println("Event stream closed by server, shutting down")
		cancel()
	}()

	// 4. Serve the Chat Endpoint
	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.App.CorsAllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(serverutils.ErrorHandlerMiddleware())

	app.Post("/api/chat", func(c *fiber.Ctx) error {
		var req dto.ChatRequest
		if err := c.BodyParser(&req); err != nil {
			return serverutils.NewHttpError(fiber.StatusBadRequest, "Invalid request body")
		}
		if err := serverutils.ValidateRequest(req); err != nil {
			return err
		}

		answer, err := runner.Chat(c.Context(), req.Message)
		if err != nil {
			appLogger.Error("Agent", "Chat invocation failed", map[string]interface{}{
				"error": err.Error(),
			})
			return serverutils.NewHttpError(fiber.StatusBadGateway, "Agent failed to answer")
		}
		return c.JSON(dto.ChatResponse{Response: answer})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(dto.HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().Format(time.RFC3339),
		})
	})

	log.Fatal(app.Listen(":" + cfg.Model.ChatPort))
}
