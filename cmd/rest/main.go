package main

import (
	"context"
	"log"

	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/bootstrap"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/config"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/server"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg)

	// 3. Start Background Services
	go func() {
		log.Println("Background: Starting Pipeline Worker...")
		if err := container.PipelineService.Consume(context.Background()); err != nil {
			log.Printf("Background Pipeline Worker Error: %v", err)
		}
	}()

	// 4. Initialize Server
	srv := server.New(cfg, container)

	// 5. Run Server
	log.Fatal(srv.Run())
}
