package controller

import (
	"time"

	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/dto"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/pkg/serverutils"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/service"
	ws "github.com/FazeelAhmedKhan-dev/RegiSphere/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

type IPipelineController interface {
	RegisterRoutes(r fiber.Router)
	Upload(ctx *fiber.Ctx) error
	Status(ctx *fiber.Ctx) error
	Report(ctx *fiber.Ctx) error
	AgentsStatus(ctx *fiber.Ctx) error
}

type pipelineController struct {
	service service.IPipelineService
	hub     *ws.Hub
}

func NewPipelineController(service service.IPipelineService, hub *ws.Hub) IPipelineController {
	return &pipelineController{service: service, hub: hub}
}

func (c *pipelineController) RegisterRoutes(r fiber.Router) {
	r.Post("/projects/upload", c.Upload)
	r.Get("/pipeline/:id/status", c.Status)
	r.Get("/pipeline/:id/report", c.Report)
	r.Get("/agents/status", c.AgentsStatus)

	if c.hub != nil {
		r.Get("/pipeline/:id/ws", websocket.New(func(conn *websocket.Conn) {
			sessionID, err := uuid.Parse(conn.Params("id"))
			if err != nil {
				conn.Close()
				return
			}
			ws.ServeWs(c.hub, conn, sessionID)
		}))
	}
}

func (c *pipelineController) Upload(ctx *fiber.Ctx) error {
	var req dto.ProjectUpload
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.NewHttpError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Upload(ctx.Context(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(res)
}

func (c *pipelineController) Status(ctx *fiber.Ctx) error {
	res, err := c.service.GetStatus(ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}

func (c *pipelineController) Report(ctx *fiber.Ctx) error {
	report, err := c.service.GetReport(ctx.Params("id"))
	if err != nil {
		return err
	}
	if report == nil {
		return ctx.JSON(fiber.Map{"message": "Report generation in progress"})
	}
	return ctx.JSON(report)
}

func (c *pipelineController) AgentsStatus(ctx *fiber.Ctx) error {
	res, err := c.service.AgentsStatus(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}

// HealthController serves the root and health probes.
type IHealthController interface {
	RegisterRoutes(app *fiber.App)
}

type healthController struct {
	agentService service.IAgentService
}

func NewHealthController(agentService service.IAgentService) IHealthController {
	return &healthController{agentService: agentService}
}

func (c *healthController) RegisterRoutes(app *fiber.App) {
	app.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message": "RegiSphere Backend API is running",
			"status":  "healthy",
		})
	})
	app.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.JSON(dto.HealthResponse{
			Status:       "healthy",
			Timestamp:    time.Now().Format(time.RFC3339),
			AgentService: c.agentService.Health(ctx.Context()),
		})
	})
}
