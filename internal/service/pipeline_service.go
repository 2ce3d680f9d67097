package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/dto"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/pkg/logger"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/pkg/serverutils"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/websocket"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/coral"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/events"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/tracker"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ICoralClient is the slice of the protocol client the pipeline needs.
type ICoralClient interface {
	CreateSession(ctx context.Context, sessionID string, agents []coral.AgentSpec, groups [][]string, customTools map[string]interface{}) (*coral.Session, error)
	CreateThread(ctx context.Context, sessionID, actingAgentID, name string, participantIDs []string) (*coral.Thread, error)
	SendMessage(ctx context.Context, sessionID, threadID, content string, mentions []string, actingAgentID string) (coral.Ack, error)
	ListAgents(ctx context.Context) ([]map[string]interface{}, error)
}

// IEventPublisher publishes pipeline lifecycle events to the external bus.
type IEventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type IPipelineService interface {
	Upload(ctx context.Context, project *dto.ProjectUpload) (*dto.UploadResponse, error)
	GetStatus(sessionID string) (*dto.PipelineStatusResponse, error)
	GetReport(sessionID string) (*tracker.Report, error)
	AgentsStatus(ctx context.Context) (*dto.AgentsStatusResponse, error)
	Consume(ctx context.Context) error
}

type pipelineService struct {
	registry  *tracker.Tracker
	publisher IPublisherService
	pubSub    *gochannel.GoChannel
	topicName string
	coral     ICoralClient
	agent     IAgentService
	agentID   string
	hub       *websocket.Hub
	eventPub  IEventPublisher
	logger    logger.ILogger
}

func NewPipelineService(
	registry *tracker.Tracker,
	publisher IPublisherService,
	pubSub *gochannel.GoChannel,
	topicName string,
	coralClient ICoralClient,
	agentService IAgentService,
	coralAgentID string,
	hub *websocket.Hub,
	eventPub IEventPublisher,
	log logger.ILogger,
) IPipelineService {
	return &pipelineService{
		registry:  registry,
		publisher: publisher,
		pubSub:    pubSub,
		topicName: topicName,
		coral:     coralClient,
		agent:     agentService,
		agentID:   coralAgentID,
		hub:       hub,
		eventPub:  eventPub,
		logger:    log,
	}
}

// DefaultSteps returns the four canonical pipeline steps, all pending.
func DefaultSteps() []tracker.Step {
	return []tracker.Step{
		{ID: "1", Name: "Repo Understanding Agent", Status: tracker.StepPending, Message: "Waiting to start..."},
		{ID: "2", Name: "Compliance Rules Checker", Status: tracker.StepPending, Message: "Waiting to start..."},
		{ID: "3", Name: "Risk Analyzer", Status: tracker.StepPending, Message: "Waiting to start..."},
		{ID: "4", Name: "Report Generator", Status: tracker.StepPending, Message: "Waiting to start..."},
	}
}

// Upload registers the job and kicks off background processing via the bus.
func (ps *pipelineService) Upload(ctx context.Context, project *dto.ProjectUpload) (*dto.UploadResponse, error) {
	sessionID := uuid.New().String()

	if err := ps.registry.Create(sessionID, DefaultSteps()); err != nil {
		return nil, err
	}

	job := &dto.PipelineJobMessage{
		SessionID: sessionID,
		Project:   *project,
	}
	if err := ps.publisher.PublishJob(ctx, job); err != nil {
		ps.registry.SetError(sessionID, err.Error())
		ps.registry.SetStatus(sessionID, tracker.StatusError)
		return nil, err
	}

	ps.logger.Info("Pipeline", "Project uploaded, pipeline started", map[string]interface{}{
		"session_id": sessionID,
		"repository": project.ProjectURL,
	})

	return &dto.UploadResponse{
		SessionID: sessionID,
		Message:   "Project uploaded successfully. Analysis pipeline started.",
		Status:    "processing",
	}, nil
}

func (ps *pipelineService) GetStatus(sessionID string) (*dto.PipelineStatusResponse, error) {
	status, err := ps.registry.GetStatus(sessionID)
	if err != nil {
		return nil, err
	}
	return &dto.PipelineStatusResponse{
		SessionID: sessionID,
		Status:    status.Status,
		Steps:     status.Steps,
		Progress:  status.Progress,
	}, nil
}

func (ps *pipelineService) GetReport(sessionID string) (*tracker.Report, error) {
	session, err := ps.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != tracker.StatusCompleted {
		return nil, serverutils.NewHttpError(fiber.StatusBadRequest, "Pipeline not completed yet")
	}
	return session.Report, nil
}

func (ps *pipelineService) AgentsStatus(ctx context.Context) (*dto.AgentsStatusResponse, error) {
	res := &dto.AgentsStatusResponse{
		AgentService: ps.agent.Health(ctx),
	}
	if ps.coral != nil {
		agents, err := ps.coral.ListAgents(ctx)
		if err != nil {
			ps.logger.Warn("Pipeline", "Failed to list Coral agents", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			res.Agents = agents
		}
	}
	return res, nil
}

// Consume subscribes to the job bus and drives each job's pipeline in a
// background goroutine. Exactly one worker mutates a given session.
func (ps *pipelineService) Consume(ctx context.Context) error {
	messages, err := ps.pubSub.Subscribe(ctx, ps.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			ps.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (ps *pipelineService) processMessage(ctx context.Context, msg *message.Message) {
	var job dto.PipelineJobMessage
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		ps.logger.Error("Pipeline", "Failed to unmarshal job message", map[string]interface{}{
			"error": err.Error(),
		})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}
	msg.Ack()

	go ps.process(ctx, &job)
}

// process runs one job end to end. The downstream agent call carries no
// deadline beyond the HTTP client's own timeouts; a stuck agent holds the
// session in processing.
func (ps *pipelineService) process(ctx context.Context, job *dto.PipelineJobMessage) {
	sid := job.SessionID
	ps.logger.Info("Pipeline", "Starting compliance assessment", map[string]interface{}{
		"session_id": sid,
		"repository": job.Project.ProjectURL,
	})

	ps.registry.SetStatus(sid, tracker.StatusProcessing)
	ps.notify(sid)
	ps.publishEvent(ctx, events.TypePipelineStarted, sid, map[string]interface{}{
		"repository_url": job.Project.ProjectURL,
	})

	if err := ps.openCoralThread(ctx, job); err != nil {
		ps.fail(ctx, sid, err)
		return
	}

	// The interface agent orchestrates all worker agents; the steps track
	// its phases.
	ps.updateStep(ctx, sid, "1", tracker.StepRunning, "Interface Agent analyzing repository...")
	ps.updateStep(ctx, sid, "2", tracker.StepRunning, "FirecrawlMCP fetching compliance standards...")
	ps.updateStep(ctx, sid, "3", tracker.StepRunning, "OpenDeepResearch conducting analysis...")
	ps.updateStep(ctx, sid, "4", tracker.StepRunning, "RepoUnderstanding processing codebase...")

	report, err := ps.agent.Query(ctx, job.Project.ProjectURL)
	if err != nil {
		ps.fail(ctx, sid, err)
		return
	}

	ps.updateStep(ctx, sid, "1", tracker.StepDone, "Repository structure analyzed")
	ps.updateStep(ctx, sid, "2", tracker.StepDone, "Compliance standards identified")
	ps.updateStep(ctx, sid, "3", tracker.StepDone, "Risk assessment completed")
	ps.updateStep(ctx, sid, "4", tracker.StepDone, "Comprehensive report generated")

	ps.registry.SetReport(sid, &tracker.Report{
		Content:       report,
		GeneratedAt:   time.Now(),
		RepositoryURL: job.Project.ProjectURL,
		ProjectType:   job.Project.ProjectType,
	})
	ps.registry.SetStatus(sid, tracker.StatusCompleted)
	ps.notify(sid)
	ps.publishEvent(ctx, events.TypePipelineCompleted, sid, nil)

	ps.logger.Info("Pipeline", "Compliance assessment completed", map[string]interface{}{
		"session_id": sid,
	})
}

// openCoralThread registers the session's agent graph with the Coral server
// and sends the kickoff message mentioning the interface agent.
func (ps *pipelineService) openCoralThread(ctx context.Context, job *dto.PipelineJobMessage) error {
	if ps.coral == nil {
		return nil
	}
	sid := job.SessionID

	agents := []coral.AgentSpec{
		{"id": ps.agentID, "description": "Interface agent orchestrating the compliance assessment"},
		{"id": "firecrawl", "description": "Fetches compliance standards"},
		{"id": "opendeepresearch", "description": "Conducts compliance research"},
		{"id": "repounderstanding", "description": "Analyzes repository structure"},
	}

	if _, err := ps.coral.CreateSession(ctx, sid, agents, nil, nil); err != nil {
		return fmt.Errorf("create coral session: %w", err)
	}

	thread, err := ps.coral.CreateThread(ctx, sid, ps.agentID, "compliance-"+sid,
		[]string{ps.agentID, "firecrawl", "opendeepresearch", "repounderstanding"})
	if err != nil {
		return fmt.Errorf("create coral thread: %w", err)
	}

	kickoff := fmt.Sprintf("Analyze this repo: %s", job.Project.ProjectURL)
	if _, err := ps.coral.SendMessage(ctx, sid, thread.ID, kickoff, []string{ps.agentID}, ps.agentID); err != nil {
		return fmt.Errorf("send kickoff message: %w", err)
	}
	return nil
}

func (ps *pipelineService) fail(ctx context.Context, sid string, err error) {
	ps.logger.Error("Pipeline", "Pipeline processing failed", map[string]interface{}{
		"session_id": sid,
		"error":      err.Error(),
	})
	ps.registry.SetError(sid, err.Error())
	ps.registry.SetStatus(sid, tracker.StatusError)
	ps.notify(sid)
	ps.publishEvent(ctx, events.TypePipelineFailed, sid, map[string]interface{}{
		"error": err.Error(),
	})
}

func (ps *pipelineService) updateStep(ctx context.Context, sid, stepID, status, message string) {
	ps.registry.UpdateStep(sid, stepID, status, message)
	ps.notify(sid)
	ps.publishEvent(ctx, events.TypePipelineStep, sid, map[string]interface{}{
		"step_id": stepID,
		"status":  status,
	})
}

// notify pushes the session's current state to websocket subscribers.
func (ps *pipelineService) notify(sid string) {
	if ps.hub == nil {
		return
	}
	id, err := uuid.Parse(sid)
	if err != nil {
		return
	}
	status, err := ps.registry.GetStatus(sid)
	if err != nil {
		return
	}
	ps.hub.Send(id, dto.PipelineUpdate{
		SessionID: sid,
		Status:    status.Status,
		Steps:     status.Steps,
		Progress:  status.Progress,
	})
}

// publishEvent is best effort: a down event bus never fails a pipeline.
func (ps *pipelineService) publishEvent(ctx context.Context, eventType, sid string, data map[string]interface{}) {
	if ps.eventPub == nil {
		return
	}
	event := events.NewPipelineEvent(eventType, sid, data)
	if err := ps.eventPub.Publish(ctx, event); err != nil {
		ps.logger.Warn("Pipeline", "Failed to publish pipeline event", map[string]interface{}{
			"event": eventType,
			"error": err.Error(),
		})
	}
}
