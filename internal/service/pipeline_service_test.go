package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/dto"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/pkg/logger"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/pkg/serverutils"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/coral"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/tracker"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCoral struct {
	mu       sync.Mutex
	sessions int
	threads  int
	messages int
}

func (f *fakeCoral) CreateSession(ctx context.Context, sessionID string, agents []coral.AgentSpec, groups [][]string, customTools map[string]interface{}) (*coral.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions++
	return &coral.Session{SessionID: sessionID}, nil
}

func (f *fakeCoral) CreateThread(ctx context.Context, sessionID, actingAgentID, name string, participantIDs []string) (*coral.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads++
	return &coral.Thread{ID: "thread-" + sessionID, Name: name}, nil
}

func (f *fakeCoral) SendMessage(ctx context.Context, sessionID, threadID, content string, mentions []string, actingAgentID string) (coral.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages++
	return coral.Ack{}, nil
}

func (f *fakeCoral) ListAgents(ctx context.Context) ([]map[string]interface{}, error) {
	return []map[string]interface{}{{"id": "interface"}}, nil
}

type fakeAgent struct {
	reply string
	err   error
}

func (f *fakeAgent) Query(ctx context.Context, repoURL string) (string, error) {
	return f.reply, f.err
}

func (f *fakeAgent) Health(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{"status": "reachable"}
}

func newTestPipeline(t *testing.T, agent IAgentService) (IPipelineService, *tracker.Tracker, *fakeCoral) {
	t.Helper()
	registry := tracker.New()
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	publisher := NewPublisherService("PIPELINE_JOBS", pubSub)
	coralClient := &fakeCoral{}
	svc := NewPipelineService(registry, publisher, pubSub, "PIPELINE_JOBS",
		coralClient, agent, "interface", nil, nil, logger.NewNopLogger())
	return svc, registry, coralClient
}

func waitForStatus(t *testing.T, svc IPipelineService, sessionID, want string) *dto.PipelineStatusResponse {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, err := svc.GetStatus(sessionID)
		require.NoError(t, err)
		if status.Status == want {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s never reached status %q", sessionID, want)
	return nil
}

func TestPipelineRunsToCompletion(t *testing.T) {
	svc, _, coralClient := newTestPipeline(t, &fakeAgent{reply: "OK report"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Consume(ctx))

	upload := &dto.ProjectUpload{
		ProjectName: "acme",
		ProjectType: "web",
		ProjectURL:  "https://github.com/acme/repo",
	}
	res, err := svc.Upload(ctx, upload)
	require.NoError(t, err)
	assert.Equal(t, "processing", res.Status)
	_, err = uuid.Parse(res.SessionID)
	assert.NoError(t, err, "session id should be a uuid")

	status := waitForStatus(t, svc, res.SessionID, tracker.StatusCompleted)
	assert.Equal(t, 100, status.Progress)
	for _, step := range status.Steps {
		assert.Equal(t, tracker.StepDone, step.Status, "step %s", step.ID)
	}

	report, err := svc.GetReport(res.SessionID)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "OK report", report.Content)
	assert.Equal(t, "https://github.com/acme/repo", report.RepositoryURL)
	assert.Equal(t, "web", report.ProjectType)

	coralClient.mu.Lock()
	defer coralClient.mu.Unlock()
	assert.Equal(t, 1, coralClient.sessions)
	assert.Equal(t, 1, coralClient.threads)
	assert.Equal(t, 1, coralClient.messages, "kickoff message")
}

func TestPipelineAgentFailure(t *testing.T) {
	svc, registry, _ := newTestPipeline(t, &fakeAgent{err: errors.New("agent unreachable")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Consume(ctx))

	res, err := svc.Upload(ctx, &dto.ProjectUpload{
		ProjectName: "acme",
		ProjectType: "web",
		ProjectURL:  "https://github.com/acme/repo",
	})
	require.NoError(t, err)

	waitForStatus(t, svc, res.SessionID, tracker.StatusError)

	session, err := registry.Get(res.SessionID)
	require.NoError(t, err)
	assert.Contains(t, session.Error, "agent unreachable")

	_, err = svc.GetReport(res.SessionID)
	var httpErr *serverutils.HttpError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 400, httpErr.Code)
}

func TestGetReportBeforeCompletion(t *testing.T) {
	svc, registry, _ := newTestPipeline(t, &fakeAgent{reply: "unused"})

	require.NoError(t, registry.Create("pending-session", DefaultSteps()))

	_, err := svc.GetReport("pending-session")
	var httpErr *serverutils.HttpError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 400, httpErr.Code)
	assert.Equal(t, "Pipeline not completed yet", httpErr.Message)
}

func TestGetStatusUnknownSession(t *testing.T) {
	svc, _, _ := newTestPipeline(t, &fakeAgent{})

	_, err := svc.GetStatus("missing")
	assert.ErrorIs(t, err, tracker.ErrSessionNotFound)
}

func TestAgentsStatus(t *testing.T) {
	svc, _, _ := newTestPipeline(t, &fakeAgent{})

	res, err := svc.AgentsStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "reachable", res.AgentService["status"])
	require.Len(t, res.Agents, 1)
	assert.Equal(t, "interface", res.Agents[0]["id"])
}
