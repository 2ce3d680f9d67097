package dto

import (
	"github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/tracker"
)

// ProjectUpload is the job submission body.
type ProjectUpload struct {
	ProjectName        string `json:"projectName" validate:"required,min=1,max=100"`
	ProjectType        string `json:"projectType" validate:"required"`
	ProjectDescription string `json:"projectDescription,omitempty" validate:"max=500"`
	ProjectURL         string `json:"projectUrl" validate:"required,url"`
}

type UploadResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Status    string `json:"status"`
}

type PipelineStatusResponse struct {
	SessionID string         `json:"session_id"`
	Status    string         `json:"status"`
	Steps     []tracker.Step `json:"steps"`
	Progress  int            `json:"progress"`
}

type AgentsStatusResponse struct {
	AgentService map[string]interface{}   `json:"agent_service"`
	Agents       []map[string]interface{} `json:"agents,omitempty"`
}

type HealthResponse struct {
	Status       string                 `json:"status"`
	Timestamp    string                 `json:"timestamp"`
	AgentService map[string]interface{} `json:"agent_service,omitempty"`
}

// PipelineJobMessage travels on the internal job bus from the upload handler
// to the pipeline worker.
type PipelineJobMessage struct {
	SessionID string        `json:"session_id"`
	Project   ProjectUpload `json:"project"`
}

// PipelineUpdate is pushed to websocket subscribers on every step change.
type PipelineUpdate struct {
	SessionID string         `json:"session_id"`
	Status    string         `json:"status"`
	Steps     []tracker.Step `json:"steps"`
	Progress  int            `json:"progress"`
}

// ChatRequest/ChatResponse are the interface agent's HTTP chat surface.
type ChatRequest struct {
	Message string `json:"message" validate:"required"`
}

type ChatResponse struct {
	Response string `json:"response"`
}
