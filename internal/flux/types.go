package flux

import (
	"encoding/json"
	"strings"
)

// HealthInfo mirrors GET /health.
type HealthInfo struct {
	Status  string `json:"status"`
	Model   string `json:"model"`
	Device  string `json:"device"`
	Version string `json:"version"`
}

// Healthy reports whether the probe response counts as reachable-and-well.
// Deployed backends answer "healthy", older builds answer "alive" or "ok".
func (h HealthInfo) Healthy() bool {
	switch strings.ToLower(h.Status) {
	case "healthy", "alive", "ok":
		return true
	}
	return false
}

// StatusSnapshot is the canonical shape of GET /status after alias
// normalization. Deployed backends disagree on field names
// (model_loaded vs models_loaded, message sometimes missing), so the
// inconsistency is folded away here and nothing downstream sees it.
type StatusSnapshot struct {
	Status      string
	ModelLoaded bool
	Progress    float64
	Message     string
}

func (s *StatusSnapshot) UnmarshalJSON(data []byte) error {
	var wire struct {
		Status       string  `json:"status"`
		ModelLoaded  *bool   `json:"model_loaded"`
		ModelsLoaded *bool   `json:"models_loaded"`
		Progress     float64 `json:"progress"`
		Message      string  `json:"message"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	s.Status = wire.Status
	s.Progress = wire.Progress
	s.Message = wire.Message
	switch {
	case wire.ModelLoaded != nil:
		s.ModelLoaded = *wire.ModelLoaded
	case wire.ModelsLoaded != nil:
		s.ModelLoaded = *wire.ModelsLoaded
	}
	if s.Message == "" {
		s.Message = wire.Status
	}
	return nil
}

// GenerateRequest mirrors POST /generate. Field names follow the
// backend's vocabulary; callers speak in GenerationParameters and the
// orchestrator does the mapping.
type GenerateRequest struct {
	Prompt      string  `json:"prompt"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	CFGGuidance float64 `json:"cfg_guidance"`
	Steps       int     `json:"steps"`
	Seed        int64   `json:"seed"`
}

// GenerateResponse mirrors the /generate reply. Image is the encoded
// payload exactly as sent, optionally carrying a data-URI prefix.
type GenerateResponse struct {
	Success  bool    `json:"success"`
	Image    string  `json:"image"`
	Seed     *int64  `json:"seed"`
	Duration float64 `json:"duration"`
	Error    string  `json:"error"`
}

// BatchRequest mirrors POST /generate/batch.
type BatchRequest struct {
	Prompts        []string `json:"prompts"`
	Steps          int      `json:"steps"`
	CFGGuidance    float64  `json:"cfg_guidance"`
	Width          int      `json:"width"`
	Height         int      `json:"height"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
}

// BatchResponse mirrors the batch submission reply. RequestIDs are in
// the same order as the submitted prompts.
type BatchResponse struct {
	Success    bool     `json:"success"`
	RequestIDs []string `json:"request_ids"`
	Message    string   `json:"message"`
}

// JobStatus is the server-side state of an async generation job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// ProgressSnapshot mirrors GET /progress/{id}.
type ProgressSnapshot struct {
	RequestID string     `json:"request_id"`
	Status    JobStatus  `json:"status"`
	Progress  float64    `json:"progress"`
	Result    *JobResult `json:"result"`
	Error     string     `json:"error"`
}

// JobResult is the completion payload embedded in a progress response.
type JobResult struct {
	Images   []string `json:"images"`
	Seed     int64    `json:"seed"`
	Duration float64  `json:"duration"`
}

// ModelInfo describes one available model. Older backends return bare id
// strings, newer ones return objects; both decode into this shape.
type ModelInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (m *ModelInfo) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*m = ModelInfo{ID: id}
		return nil
	}
	type alias ModelInfo
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = ModelInfo(a)
	return nil
}
