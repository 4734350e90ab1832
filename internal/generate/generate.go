// Package generate orchestrates generation requests against the FLUX
// backend: parameter mapping, seed resolution, batch submission, and
// polling async jobs to completion.
package generate

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gstredny/flux-image-generator/internal/flux"
)

// Limits mirrored from the backend's request validators. Checking
// locally avoids a 120-second round trip to learn the request was bad.
const (
	MaxPromptLen  = 1000
	MinSteps      = 20
	MaxSteps      = 50
	MinGuidance   = 1.0
	MaxGuidance   = 10.0
	MinDimension  = 512
	MaxDimension  = 2048
	MaxBatchSize  = 4
	maxRandomSeed = 999_999_999
)

// Params are the generation parameters in local vocabulary. CFGScale
// maps to the backend's cfg_guidance field; Seed -1 means "assign
// randomly". NegativePrompt only has a wire slot on batch submissions;
// single generations ignore it.
type Params struct {
	Prompt         string
	NegativePrompt string
	Steps          int
	CFGScale       float64
	Seed           int64
	Width          int
	Height         int
}

// DefaultParams returns the KREA-tuned defaults.
func DefaultParams() Params {
	return Params{Steps: 30, CFGScale: 4.0, Seed: -1, Width: 1024, Height: 1024}
}

// Validate checks p against the backend's accepted ranges. Violations
// come back as validation errors and never reach the network.
func (p Params) Validate() error {
	invalid := func(format string, args ...any) error {
		return &flux.Error{Kind: flux.KindValidation, Message: "invalid parameters", Detail: fmt.Sprintf(format, args...)}
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return invalid("prompt cannot be empty")
	}
	if len(p.Prompt) > MaxPromptLen {
		return invalid("prompt exceeds %d characters", MaxPromptLen)
	}
	if len(p.NegativePrompt) > MaxPromptLen {
		return invalid("negative prompt exceeds %d characters", MaxPromptLen)
	}
	if p.Steps < MinSteps || p.Steps > MaxSteps {
		return invalid("steps must be between %d and %d, got %d", MinSteps, MaxSteps, p.Steps)
	}
	if p.CFGScale < MinGuidance || p.CFGScale > MaxGuidance {
		return invalid("cfg scale must be between %.1f and %.1f, got %.1f", MinGuidance, MaxGuidance, p.CFGScale)
	}
	if p.Seed < -1 {
		return invalid("seed must be -1 or a non-negative integer")
	}
	for _, d := range []struct {
		name  string
		value int
	}{{"width", p.Width}, {"height", p.Height}} {
		if d.value < MinDimension || d.value > MaxDimension {
			return invalid("%s must be between %d and %d, got %d", d.name, MinDimension, MaxDimension, d.value)
		}
		if d.value%8 != 0 {
			return invalid("%s must be a multiple of 8, got %d", d.name, d.value)
		}
	}
	return nil
}

// Result is a completed generation. It is handed off to the caller and
// persistence layer; the orchestrator does not retain it.
type Result struct {
	ID        string
	Prompt    string
	Params    Params // seed resolved to the value actually used
	Image     string // self-describing encoded blob, data-URI prefix preserved
	CreatedAt time.Time
	Duration  float64 // seconds, server-reported; zero when absent
}

// Job is a server-side in-flight generation from a batch submission.
// It is mutated only by polling responses and discarded once resolved.
type Job struct {
	RequestID string
	Prompt    string
	Status    flux.JobStatus
	Progress  float64
}

// Recorder receives completed results for durable storage. Writes are
// fire-and-forget: a persistence failure never fails the generation
// that produced it.
type Recorder interface {
	Put(res Result) error
}

// Gate lets the connection monitor veto new requests while the backend
// is known to be unreachable.
type Gate interface {
	Connected() bool
}

// Generator issues generation requests through a flux API client.
// It never retries calls itself; retry is the transport's job.
type Generator struct {
	api      flux.API
	recorder Recorder
	gate     Gate
	randSeed func() int64
}

// New builds a Generator. recorder and gate may be nil.
func New(api flux.API, recorder Recorder, gate Gate) *Generator {
	return &Generator{
		api:      api,
		recorder: recorder,
		gate:     gate,
		randSeed: func() int64 { return rand.Int64N(maxRandomSeed + 1) },
	}
}

func (g *Generator) disconnected() error {
	if g.gate != nil && !g.gate.Connected() {
		return &flux.Error{Kind: flux.KindConnectivity, Message: "backend is disconnected"}
	}
	return nil
}

// GenerateImage runs one synchronous generation. Parameters are
// validated locally before anything is sent, so an out-of-range value
// fails immediately instead of riding out the transport's retries. A
// seed of -1 is resolved to a fresh non-negative random value before
// sending, and the returned result carries the seed actually used.
func (g *Generator) GenerateImage(ctx context.Context, params Params) (*Result, error) {
	if err := g.disconnected(); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	resolved := params
	if resolved.Seed == -1 {
		resolved.Seed = g.randSeed()
	}

	resp, err := g.api.Generate(ctx, flux.GenerateRequest{
		Prompt:      resolved.Prompt,
		Width:       resolved.Width,
		Height:      resolved.Height,
		CFGGuidance: resolved.CFGScale,
		Steps:       resolved.Steps,
		Seed:        resolved.Seed,
	})
	if err != nil {
		return nil, err
	}
	if resp.Seed != nil {
		resolved.Seed = *resp.Seed
	}

	res := &Result{
		ID:        uuid.NewString(),
		Prompt:    resolved.Prompt,
		Params:    resolved,
		Image:     resp.Image,
		CreatedAt: time.Now(),
		Duration:  resp.Duration,
	}
	g.record(*res)
	return res, nil
}

// GenerateBatch submits up to MaxBatchSize prompts as one logical batch
// and returns one job handle per accepted prompt, in submission order.
// Shared parameters are validated against every prompt before the
// submission goes out. It fails fast when the submission call itself
// fails.
func (g *Generator) GenerateBatch(ctx context.Context, prompts []string, shared Params) ([]Job, error) {
	if err := g.disconnected(); err != nil {
		return nil, err
	}
	if len(prompts) == 0 {
		return nil, &flux.Error{Kind: flux.KindValidation, Message: "invalid parameters", Detail: "batch needs at least one prompt"}
	}
	if len(prompts) > MaxBatchSize {
		return nil, &flux.Error{Kind: flux.KindValidation, Message: "invalid parameters", Detail: fmt.Sprintf("batch is limited to %d prompts", MaxBatchSize)}
	}
	for _, prompt := range prompts {
		p := shared
		p.Prompt = prompt
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	resp, err := g.api.GenerateBatch(ctx, flux.BatchRequest{
		Prompts:        prompts,
		NegativePrompt: shared.NegativePrompt,
		Steps:          shared.Steps,
		CFGGuidance:    shared.CFGScale,
		Width:          shared.Width,
		Height:         shared.Height,
	})
	if err != nil {
		return nil, err
	}

	// The backend may accept a prefix of the batch when its queue
	// fills; ids stay associated with prompts by position.
	jobs := make([]Job, 0, len(resp.RequestIDs))
	for i, id := range resp.RequestIDs {
		if i >= len(prompts) {
			break
		}
		jobs = append(jobs, Job{RequestID: id, Prompt: prompts[i], Status: flux.JobQueued})
	}
	return jobs, nil
}

const (
	defaultPollInterval = time.Second
	defaultPollTimeout  = 5 * time.Minute
)

// PollOptions tune PollJob. Zero values use the defaults: a 1-second
// cadence and a 5-minute budget.
type PollOptions struct {
	Interval   time.Duration
	Timeout    time.Duration
	OnProgress func(percent float64)
}

// PollJob queries job status on a fixed cadence until the job completes
// (returns the embedded result), fails (returns the embedded error), or
// the budget elapses (returns a timeout error). OnProgress fires on
// every tick with the latest percentage, duplicates included. An
// unknown id surfaces as a not-found error so callers can stop
// immediately instead of waiting out the budget.
func (g *Generator) PollJob(ctx context.Context, requestID string, opts PollOptions) (*flux.JobResult, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	budget := opts.Timeout
	if budget <= 0 {
		budget = defaultPollTimeout
	}
	deadline := time.Now().Add(budget)

	for {
		snap, err := g.api.Progress(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if opts.OnProgress != nil {
			opts.OnProgress(snap.Progress)
		}

		switch snap.Status {
		case flux.JobCompleted:
			if snap.Result == nil {
				return nil, &flux.Error{Kind: flux.KindBackend, Message: "completed job carried no result"}
			}
			return snap.Result, nil
		case flux.JobFailed:
			return nil, &flux.Error{Kind: flux.KindBackend, Message: "generation failed", Detail: snap.Error}
		}

		if time.Now().After(deadline) {
			return nil, &flux.Error{Kind: flux.KindTimeout, Message: fmt.Sprintf("job %s did not finish within %s", requestID, budget)}
		}
		select {
		case <-ctx.Done():
			return nil, &flux.Error{Kind: flux.KindTimeout, Message: "polling cancelled", Err: ctx.Err()}
		case <-time.After(interval):
		}
	}
}

func (g *Generator) record(res Result) {
	if g.recorder == nil {
		return
	}
	if err := g.recorder.Put(res); err != nil {
		log.Printf("[generate] history write failed for %s: %v", res.ID, err)
	}
}
