// Package flux provides the HTTP client for the FLUX generation backend.
//
// # Overview
//
// This package is the single point of HTTP egress. It owns the mutable
// endpoint slot, the default header set, the 120-second request timeout,
// and the retry policy. Callers above it — the orchestrator, the
// readiness monitor, the CLI — work exclusively with typed errors and
// normalized response shapes.
//
// # Architecture
//
// The package is split into three files:
//
//   - client.go: request execution, retry/backoff, endpoint management
//   - types.go: wire shapes, including alias normalization for fields
//     the backend names inconsistently across deployments
//   - errors.go: the error taxonomy and user-facing message mapping
//
// # Client Usage
//
// Create a client with the backend base URL (typically a tunnel URL):
//
//	client, err := flux.NewClient("https://abc123.ngrok.io")
//	if err != nil {
//		log.Fatalf("failed to create client: %v", err)
//	}
//
//	health, err := client.Health(ctx)
//	if err != nil {
//		log.Printf("health probe failed: %v", err)
//	}
//
//	resp, err := client.Generate(ctx, flux.GenerateRequest{
//		Prompt: "a sunset over mountains",
//		Steps:  30, CFGGuidance: 4.0, Seed: 42,
//		Width: 1024, Height: 1024,
//	})
//
// # Retry Behavior
//
// Every request is attempted once plus up to three retries with
// exponential backoff (1s, 2s, 4s). Retries fire on any failure,
// including client errors — see RetryPolicy for why that looseness is
// kept. After the retries are exhausted, the final error is surfaced
// annotated with the endpoint and path.
//
// # Error Classification
//
// Failures map onto Kind values: 503 responses become KindModelsLoading,
// 404 becomes KindNotFound, other 4xx become KindValidation with the
// backend's detail preserved, 5xx become KindBackend, network-layer
// failures become KindConnectivity, and exceeded deadlines become
// KindTimeout. UserMessage turns any of these into one actionable
// sentence for display.
package flux
