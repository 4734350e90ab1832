package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gstredny/flux-image-generator/internal/flux"
)

type fakeAPI struct {
	health func() (*flux.HealthInfo, error)
	status func() (*flux.StatusSnapshot, error)
}

func (f *fakeAPI) Health(context.Context) (*flux.HealthInfo, error) { return f.health() }

func (f *fakeAPI) Status(context.Context) (*flux.StatusSnapshot, error) { return f.status() }

func (f *fakeAPI) Generate(context.Context, flux.GenerateRequest) (*flux.GenerateResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) GenerateBatch(context.Context, flux.BatchRequest) (*flux.BatchResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) Progress(context.Context, string) (*flux.ProgressSnapshot, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) Models(context.Context) ([]flux.ModelInfo, error) { return nil, nil }

func TestMonitor_InitialStateIsChecking(t *testing.T) {
	m := New(&fakeAPI{}, 0)
	if got := m.Snapshot().Status; got != StatusChecking {
		t.Fatalf("initial status = %v, want checking", got)
	}
	if m.Connected() {
		t.Fatal("Connected() = true before any check")
	}
}

func TestMonitor_HealthFailureMeansDisconnected(t *testing.T) {
	api := &fakeAPI{
		health: func() (*flux.HealthInfo, error) {
			return nil, &flux.Error{Kind: flux.KindConnectivity, Message: "network unreachable"}
		},
	}
	m := New(api, time.Minute)

	m.check(context.Background())
	snap := m.Snapshot()
	if snap.Status != StatusDisconnected {
		t.Fatalf("status = %v, want disconnected after failed probe", snap.Status)
	}
	if snap.Notice == "" {
		t.Error("notice is empty, want a human-readable reason")
	}
}

func TestMonitor_UnhealthyStatusMeansDisconnected(t *testing.T) {
	api := &fakeAPI{
		health: func() (*flux.HealthInfo, error) {
			return &flux.HealthInfo{Status: "unhealthy"}, nil
		},
	}
	m := New(api, time.Minute)

	m.check(context.Background())
	if got := m.Snapshot().Status; got != StatusDisconnected {
		t.Fatalf("status = %v, want disconnected for unhealthy backend", got)
	}
}

func TestMonitor_HealthyButModelLoadingIsConnectedWithNotice(t *testing.T) {
	api := &fakeAPI{
		health: func() (*flux.HealthInfo, error) {
			return &flux.HealthInfo{Status: "healthy"}, nil
		},
		status: func() (*flux.StatusSnapshot, error) {
			return &flux.StatusSnapshot{Status: "loading", ModelLoaded: false, Message: "Model is loading in background"}, nil
		},
	}
	m := New(api, time.Minute)

	m.check(context.Background())
	snap := m.Snapshot()
	if snap.Status != StatusConnected {
		t.Fatalf("status = %v, want connected while model loads", snap.Status)
	}
	if snap.ModelLoaded {
		t.Error("ModelLoaded = true, want false")
	}
	if snap.Notice != "Model is loading in background" {
		t.Errorf("notice = %q, want the backend's loading message", snap.Notice)
	}
}

func TestMonitor_HealthyAndLoadedIsConnectedClean(t *testing.T) {
	api := &fakeAPI{
		health: func() (*flux.HealthInfo, error) {
			return &flux.HealthInfo{Status: "healthy"}, nil
		},
		status: func() (*flux.StatusSnapshot, error) {
			return &flux.StatusSnapshot{Status: "ok", ModelLoaded: true, Message: "Model is ready"}, nil
		},
	}
	m := New(api, time.Minute)

	m.check(context.Background())
	snap := m.Snapshot()
	if snap.Status != StatusConnected || !snap.ModelLoaded || snap.Notice != "" {
		t.Fatalf("snapshot = %#v, want connected, loaded, no notice", snap)
	}
	if !m.Connected() {
		t.Error("Connected() = false, want true")
	}
}

func TestMonitor_SubscribersSeeTransitions(t *testing.T) {
	healthy := atomic.Bool{}
	api := &fakeAPI{
		health: func() (*flux.HealthInfo, error) {
			if healthy.Load() {
				return &flux.HealthInfo{Status: "healthy"}, nil
			}
			return nil, &flux.Error{Kind: flux.KindConnectivity, Message: "network unreachable"}
		},
		status: func() (*flux.StatusSnapshot, error) {
			return &flux.StatusSnapshot{Status: "ok", ModelLoaded: true}, nil
		},
	}
	m := New(api, time.Minute)

	var seen []Status
	m.Subscribe(func(s Snapshot) { seen = append(seen, s.Status) })

	m.check(context.Background())
	healthy.Store(true)
	m.check(context.Background())

	if len(seen) != 2 || seen[0] != StatusDisconnected || seen[1] != StatusConnected {
		t.Fatalf("observed transitions = %v, want [disconnected connected]", seen)
	}
}

func TestMonitor_ForceCheckRunsAheadOfTimer(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_ = json.NewEncoder(w).Encode(flux.HealthInfo{Status: "healthy"})
		case "/status":
			_, _ = w.Write([]byte(`{"status":"ok","model_loaded":true,"message":"Model is ready"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	client, err := flux.NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	// Timer period is far longer than the test; only ForceCheck (and
	// the startup check) can produce a result.
	m := New(client, time.Hour)
	connected := make(chan Snapshot, 4)
	m.Subscribe(func(s Snapshot) {
		if s.Status == StatusConnected {
			select {
			case connected <- s:
			default:
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m.Start(ctx)
	m.ForceCheck()

	select {
	case snap := <-connected:
		if !snap.ModelLoaded {
			t.Errorf("ModelLoaded = false, want true")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no connected snapshot within 5s of ForceCheck")
	}
}
