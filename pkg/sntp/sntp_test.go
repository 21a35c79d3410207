package sntp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/beevik/ntp"
)

// validResponse builds a response that passes ntp.Response.Validate.
func validResponse(offset time.Duration) *ntp.Response {
	now := time.Now()
	return &ntp.Response{
		Stratum:       2,
		ClockOffset:   offset,
		Time:          now,
		ReferenceTime: now.Add(-time.Minute),
	}
}

func queryReturning(resp *ntp.Response, err error) QueryFunc {
	return func(server string, timeout time.Duration) (*ntp.Response, error) {
		return resp, err
	}
}

type fakeClock struct {
	mu    sync.Mutex
	steps []time.Duration
	err   error
}

func (c *fakeClock) Step(offset time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.steps = append(c.steps, offset)
	return nil
}

func (c *fakeClock) stepped() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.steps...)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Server != DefaultServer {
		t.Errorf("server: got %q, want %q", cfg.Server, DefaultServer)
	}
	if cfg.QueryTimeout != DefaultQueryTimeout {
		t.Errorf("query timeout: got %v, want %v", cfg.QueryTimeout, DefaultQueryTimeout)
	}
	if cfg.Interval != DefaultInterval {
		t.Errorf("interval: got %v, want %v", cfg.Interval, DefaultInterval)
	}
	if cfg.StepThreshold != DefaultStepThreshold {
		t.Errorf("step threshold: got %v, want %v", cfg.StepThreshold, DefaultStepThreshold)
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"Empty", Config{}, false},
		{"Defaults", DefaultConfig(), false},
		{"NegativeTimeout", Config{QueryTimeout: -time.Second}, true},
		{"NegativeInterval", Config{Interval: -time.Second}, true},
		{"NegativeThreshold", Config{StepThreshold: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSyncRecordsOffset(t *testing.T) {
	clock := &fakeClock{}
	s, err := New(Config{
		Query:         queryReturning(validResponse(50*time.Millisecond), nil),
		Clock:         clock,
		StepThreshold: 500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, ok := s.LastOffset(); ok {
		t.Fatal("LastOffset reported a value before the first sync")
	}
	if _, ok := s.LastSync(); ok {
		t.Fatal("LastSync reported a value before the first sync")
	}

	offset, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if offset != 50*time.Millisecond {
		t.Errorf("offset: got %v, want 50ms", offset)
	}

	got, ok := s.LastOffset()
	if !ok || got != 50*time.Millisecond {
		t.Errorf("LastOffset: got %v, %v", got, ok)
	}
	if _, ok := s.LastSync(); !ok {
		t.Error("LastSync not recorded after sync")
	}
	if len(clock.stepped()) != 0 {
		t.Errorf("clock stepped for an offset below the threshold: %v", clock.stepped())
	}
}

func TestSyncStepsClockBeyondThreshold(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration
	}{
		{"Behind", 2 * time.Second},
		{"Ahead", -2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{}
			s, err := New(Config{
				Query:         queryReturning(validResponse(tt.offset), nil),
				Clock:         clock,
				StepThreshold: 500 * time.Millisecond,
			})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			offset, err := s.Sync(context.Background())
			if err != nil {
				t.Fatalf("Sync failed: %v", err)
			}
			if offset != tt.offset {
				t.Errorf("offset: got %v, want %v", offset, tt.offset)
			}

			steps := clock.stepped()
			if len(steps) != 1 || steps[0] != tt.offset {
				t.Errorf("steps: got %v, want [%v]", steps, tt.offset)
			}
		})
	}
}

func TestSyncWithoutClock(t *testing.T) {
	s, err := New(Config{
		Query: queryReturning(validResponse(time.Minute), nil),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	offset, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if offset != time.Minute {
		t.Errorf("offset: got %v, want 1m", offset)
	}
}

func TestSyncQueryError(t *testing.T) {
	queryErr := errors.New("no route to host")
	s, err := New(Config{
		Query: queryReturning(nil, queryErr),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := s.Sync(context.Background()); !errors.Is(err, queryErr) {
		t.Fatalf("expected query error, got %v", err)
	}
	if _, ok := s.LastOffset(); ok {
		t.Error("LastOffset reported a value after a failed sync")
	}
}

func TestSyncInvalidResponse(t *testing.T) {
	resp := validResponse(time.Second)
	resp.Stratum = 0
	clock := &fakeClock{}
	s, err := New(Config{
		Query: queryReturning(resp, nil),
		Clock: clock,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := s.Sync(context.Background()); !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
	if _, ok := s.LastOffset(); ok {
		t.Error("LastOffset reported a value after an invalid response")
	}
	if len(clock.stepped()) != 0 {
		t.Error("clock stepped on an invalid response")
	}
}

func TestSyncClockStepError(t *testing.T) {
	stepErr := errors.New("operation not permitted")
	s, err := New(Config{
		Query: queryReturning(validResponse(time.Minute), nil),
		Clock: &fakeClock{err: stepErr},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	offset, err := s.Sync(context.Background())
	if !errors.Is(err, stepErr) {
		t.Fatalf("expected step error, got %v", err)
	}
	if offset != time.Minute {
		t.Errorf("offset: got %v, want 1m", offset)
	}

	// The measurement itself succeeded and stays available.
	if got, ok := s.LastOffset(); !ok || got != time.Minute {
		t.Errorf("LastOffset: got %v, %v", got, ok)
	}
}

func TestSyncContextCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	s, err := New(Config{
		Query: func(server string, timeout time.Duration) (*ntp.Response, error) {
			<-release
			return validResponse(0), nil
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Sync(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunSyncsOnInterval(t *testing.T) {
	calls := make(chan struct{}, 16)
	s, err := New(Config{
		Interval: 5 * time.Millisecond,
		Query: func(server string, timeout time.Duration) (*ntp.Response, error) {
			select {
			case calls <- struct{}{}:
			default:
			}
			return validResponse(10 * time.Millisecond), nil
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for sync attempts")
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if _, ok := s.LastOffset(); !ok {
		t.Error("no offset recorded after Run")
	}
}

func TestRunKeepsGoingAfterFailure(t *testing.T) {
	var mu sync.Mutex
	var calls int
	s, err := New(Config{
		Interval: 5 * time.Millisecond,
		Query: func(server string, timeout time.Duration) (*ntp.Response, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				return nil, errors.New("temporary failure")
			}
			return validResponse(0), nil
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := s.LastOffset(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no successful sync after the initial failure")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
