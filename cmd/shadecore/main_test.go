package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DOUGSKEEZ/monty-sub006/internal/dispatch"
	"github.com/DOUGSKEEZ/monty-sub006/internal/infrastructure/logging"
)

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("SHADECORE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when the database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
database:
  path: ""
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"

influxdb:
  enabled: false

logging:
  level: error
  format: text
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	t.Setenv("SHADECORE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// blockingPublisher stalls every Publish until its gate is closed,
// standing in for a broker that is slow to acknowledge.
type blockingPublisher struct {
	gate chan struct{}

	mu        sync.Mutex
	published []string
	retained  []string
}

func (p *blockingPublisher) Publish(topic string, _ []byte, _ byte, _ bool) error {
	<-p.gate
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, topic)
	return nil
}

func (p *blockingPublisher) PublishRetained(topic string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retained = append(p.retained, topic)
	return nil
}

func (p *blockingPublisher) publishedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func (p *blockingPublisher) retainedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.retained)
}

// TestMQTTEventSink_EmitReturnsWhileBrokerStalls verifies a stalled broker
// never holds up the caller of Emit; events drain once the broker recovers.
func TestMQTTEventSink_EmitReturnsWhileBrokerStalls(t *testing.T) {
	pub := &blockingPublisher{gate: make(chan struct{})}
	sink := newMQTTEventSink(pub, logging.Default())

	start := time.Now()
	for i := 0; i < 10; i++ {
		sink.Emit(dispatch.Event{Type: dispatch.EventTaskCompleted, TaskID: "task-1", Target: "shade:14", At: time.Now()})
	}
	sink.Emit(dispatch.Event{Type: dispatch.EventTaskStarted, TaskID: "task-2", Target: "scene:evening", At: time.Now()})
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("Emit held its caller for %v against a stalled broker", elapsed)
	}

	close(pub.gate)
	sink.Close()

	if got := pub.publishedCount(); got != 11 {
		t.Errorf("expected 11 published events after the broker recovered, got %d", got)
	}
	if got := pub.retainedCount(); got != 1 {
		t.Errorf("expected 1 retained scene activation, got %d", got)
	}
}

// TestMQTTEventSink_DropsWhenQueueIsFull verifies overflow is shed instead
// of backing up into the caller.
func TestMQTTEventSink_DropsWhenQueueIsFull(t *testing.T) {
	pub := &blockingPublisher{gate: make(chan struct{})}
	sink := newMQTTEventSink(pub, logging.Default())

	total := eventQueueSize + 50
	emitted := make(chan struct{})
	go func() {
		defer close(emitted)
		for i := 0; i < total; i++ {
			sink.Emit(dispatch.Event{Type: dispatch.EventTransmission, TaskID: "task-1", Target: "shade:14", At: time.Now()})
		}
	}()

	select {
	case <-emitted:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full queue")
	}

	close(pub.gate)
	sink.Close()

	// The writer may have pulled one event off the queue before stalling.
	if got := pub.publishedCount(); got < eventQueueSize || got > eventQueueSize+1 {
		t.Errorf("expected between %d and %d published events, got %d", eventQueueSize, eventQueueSize+1, got)
	}
}

// TestGetConfigPath verifies environment override behaviour.
func TestGetConfigPath(t *testing.T) {
	t.Setenv("SHADECORE_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("SHADECORE_CONFIG", "/etc/shadecore/config.yaml")
	if got := getConfigPath(); got != "/etc/shadecore/config.yaml" {
		t.Errorf("getConfigPath() = %q, want override", got)
	}
}
