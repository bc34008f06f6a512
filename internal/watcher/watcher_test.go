package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append %s: %v", path, err)
	}
}

type batchCollector struct {
	mu      sync.Mutex
	batches []Batch
}

func (c *batchCollector) onMessages(b Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, b)
}

func (c *batchCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func (c *batchCollector) totalMessages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b.Messages)
	}
	return n
}

// A full line appended after the watch starts is parsed and flushed
// within the debounce window.
func TestWatcherEmitsBatchOnAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	writeFile(t, path, "")

	reg := NewRegistry()
	collector := &batchCollector{}
	handle, err := reg.WatchSession(Options{
		SessionID:  "s1",
		FilePath:   path,
		OnMessages: collector.onMessages,
		DebounceMs: 20,
		MaxWaitMs:  200,
	})
	if err != nil {
		t.Fatalf("WatchSession: %v", err)
	}
	defer reg.StopAll()

	appendFile(t, path, `{"type":"user","uuid":"u1","sessionId":"s1","timestamp":"t","message":{"content":"hi"}}`+"\n")

	deadline := time.Now().Add(2 * time.Second)
	for collector.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if collector.count() == 0 {
		t.Fatal("expected at least one batch")
	}
	if handle.LineIndex() != 1 {
		t.Errorf("LineIndex() = %d, want 1", handle.LineIndex())
	}
}

// Calling WatchSession twice for the same sessionId returns the same
// handle without creating a second underlying watch.
func TestWatcherDedupesDuplicateCalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	writeFile(t, path, "")

	reg := NewRegistry()
	defer reg.StopAll()

	h1, err := reg.WatchSession(Options{SessionID: "s1", FilePath: path})
	if err != nil {
		t.Fatalf("WatchSession: %v", err)
	}
	h2, err := reg.WatchSession(Options{SessionID: "s1", FilePath: path})
	if err != nil {
		t.Fatalf("WatchSession (second): %v", err)
	}
	if h1 != h2 {
		t.Error("expected the same handle for a duplicate sessionId")
	}
}

// A partial line (no trailing newline) is buffered, not parsed, until
// the newline arrives in a later write.
func TestWatcherBuffersPartialLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	writeFile(t, path, "")

	reg := NewRegistry()
	collector := &batchCollector{}
	_, err := reg.WatchSession(Options{
		SessionID:  "s1",
		FilePath:   path,
		OnMessages: collector.onMessages,
		DebounceMs: 20,
		MaxWaitMs:  100,
	})
	if err != nil {
		t.Fatalf("WatchSession: %v", err)
	}
	defer reg.StopAll()

	appendFile(t, path, `{"type":"user","uuid":"u1","sessionId":"s1",`)
	time.Sleep(150 * time.Millisecond)
	if collector.count() != 0 {
		t.Fatal("partial line should not have produced a batch yet")
	}

	appendFile(t, path, `"timestamp":"t","message":{"content":"hi"}}`+"\n")
	deadline := time.Now().Add(2 * time.Second)
	for collector.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if collector.totalMessages() != 1 {
		t.Fatalf("totalMessages() = %d, want 1", collector.totalMessages())
	}
}

// StopWatching performs a synchronous final flush of any pending batch.
func TestWatcherStopFlushesPending(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	writeFile(t, path, "")

	reg := NewRegistry()
	collector := &batchCollector{}
	_, err := reg.WatchSession(Options{
		SessionID:  "s1",
		FilePath:   path,
		OnMessages: collector.onMessages,
		DebounceMs: 10_000, // long enough that only Stop's flush fires
		MaxWaitMs:  10_000,
	})
	if err != nil {
		t.Fatalf("WatchSession: %v", err)
	}

	appendFile(t, path, `{"type":"user","uuid":"u1","sessionId":"s1","timestamp":"t","message":{"content":"hi"}}`+"\n")
	time.Sleep(200 * time.Millisecond)

	reg.StopWatching("s1")

	if collector.count() != 1 {
		t.Fatalf("count() = %d, want 1 (stop should flush pending batch)", collector.count())
	}
}

func TestSplitLines(t *testing.T) {
	got := splitLines("a\nb\nc")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitLines = %#v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitLines[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
