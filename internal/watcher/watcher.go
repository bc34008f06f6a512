// Package watcher implements the file tailer (component D): it follows a
// growing JSONL transcript file, feeding complete lines through the
// parser and delivering debounced batches to a caller-supplied callback.
//
// Grounded in shape on the teacher's fsnotify-based skill directory
// watcher — a registry of handles guarded by one mutex, a debounced
// refresh-on-event loop — adapted to byte-offset tailing of a single
// growing file and to the two-timer debounce this package requires.
package watcher

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pruett/fleet-sub000/internal/parser"
	"github.com/pruett/fleet-sub000/internal/schema"
)

// ErrorKind classifies the errors delivered to Options.OnError. Parse
// failures are not among them: they arrive inline as schema.Malformed
// messages in a batch.
type ErrorKind string

const (
	// ReadError is transient: the watcher keeps running and retries on
	// the next filesystem event.
	ReadError ErrorKind = "READ_ERROR"
	// WatchError is fatal: the watcher reports it once and stops itself.
	WatchError ErrorKind = "WATCH_ERROR"
)

// Error is delivered to Options.OnError.
type Error struct {
	SessionID string
	Kind      ErrorKind
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: session %s: %v", e.Kind, e.SessionID, e.Err)
}

// Batch is one flushed group of messages, always non-empty.
type Batch struct {
	SessionID string
	Messages  []schema.ParsedMessage
	// ByteRange is the half-open [start, end) span of file bytes that
	// produced this batch.
	ByteRangeStart int64
	ByteRangeEnd   int64
}

const (
	defaultDebounceMs = 100
	defaultMaxWaitMs  = 500
)

// Options configures one watchSession call.
type Options struct {
	SessionID string
	FilePath  string
	OnMessages func(Batch)
	OnError    func(Error)
	// DebounceMs is the trailing-quiescence window, reset on every event
	// that yields new messages. Zero uses the default of 100ms.
	DebounceMs int
	// MaxWaitMs is the ceiling armed once per batch and never reset.
	// Zero uses the default of 500ms.
	MaxWaitMs int
}

// Handle is the public view of a running watch.
type Handle struct {
	SessionID string
	FilePath  string

	mu         sync.Mutex
	byteOffset int64
	lineIndex  int
	stopped    bool
}

// ByteOffset returns the current tail position.
func (h *Handle) ByteOffset() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.byteOffset
}

// LineIndex returns the next line index to be assigned.
func (h *Handle) LineIndex() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lineIndex
}

// Stopped reports whether Stop has completed for this handle.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

type session struct {
	handle *Handle
	opts   Options

	watcher *fsnotify.Watcher
	done    chan struct{}

	mu          sync.Mutex
	lineBuffer  string
	batch       []schema.ParsedMessage
	batchStart  int64
	trailing    *time.Timer
	maxWait     *time.Timer
	maxWaitSet  bool
}

// Registry tracks one watch per session, deduplicating concurrent
// watchSession calls for the same sessionId.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*session)}
}

// WatchSession starts (or returns the existing) watch for opts.SessionID.
// A duplicate call does NOT attach opts.OnMessages/OnError to the
// existing watch — callers that need fan-out must do it themselves, per
// spec §4.3's registry semantics (transport is expected to fan out).
func (r *Registry) WatchSession(opts Options) (*Handle, error) {
	if opts.DebounceMs == 0 {
		opts.DebounceMs = defaultDebounceMs
	}
	if opts.MaxWaitMs == 0 {
		opts.MaxWaitMs = defaultMaxWaitMs
	}

	r.mu.Lock()
	if existing, ok := r.sessions[opts.SessionID]; ok {
		r.mu.Unlock()
		return existing.handle, nil
	}
	r.mu.Unlock()

	info, err := os.Stat(opts.FilePath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", opts.FilePath, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(opts.FilePath); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", opts.FilePath, err)
	}

	s := &session{
		opts: opts,
		handle: &Handle{
			SessionID:  opts.SessionID,
			FilePath:   opts.FilePath,
			byteOffset: info.Size(),
		},
		watcher: fsw,
		done:    make(chan struct{}),
	}

	r.mu.Lock()
	if existing, ok := r.sessions[opts.SessionID]; ok {
		// A concurrent call registered this session first; keep its watch.
		r.mu.Unlock()
		fsw.Close()
		return existing.handle, nil
	}
	r.sessions[opts.SessionID] = s
	r.mu.Unlock()

	go s.run()

	return s.handle, nil
}

// StopWatching stops and removes the watch for sessionId, performing a
// synchronous final flush of any pending batch. Idempotent.
func (r *Registry) StopWatching(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	s.stop()
}

// StopAll stops every active watch.
func (r *Registry) StopAll() {
	r.mu.Lock()
	all := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*session)
	r.mu.Unlock()
	for _, s := range all {
		s.stop()
	}
}

func (s *session) run() {
	defer s.watcher.Close()
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				s.onChange()
			}
			if event.Op&fsnotify.Remove != 0 {
				s.fatal(errors.New("watched file removed"))
				return
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.fatal(err)
			return
		case <-s.done:
			return
		}
	}
}

func (s *session) onChange() {
	if s.handle.Stopped() {
		return
	}

	info, err := os.Stat(s.handle.FilePath)
	if err != nil {
		s.emitReadError(err)
		return
	}
	size := info.Size()

	s.handle.mu.Lock()
	offset := s.handle.byteOffset
	s.handle.mu.Unlock()

	if size < offset {
		// Truncation: reset tail state and start over from byte 0.
		s.handle.mu.Lock()
		s.handle.byteOffset = 0
		s.handle.lineIndex = 0
		s.handle.mu.Unlock()
		s.mu.Lock()
		s.lineBuffer = ""
		s.mu.Unlock()
		offset = 0
	}
	if size == offset {
		return
	}

	f, err := os.Open(s.handle.FilePath)
	if err != nil {
		s.emitReadError(err)
		return
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		s.emitReadError(err)
		return
	}
	buf := make([]byte, size-offset)
	if _, err := io.ReadFull(f, buf); err != nil {
		s.emitReadError(err)
		return
	}

	s.handle.mu.Lock()
	s.handle.byteOffset = size
	s.handle.mu.Unlock()

	s.ingest(offset, string(buf))
}

func (s *session) emitReadError(err error) {
	if s.opts.OnError == nil {
		return
	}
	s.opts.OnError(Error{SessionID: s.opts.SessionID, Kind: ReadError, Err: err})
}

func (s *session) fatal(err error) {
	if s.opts.OnError != nil {
		s.opts.OnError(Error{SessionID: s.opts.SessionID, Kind: WatchError, Err: err})
	}
	s.stop()
}

// ingest splits newly-read bytes into lines, parses complete ones, and
// arms the two debounce timers. chunkStart is the absolute file offset
// at which chunk begins, so a line whose bytes started accumulating in
// s.lineBuffer during an earlier read still gets the byte offset where
// it actually started, not just this read's.
func (s *session) ingest(chunkStart int64, chunk string) {
	s.mu.Lock()
	combinedStart := chunkStart - int64(len(s.lineBuffer))
	combined := s.lineBuffer + chunk
	lines := splitLines(combined)
	s.lineBuffer = lines[len(lines)-1]
	complete := lines[:len(lines)-1]

	produced := false
	pos := int64(0)
	for _, line := range complete {
		lineStart := combinedStart + pos
		pos += int64(len(line)) + 1

		s.handle.mu.Lock()
		idx := s.handle.lineIndex
		s.handle.mu.Unlock()

		if len(trimSpace(line)) == 0 {
			continue
		}

		msg := parser.ParseLine(line, idx)
		s.handle.mu.Lock()
		s.handle.lineIndex++
		s.handle.mu.Unlock()

		if msg == nil {
			continue
		}
		if len(s.batch) == 0 {
			s.batchStart = lineStart
		}
		s.batch = append(s.batch, msg)
		produced = true
	}

	if produced {
		s.armTimersLocked()
	}
	s.mu.Unlock()
}

// armTimersLocked must be called with s.mu held. It resets the trailing
// timer on every call, and arms the max-wait timer exactly once per
// batch — it is never reset once set, satisfying spec §4.3's two
// independent debounce timers.
func (s *session) armTimersLocked() {
	debounce := time.Duration(s.opts.DebounceMs) * time.Millisecond
	maxWait := time.Duration(s.opts.MaxWaitMs) * time.Millisecond

	if s.trailing != nil {
		s.trailing.Stop()
	}
	s.trailing = time.AfterFunc(debounce, s.flush)

	if !s.maxWaitSet {
		s.maxWaitSet = true
		s.maxWait = time.AfterFunc(maxWait, s.flush)
	}
}

// flush is invoked by whichever timer fires first. It clears the batch
// and both timers before calling out, so a slow OnMessages callback
// can't re-enter with stale state.
func (s *session) flush() {
	s.mu.Lock()
	if len(s.batch) == 0 {
		s.mu.Unlock()
		return
	}
	messages := s.batch
	start := s.batchStart
	end := s.handle.ByteOffset()
	s.batch = nil
	s.maxWaitSet = false
	if s.trailing != nil {
		s.trailing.Stop()
		s.trailing = nil
	}
	if s.maxWait != nil {
		s.maxWait.Stop()
		s.maxWait = nil
	}
	s.mu.Unlock()

	if s.opts.OnMessages != nil {
		s.opts.OnMessages(Batch{
			SessionID:      s.opts.SessionID,
			Messages:       messages,
			ByteRangeStart: start,
			ByteRangeEnd:   end,
		})
	}
}

// stop cancels timers, performs one synchronous final flush if a batch
// is pending, and marks the handle stopped. Idempotent.
func (s *session) stop() {
	s.handle.mu.Lock()
	if s.handle.stopped {
		s.handle.mu.Unlock()
		return
	}
	s.handle.stopped = true
	s.handle.mu.Unlock()

	s.flush()

	close(s.done)
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}
