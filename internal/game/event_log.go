package game

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	EventBufferSize      = 1024                   // Circular buffer size
	MaxEventsPerSec      = 10000                  // Global rate limit
	MaxEventsPerSource   = 2000                   // Per-source rate limit per second
	BatchFlushSize       = 64                     // Events per batch write
	BatchFlushInterval   = 100 * time.Millisecond // How often to flush
	SourceLimiterCleanup = 5 * time.Minute        // Cleanup interval for source limiters
)

// EventLog provides bounded, rate-limited JSONL event logging. Emit never
// blocks the tick: when the ring is full the oldest events are dropped.
type EventLog struct {
	// Circular buffer (single producer: the range tick)
	buffer    [EventBufferSize]Event
	writeHead uint64 // atomic - producer position
	readHead  uint64 // atomic - consumer position

	globalLimiter  *rate.Limiter
	sourceLimiters sync.Map // map[string]*sourceLimiterEntry
	perSource      rate.Limit

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	filePath string
	file     *os.File
	out      *bufio.Writer
	fileMu   sync.Mutex
	log      *zap.Logger

	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
	writeErrors  uint64 // atomic
}

type sourceLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nano
}

// NewEventLog creates a stopped event log. Rates <= 0 use the defaults.
func NewEventLog(maxPerSec, maxPerSource int, log *zap.Logger) *EventLog {
	if maxPerSec <= 0 {
		maxPerSec = MaxEventsPerSec
	}
	if maxPerSource <= 0 {
		maxPerSource = MaxEventsPerSource
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EventLog{
		globalLimiter: rate.NewLimiter(rate.Limit(maxPerSec), burst(maxPerSec)),
		perSource:     rate.Limit(maxPerSource),
		stopChan:      make(chan struct{}),
		log:           log,
	}
}

func burst(perSec int) int {
	if b := perSec / 10; b > 0 {
		return b
	}
	return 1
}

// Start opens filePath for append and begins the async writer. An empty
// path keeps events in memory only (they are still counted). A stopped log
// can be started again.
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}

	el.filePath = filePath
	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open event log %s: %w", filePath, err)
		}
		el.file = file
		el.out = bufio.NewWriter(file)
	}

	el.stopChan = make(chan struct{})
	el.stopOnce = sync.Once{}
	el.running.Store(true)
	el.writerWg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()
	return nil
}

// Stop flushes pending events and closes the file. Safe to call twice.
func (el *EventLog) Stop() {
	if !el.running.Load() {
		return
	}
	el.stopOnce.Do(func() {
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		el.fileMu.Lock()
		defer el.fileMu.Unlock()
		if el.file != nil {
			if err := el.out.Flush(); err != nil {
				el.log.Warn("event log flush failed", zap.Error(err))
			}
			if err := el.file.Close(); err != nil {
				el.log.Warn("event log close failed", zap.Error(err))
			}
		}
	})
}

// Emit adds an event. Returns false if rate limited or not running.
func (el *EventLog) Emit(event Event) bool {
	if !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}

	// Per-source limit keeps a runaway subsystem from starving the rest.
	if event.Source != "" && !el.sourceLimiter(event.Source).Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}

	head := atomic.AddUint64(&el.writeHead, 1)
	tail := atomic.LoadUint64(&el.readHead)
	if head-tail >= EventBufferSize {
		atomic.AddUint64(&el.readHead, 1)
		atomic.AddUint64(&el.droppedCount, 1)
	}

	event.Sequence = head
	el.buffer[head%EventBufferSize] = event

	atomic.AddUint64(&el.totalCount, 1)
	return true
}

// EmitSimple builds and emits an event.
func (el *EventLog) EmitSimple(eventType EventType, tickNum uint64, session, source string, payload interface{}) bool {
	if !el.running.Load() {
		return false
	}
	return el.Emit(NewEvent(eventType, tickNum, session, source, payload))
}

func (el *EventLog) sourceLimiter(source string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := el.sourceLimiters.Load(source); ok {
		e := v.(*sourceLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}
	entry := &sourceLimiterEntry{limiter: rate.NewLimiter(el.perSource, burst(int(el.perSource)))}
	entry.lastUsed.Store(now)
	actual, _ := el.sourceLimiters.LoadOrStore(source, entry)
	return actual.(*sourceLimiterEntry).limiter
}

// writerLoop batches and writes events to disk asynchronously
func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)
	for {
		select {
		case <-el.stopChan:
			// Drain everything still buffered.
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}
		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

// cleanupLoop removes idle source limiters
func (el *EventLog) cleanupLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(SourceLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-SourceLimiterCleanup).UnixNano()
			el.sourceLimiters.Range(func(key, value interface{}) bool {
				if value.(*sourceLimiterEntry).lastUsed.Load() < cutoff {
					el.sourceLimiters.Delete(key)
				}
				return true
			})
		}
	}
}

// collectBatch reads available events from the circular buffer
func (el *EventLog) collectBatch(batch []Event) []Event {
	head := atomic.LoadUint64(&el.writeHead)
	tail := atomic.LoadUint64(&el.readHead)

	for i := tail + 1; i <= head && len(batch) < BatchFlushSize; i++ {
		batch = append(batch, el.buffer[i%EventBufferSize])
	}
	if len(batch) > 0 {
		atomic.AddUint64(&el.readHead, uint64(len(batch)))
	}
	return batch
}

// flushBatch appends events as newline-delimited JSON.
func (el *EventLog) flushBatch(batch []Event) {
	el.fileMu.Lock()
	defer el.fileMu.Unlock()

	if el.out == nil {
		return
	}
	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			atomic.AddUint64(&el.writeErrors, 1)
			continue
		}
		data = append(data, '\n')
		if _, err := el.out.Write(data); err != nil {
			atomic.AddUint64(&el.writeErrors, 1)
			el.log.Warn("event log write failed", zap.String("path", el.filePath), zap.Error(err))
			return
		}
	}
	if err := el.out.Flush(); err != nil {
		atomic.AddUint64(&el.writeErrors, 1)
		el.log.Warn("event log flush failed", zap.String("path", el.filePath), zap.Error(err))
	}
}

// EventLogStats is a monitoring view of the log.
type EventLogStats struct {
	Total       uint64 `json:"total"`
	Dropped     uint64 `json:"dropped"`
	Pending     uint64 `json:"pending"`
	WriteErrors uint64 `json:"writeErrors"`
	Running     bool   `json:"running"`
}

// GetStats returns counters for monitoring.
func (el *EventLog) GetStats() EventLogStats {
	head := atomic.LoadUint64(&el.writeHead)
	tail := atomic.LoadUint64(&el.readHead)
	return EventLogStats{
		Total:       atomic.LoadUint64(&el.totalCount),
		Dropped:     atomic.LoadUint64(&el.droppedCount),
		Pending:     head - tail,
		WriteErrors: atomic.LoadUint64(&el.writeErrors),
		Running:     el.running.Load(),
	}
}

// GetDroppedCount returns the number of dropped events
func (el *EventLog) GetDroppedCount() uint64 {
	return atomic.LoadUint64(&el.droppedCount)
}

// GetTotalCount returns the total number of events accepted
func (el *EventLog) GetTotalCount() uint64 {
	return atomic.LoadUint64(&el.totalCount)
}
