package ipc

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"shooting-range/internal/game"
)

// SubscriberStats counts subscriber traffic.
type SubscriberStats struct {
	Received   int64 `json:"received"`
	Reconnects int64 `json:"reconnects"`
	Errors     int64 `json:"errors"`
}

// Subscriber follows a publisher and exposes the latest snapshot. Its
// command methods forward to the server, so it can stand in for a local
// range in a viewer.
type Subscriber struct {
	socketPath string
	log        *zap.Logger
	conn       net.Conn
	connMu     sync.Mutex

	// Latest snapshot (lock-free access)
	latest atomic.Value // *game.RangeSnapshot
	hello  atomic.Value // HelloMessage

	// Stats
	received   int64 // atomic
	reconnects int64 // atomic
	errs       int64 // atomic

	// Control
	running int32 // atomic
	stopCh  chan struct{}
	wg      sync.WaitGroup

	onSnapshot func(*game.RangeSnapshot)
}

// NewSubscriber creates a new IPC subscriber
func NewSubscriber(socketPath string, log *zap.Logger) *Subscriber {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Subscriber{
		socketPath: socketPath,
		log:        log.Named("ipc"),
		stopCh:     make(chan struct{}),
	}
}

// OnSnapshot sets a callback run on the read goroutine for every snapshot.
func (s *Subscriber) OnSnapshot(fn func(*game.RangeSnapshot)) {
	s.onSnapshot = fn
}

// Start connects in the background and keeps reconnecting until Stop.
func (s *Subscriber) Start() {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return
	}
	s.wg.Add(1)
	go s.connectionLoop()
	s.log.Info("subscriber started", zap.String("addr", Address(s.socketPath)))
}

// Stop stops the subscriber
func (s *Subscriber) Stop() {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return
	}
	close(s.stopCh)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
}

// Hello returns the server greeting, if one has arrived.
func (s *Subscriber) Hello() (HelloMessage, bool) {
	h, ok := s.hello.Load().(HelloMessage)
	return h, ok
}

// Stats returns subscriber counters
func (s *Subscriber) Stats() SubscriberStats {
	return SubscriberStats{
		Received:   atomic.LoadInt64(&s.received),
		Reconnects: atomic.LoadInt64(&s.reconnects),
		Errors:     atomic.LoadInt64(&s.errs),
	}
}

// IsConnected reports whether a server is attached.
func (s *Subscriber) IsConnected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

// GetSnapshot returns the latest snapshot, or an empty one before the
// first arrives.
func (s *Subscriber) GetSnapshot() game.RangeSnapshot {
	if snap, ok := s.latest.Load().(*game.RangeSnapshot); ok {
		return *snap
	}
	return game.RangeSnapshot{}
}

// PullTrigger forwards a pull. It reports whether the command was sent.
func (s *Subscriber) PullTrigger() bool {
	return s.send(CommandMessage{Op: OpPull}) == nil
}

func (s *Subscriber) ReleaseTrigger() { s.send(CommandMessage{Op: OpRelease}) }
func (s *Subscriber) ResetWeapon()    { s.send(CommandMessage{Op: OpReset}) }
func (s *Subscriber) StopSpawning()   { s.send(CommandMessage{Op: OpStopSpawner}) }

func (s *Subscriber) StartSpawning() error {
	return s.send(CommandMessage{Op: OpStartSpawner})
}

// SpawnTarget forwards a spawn request. The server's outcome is not
// reported back; the returned report only echoes the request.
func (s *Subscriber) SpawnTarget(health int) (game.SpawnReport, error) {
	if err := s.send(CommandMessage{Op: OpSpawn, Health: health}); err != nil {
		return game.SpawnReport{}, err
	}
	return game.SpawnReport{Health: health, Area: "remote"}, nil
}

func (s *Subscriber) send(cmd CommandMessage) error {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return WriteMessage(conn, MsgTypeCommand, cmd)
}

func (s *Subscriber) connectionLoop() {
	defer s.wg.Done()

	for atomic.LoadInt32(&s.running) == 1 {
		conn, err := Dial(s.socketPath)
		if err == nil {
			s.connMu.Lock()
			s.conn = conn
			s.connMu.Unlock()
			s.log.Info("connected", zap.String("addr", Address(s.socketPath)))

			s.readLoop(conn)

			s.connMu.Lock()
			s.conn = nil
			s.connMu.Unlock()
			conn.Close()
			atomic.AddInt64(&s.reconnects, 1)
		}

		select {
		case <-s.stopCh:
			return
		case <-time.After(ReconnectDelay):
		}
	}
}

func (s *Subscriber) readLoop(conn net.Conn) {
	for {
		// Blocks until a frame arrives; Stop closes conn to end it
		msgType, data, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && atomic.LoadInt32(&s.running) == 1 {
				s.log.Warn("read failed", zap.Error(err))
				atomic.AddInt64(&s.errs, 1)
			}
			return
		}

		switch msgType {
		case MsgTypeSnapshot:
			snap, err := DecodeSnapshot(data)
			if err != nil {
				s.log.Warn("bad snapshot", zap.Error(err))
				atomic.AddInt64(&s.errs, 1)
				continue
			}
			s.latest.Store(snap)
			atomic.AddInt64(&s.received, 1)
			if s.onSnapshot != nil {
				s.onSnapshot(snap)
			}
		case MsgTypeHello:
			var hello HelloMessage
			if err := Decode(data, &hello); err != nil {
				atomic.AddInt64(&s.errs, 1)
				continue
			}
			s.hello.Store(hello)
			s.log.Info("attached to range", zap.String("session", hello.Session), zap.Int("fps", hello.FPS))
		}
	}
}
