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

// Range is what the publisher reads snapshots from and applies commands to.
type Range interface {
	Session() string
	GetSnapshot() game.RangeSnapshot
	PullTrigger() bool
	ReleaseTrigger()
	ResetWeapon()
	StartSpawning() error
	StopSpawning()
	SpawnTarget(health int) (game.SpawnReport, error)
}

// PublisherStats counts publisher traffic.
type PublisherStats struct {
	Clients   int   `json:"clients"`
	Sent      int64 `json:"sent"`
	Commands  int64 `json:"commands"`
	WriteErrs int64 `json:"writeErrors"`
}

// Publisher pushes range snapshots to connected viewers at a fixed rate
// and applies the commands they send back.
type Publisher struct {
	socketPath string
	rng        Range
	fps        int
	tickRate   int
	log        *zap.Logger
	listener   net.Listener

	clients   map[net.Conn]struct{}
	clientsMu sync.RWMutex

	// Stats
	clientCount int32 // atomic
	sent        int64 // atomic
	commands    int64 // atomic
	writeErrs   int64 // atomic

	// Control
	running int32 // atomic
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPublisher creates a publisher. Nothing runs until Start.
func NewPublisher(socketPath string, rng Range, fps, tickRate int, log *zap.Logger) *Publisher {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if fps <= 0 {
		fps = 30
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		socketPath: socketPath,
		rng:        rng,
		fps:        fps,
		tickRate:   tickRate,
		log:        log.Named("ipc"),
		clients:    make(map[net.Conn]struct{}),
	}
}

// Start opens the socket and begins accepting viewers.
func (p *Publisher) Start() error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return nil // Already running
	}

	listener, err := Listen(p.socketPath)
	if err != nil {
		atomic.StoreInt32(&p.running, 0)
		return err
	}
	p.listener = listener
	p.stopCh = make(chan struct{})

	p.wg.Add(2)
	go p.acceptLoop()
	go p.broadcastLoop()

	p.log.Info("publisher started", zap.String("addr", Address(p.socketPath)), zap.Int("fps", p.fps))
	return nil
}

// Stop closes every viewer and removes the socket.
func (p *Publisher) Stop() {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return // Not running
	}

	close(p.stopCh)
	p.listener.Close()

	p.clientsMu.Lock()
	for conn := range p.clients {
		conn.Close()
	}
	p.clientsMu.Unlock()

	p.wg.Wait()
	CleanupSocket(p.socketPath)
	p.log.Info("publisher stopped")
}

// Stats returns publisher counters
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Clients:   int(atomic.LoadInt32(&p.clientCount)),
		Sent:      atomic.LoadInt64(&p.sent),
		Commands:  atomic.LoadInt64(&p.commands),
		WriteErrs: atomic.LoadInt64(&p.writeErrs),
	}
}

func (p *Publisher) acceptLoop() {
	defer p.wg.Done()

	for atomic.LoadInt32(&p.running) == 1 {
		conn, err := p.listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&p.running) == 0 {
				return // Expected during shutdown
			}
			p.log.Warn("accept failed", zap.Error(err))
			continue
		}
		if atomic.LoadInt32(&p.running) == 0 {
			conn.Close()
			return
		}
		p.addClient(conn)
	}
}

func (p *Publisher) addClient(conn net.Conn) {
	p.clientsMu.Lock()
	p.clients[conn] = struct{}{}
	p.clientsMu.Unlock()

	count := atomic.AddInt32(&p.clientCount, 1)
	p.log.Info("viewer connected", zap.Int32("total", count))

	conn.SetWriteDeadline(time.Now().Add(time.Second))
	hello := HelloMessage{Session: p.rng.Session(), TickRate: p.tickRate, FPS: p.fps}
	if err := WriteMessage(conn, MsgTypeHello, hello); err != nil {
		p.log.Warn("hello failed", zap.Error(err))
		p.removeClient(conn)
		return
	}

	p.wg.Add(1)
	go p.readLoop(conn)
}

func (p *Publisher) removeClient(conn net.Conn) {
	p.clientsMu.Lock()
	_, ok := p.clients[conn]
	delete(p.clients, conn)
	p.clientsMu.Unlock()
	conn.Close()

	if ok {
		count := atomic.AddInt32(&p.clientCount, -1)
		p.log.Info("viewer disconnected", zap.Int32("remaining", count))
	}
}

// readLoop handles commands and pings from one viewer.
func (p *Publisher) readLoop(conn net.Conn) {
	defer p.wg.Done()
	defer p.removeClient(conn)

	for {
		msgType, data, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && atomic.LoadInt32(&p.running) == 1 {
				p.log.Debug("viewer read failed", zap.Error(err))
			}
			return
		}

		switch msgType {
		case MsgTypeCommand:
			var cmd CommandMessage
			if err := Decode(data, &cmd); err != nil {
				p.log.Warn("bad command", zap.Error(err))
				continue
			}
			atomic.AddInt64(&p.commands, 1)
			p.apply(cmd)
		}
	}
}

func (p *Publisher) apply(cmd CommandMessage) {
	switch cmd.Op {
	case OpPull:
		p.rng.PullTrigger()
	case OpRelease:
		p.rng.ReleaseTrigger()
	case OpReset:
		p.rng.ResetWeapon()
	case OpStartSpawner:
		if err := p.rng.StartSpawning(); err != nil {
			p.log.Debug("start spawner failed", zap.Error(err))
		}
	case OpStopSpawner:
		p.rng.StopSpawning()
	case OpSpawn:
		if _, err := p.rng.SpawnTarget(cmd.Health); err != nil {
			p.log.Debug("spawn failed", zap.Error(err))
		}
	default:
		p.log.Debug("unknown command", zap.String("op", cmd.Op))
	}
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(p.fps))
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
		}
		if atomic.LoadInt32(&p.clientCount) == 0 {
			continue
		}
		snap := p.rng.GetSnapshot()
		if snap.Sequence == lastSeq {
			continue // No tick since the last frame
		}
		lastSeq = snap.Sequence
		p.broadcast(&snap)
	}
}

func (p *Publisher) broadcast(snap *game.RangeSnapshot) {
	p.clientsMu.RLock()
	clients := make([]net.Conn, 0, len(p.clients))
	for conn := range p.clients {
		clients = append(clients, conn)
	}
	p.clientsMu.RUnlock()

	var failed []net.Conn
	for _, conn := range clients {
		conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
		if err := WriteMessage(conn, MsgTypeSnapshot, snap); err != nil {
			atomic.AddInt64(&p.writeErrs, 1)
			failed = append(failed, conn)
		}
	}
	for _, conn := range failed {
		p.removeClient(conn)
	}
	if len(clients) > len(failed) {
		atomic.AddInt64(&p.sent, 1)
	}
}
