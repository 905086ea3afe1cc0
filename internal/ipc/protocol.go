// Package ipc streams range snapshots to local viewers and carries their
// commands back. Unix domain sockets on Linux/macOS, TCP localhost on Windows.
package ipc

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"shooting-range/internal/game"
)

const (
	// DefaultSocketPath is the Unix socket path for IPC
	DefaultSocketPath = "/tmp/shooting-range.sock"

	// DefaultTCPAddr replaces the socket on Windows
	DefaultTCPAddr = "127.0.0.1:7071"

	// Message types
	MsgTypeSnapshot byte = 0x01
	MsgTypeHello    byte = 0x04
	MsgTypeCommand  byte = 0x05

	// Protocol version for compatibility checking
	ProtocolVersion uint16 = 1

	// Connection settings
	MaxMessageSize = 1024 * 1024 // 1MB max message
	WriteTimeout   = 50 * time.Millisecond
	ReconnectDelay = 500 * time.Millisecond
)

// ErrNotConnected is returned by commands sent while no server is attached.
var ErrNotConnected = errors.New("ipc: not connected")

// Command ops
const (
	OpPull         = "pull"
	OpRelease      = "release"
	OpReset        = "reset"
	OpSpawn        = "spawn"
	OpStartSpawner = "start_spawner"
	OpStopSpawner  = "stop_spawner"
)

// HelloMessage is sent to every new subscriber.
type HelloMessage struct {
	Session  string
	TickRate int
	FPS      int
}

// CommandMessage is a viewer request.
type CommandMessage struct {
	Op     string
	Health int
}

// Header is the message header for framing
type Header struct {
	Version  uint16
	Type     byte
	Reserved byte
	Length   uint32
}

const HeaderSize = 8 // 2 + 1 + 1 + 4

// WriteMessage gob-encodes data and writes it as one framed message.
func WriteMessage(w io.Writer, msgType byte, data interface{}) error {
	var body bytes.Buffer
	if data != nil {
		if err := gob.NewEncoder(&body).Encode(data); err != nil {
			return fmt.Errorf("gob encode: %w", err)
		}
	}
	if body.Len() > MaxMessageSize {
		return fmt.Errorf("message too large: %d > %d", body.Len(), MaxMessageSize)
	}

	frame := make([]byte, HeaderSize, HeaderSize+body.Len())
	binary.LittleEndian.PutUint16(frame[0:2], ProtocolVersion)
	frame[2] = msgType
	binary.LittleEndian.PutUint32(frame[4:8], uint32(body.Len()))
	frame = append(frame, body.Bytes()...)

	// One write per frame so concurrent writers never interleave
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadMessage reads a framed message from the connection
func ReadMessage(r io.Reader) (byte, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return 0, nil, err
	}

	header := Header{
		Version: binary.LittleEndian.Uint16(headerBuf[0:2]),
		Type:    headerBuf[2],
		Length:  binary.LittleEndian.Uint32(headerBuf[4:8]),
	}
	if header.Version != ProtocolVersion {
		return 0, nil, fmt.Errorf("version mismatch: got %d, want %d", header.Version, ProtocolVersion)
	}
	if header.Length > MaxMessageSize {
		return 0, nil, fmt.Errorf("message too large: %d > %d", header.Length, MaxMessageSize)
	}

	var body []byte
	if header.Length > 0 {
		body = make([]byte, header.Length)
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, fmt.Errorf("read body: %w", err)
		}
	}
	return header.Type, body, nil
}

// Decode gob-decodes a message body into v.
func Decode(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	return nil
}

// DecodeSnapshot decodes a snapshot body
func DecodeSnapshot(data []byte) (*game.RangeSnapshot, error) {
	var snap game.RangeSnapshot
	if err := Decode(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// CleanupSocket removes the socket file if it exists
func CleanupSocket(path string) error {
	if _, err := os.Stat(path); err == nil {
		return os.Remove(path)
	}
	return nil
}
