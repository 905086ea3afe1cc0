package game

import (
	"encoding/json"
	"time"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeTick              // Tick boundary with RNG seed
	EventTypeShot
	EventTypeShotSkipped
	EventTypeSequenceDone
	EventTypeHit
	EventTypeTargetDestroyed
	EventTypeTargetDespawned
	EventTypeTargetSpawned
	EventTypeSpawnSkipped
	EventTypeBulletReturned
	EventTypeStaleHandle
	EventTypeWeaponReset
)

// EventVersion for backwards compatibility in replay
const EventVersion uint8 = 1

// Event sources, used for per-source rate limiting.
const (
	SourceRange   = "range"
	SourceWeapon  = "weapon"
	SourceBullet  = "bullet"
	SourceTarget  = "target"
	SourceSpawner = "spawner"
)

// Event is the core event structure for the event log
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`  // Monotonic sequence
	TickNum   uint64          `json:"tickNum"`
	Session   string          `json:"session"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeTick:
		return "tick"
	case EventTypeShot:
		return "shot"
	case EventTypeShotSkipped:
		return "shot_skipped"
	case EventTypeSequenceDone:
		return "sequence_done"
	case EventTypeHit:
		return "hit"
	case EventTypeTargetDestroyed:
		return "target_destroyed"
	case EventTypeTargetDespawned:
		return "target_despawned"
	case EventTypeTargetSpawned:
		return "target_spawned"
	case EventTypeSpawnSkipped:
		return "spawn_skipped"
	case EventTypeBulletReturned:
		return "bullet_returned"
	case EventTypeStaleHandle:
		return "stale_handle"
	case EventTypeWeaponReset:
		return "weapon_reset"
	default:
		return "unknown"
	}
}

// MarshalText writes the event type by name in JSONL output.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText reads an event type back by name, for replay.
func (t *EventType) UnmarshalText(text []byte) error {
	for c := EventTypeTick; c <= EventTypeWeaponReset; c++ {
		if c.String() == string(text) {
			*t = c
			return nil
		}
	}
	*t = EventTypeUnknown
	return nil
}

// Typed payloads for different event types

// TickPayload contains tick boundary information for replay
type TickPayload struct {
	RNGSeed      int64   `json:"rngSeed"`
	Clock        float64 `json:"clock"`
	BulletsInUse int     `json:"bulletsInUse"`
	TargetsInUse int     `json:"targetsInUse"`
	DeltaTimeNs  int64   `json:"deltaTimeNs"`
}

// ShotPayload describes one weapon shot.
type ShotPayload struct {
	Index   int    `json:"index"`
	Handle  uint64 `json:"handle"`
	Forward Vec3   `json:"forward"`
}

// HitPayload describes a bullet contact.
type HitPayload struct {
	Bullet uint64  `json:"bullet"`
	Target uint64  `json:"target,omitempty"`
	Tag    string  `json:"tag"`
	Result string  `json:"result"`
	Health float64 `json:"health"`
	Point  Vec3    `json:"point"`
}

// TargetPayload describes a target lifecycle change.
type TargetPayload struct {
	Handle        uint64  `json:"handle"`
	Area          string  `json:"area,omitempty"`
	Health        float64 `json:"health"`
	InitialHealth float64 `json:"initialHealth"`
	Tier          int     `json:"tier"`
	Cause         string  `json:"cause,omitempty"`
	Points        int     `json:"points,omitempty"`
	Position      Vec3    `json:"position"`
}

// StaleHandlePayload records a release through an out-of-date handle.
type StaleHandlePayload struct {
	Entity string `json:"entity"`
	Slot   int    `json:"slot"`
	Error  string `json:"error"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload interface{}) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, tickNum uint64, session, source string, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		TickNum:   tickNum,
		Session:   session,
		Source:    source,
		Payload:   EncodePayload(payload),
	}
}
