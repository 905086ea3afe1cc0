// Package audio plays the range's sound cues through a beep mixer.
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
	"go.uber.org/zap"

	"shooting-range/internal/game"
)

// MaxVoices caps concurrently playing cues.
const MaxVoices = 8

var ErrUnknownCue = errors.New("unknown cue")

// Config holds cue bank settings.
type Config struct {
	SampleRate int
	Volume     float64 // 0.0 to 1.0
	Dir        string  // optional <cue>.wav / <cue>.ogg overrides
}

// Bank holds one decoded buffer per cue and mixes whatever is playing.
// It implements game.SoundPlayer.
type Bank struct {
	mu      sync.Mutex
	format  beep.Format
	volume  float64
	cues    map[string]*beep.Buffer
	mixer   *beep.Mixer
	speaker bool
	log     *zap.Logger

	played  map[string]uint64
	dropped uint64
	unknown uint64
}

// Stats is a monitoring view of the bank.
type Stats struct {
	Played  map[string]uint64 `json:"played"`
	Dropped uint64            `json:"dropped"`
	Unknown uint64            `json:"unknown"`
	Voices  int               `json:"voices"`
}

// NewBank synthesizes the built-in cues and replaces any that have a file
// in cfg.Dir.
func NewBank(cfg Config, log *zap.Logger) (*Bank, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	b := &Bank{
		format: beep.Format{SampleRate: beep.SampleRate(cfg.SampleRate), NumChannels: 2, Precision: 2},
		volume: cfg.Volume,
		cues:   make(map[string]*beep.Buffer),
		mixer:  &beep.Mixer{},
		log:    log,
		played: make(map[string]uint64),
	}
	for cue, gen := range builtinCues {
		buf := beep.NewBuffer(b.format)
		buf.Append(gen(b.format.SampleRate))
		b.cues[cue] = buf
	}
	if cfg.Dir != "" {
		if err := b.loadDir(cfg.Dir); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// builtinCues synthesizes a sound for each cue the range plays.
var builtinCues = map[string]func(beep.SampleRate) beep.Streamer{
	game.CueShot: func(r beep.SampleRate) beep.Streamer {
		d := 90 * time.Millisecond
		return NewEnvelope(beep.Mix(
			NewOscillator(900, 200, d, WaveSquare, r),
			NewOscillator(0, 0, d, WaveNoise, r),
		), d, 2*time.Millisecond, r)
	},
	game.CueImpact: func(r beep.SampleRate) beep.Streamer {
		d := 60 * time.Millisecond
		return NewEnvelope(NewOscillator(320, 180, d, WaveSaw, r), d, time.Millisecond, r)
	},
	game.CueExplosion: func(r beep.SampleRate) beep.Streamer {
		d := 400 * time.Millisecond
		return NewEnvelope(beep.Mix(
			NewOscillator(0, 0, d, WaveNoise, r),
			NewOscillator(120, 40, d, WaveSine, r),
		), d, 5*time.Millisecond, r)
	},
}

// loadDir replaces cues with <cue>.wav or <cue>.ogg files. Missing files
// are skipped.
func (b *Bank) loadDir(dir string) error {
	for cue := range b.cues {
		for _, ext := range []string{".wav", ".ogg"} {
			path := filepath.Join(dir, cue+ext)
			buf, err := b.decodeFile(path, ext)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				return fmt.Errorf("load cue %s: %w", path, err)
			}
			b.cues[cue] = buf
			b.log.Debug("loaded cue", zap.String("cue", cue), zap.String("file", path))
			break
		}
	}
	return nil
}

func (b *Bank) decodeFile(path, ext string) (*beep.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	if ext == ".ogg" {
		s, format, err = vorbis.Decode(f)
	} else {
		s, format, err = wav.Decode(f)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	defer s.Close()

	var src beep.Streamer = s
	if format.SampleRate != b.format.SampleRate {
		src = beep.Resample(4, format.SampleRate, b.format.SampleRate, s)
	}
	buf := beep.NewBuffer(b.format)
	buf.Append(src)
	return buf, nil
}

// Play starts a cue. Unknown cues are counted and ignored; when MaxVoices
// are already playing the cue is dropped.
func (b *Bank) Play(cue string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.cues[cue]
	if !ok {
		b.unknown++
		b.log.Debug("unknown cue", zap.String("cue", cue))
		return
	}
	if b.mixer.Len() >= MaxVoices {
		b.dropped++
		return
	}
	b.played[cue]++
	b.mixer.Add(withVolume(buf.Streamer(0, buf.Len()), b.volume))
}

// Duration returns the length of a cue.
func (b *Bank) Duration(cue string) (time.Duration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.cues[cue]
	if !ok {
		return 0, fmt.Errorf("%q: %w", cue, ErrUnknownCue)
	}
	return b.format.SampleRate.D(buf.Len()), nil
}

// Stream pulls mixed samples. It is what the speaker reads; tests and
// headless callers can drain it directly.
func (b *Bank) Stream(samples [][2]float64) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mixer.Stream(samples)
}

func (b *Bank) Err() error { return nil }

// StartSpeaker opens the default audio device and plays the mix on it.
func (b *Bank) StartSpeaker() error {
	rate := b.format.SampleRate
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	b.mu.Lock()
	b.speaker = true
	b.mu.Unlock()
	speaker.Play(b)
	b.log.Info("speaker started", zap.Int("sampleRate", int(rate)))
	return nil
}

// Close stops the speaker if it was started.
func (b *Bank) Close() {
	b.mu.Lock()
	on := b.speaker
	b.speaker = false
	b.mu.Unlock()
	if on {
		speaker.Clear()
		speaker.Close()
	}
}

// Stats returns play counters.
func (b *Bank) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	played := make(map[string]uint64, len(b.played))
	for k, v := range b.played {
		played[k] = v
	}
	return Stats{Played: played, Dropped: b.dropped, Unknown: b.unknown, Voices: b.mixer.Len()}
}

// withVolume scales a stream linearly. Zero volume is silent.
func withVolume(s beep.Streamer, vol float64) beep.Streamer {
	if vol <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Volume: 0, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(vol), Silent: false}
}
