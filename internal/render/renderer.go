// Package render draws range snapshots as top-down PNG frames.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"shooting-range/internal/game"
)

// Config sizes the frame.
type Config struct {
	Width  int
	Height int
	// FontPath overrides font discovery. The embedded Go font is used when
	// nothing loads.
	FontPath string
}

// DefaultConfig is a 720p frame.
func DefaultConfig() Config {
	return Config{Width: 1280, Height: 720}
}

// tierColors index by visual tier.
var tierColors = []string{"#53ff45", "#ffeb3b", "#ff9500", "#ff3e3e", "#d500f9"}

// Renderer projects the range floor (X/Z) onto the frame; Y is dropped.
// One gg.Context is reused, so calls are serialized.
type Renderer struct {
	cfg  Config
	mu   sync.Mutex
	dc   *gg.Context
	face font.Face
}

// New creates a renderer. Non-positive sizes fall back to DefaultConfig.
func New(cfg Config) *Renderer {
	def := DefaultConfig()
	if cfg.Width <= 0 {
		cfg.Width = def.Width
	}
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	path := cfg.FontPath
	if path == "" {
		path = findFont()
	}
	return &Renderer{
		cfg:  cfg,
		dc:   gg.NewContext(cfg.Width, cfg.Height),
		face: loadFace(path, 18),
	}
}

// loadFace parses the font at path, falling back to the embedded Go font.
// Nil only if both fail.
func loadFace(path string, size float64) font.Face {
	data := goregular.TTF
	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			data = b
		}
	}
	parsed, err := opentype.Parse(data)
	if err != nil {
		if parsed, err = opentype.Parse(goregular.TTF); err != nil {
			return nil
		}
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil
	}
	return face
}

// Size returns the frame dimensions.
func (r *Renderer) Size() (int, int) { return r.cfg.Width, r.cfg.Height }

// WritePNG renders snap and encodes it to w.
func (r *Renderer) WritePNG(w io.Writer, snap *game.RangeSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draw(snap)
	return r.dc.EncodePNG(w)
}

// Render returns a copy of the rendered frame.
func (r *Renderer) Render(snap *game.RangeSnapshot) *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draw(snap)
	src := r.dc.Image()
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}

// projection maps floor coordinates to pixels, preserving aspect ratio.
type projection struct {
	scale  float64
	offX   float64
	offY   float64
	bounds game.Box
}

func (r *Renderer) project(b game.Box) projection {
	w, d := b.Size.X, b.Size.Z
	if w <= 0 {
		w = 1
	}
	if d <= 0 {
		d = 1
	}
	const margin = 20.0
	sx := (float64(r.cfg.Width) - 2*margin) / w
	sy := (float64(r.cfg.Height) - 2*margin) / d
	scale := math.Min(sx, sy)
	return projection{
		scale:  scale,
		offX:   (float64(r.cfg.Width) - w*scale) / 2,
		offY:   (float64(r.cfg.Height) - d*scale) / 2,
		bounds: b,
	}
}

// point maps a world position. Far (+Z) is the top of the frame.
func (p projection) point(v game.Vec3) (float64, float64) {
	minX := p.bounds.Center.X - p.bounds.Size.X/2
	maxZ := p.bounds.Center.Z + p.bounds.Size.Z/2
	return p.offX + (v.X-minX)*p.scale, p.offY + (maxZ-v.Z)*p.scale
}

func (r *Renderer) draw(snap *game.RangeSnapshot) {
	dc := r.dc
	dc.Push()
	defer dc.Pop()

	r.drawBackground(dc)
	dc.Translate(snap.Shake.OffsetX*10, snap.Shake.OffsetY*10)

	proj := r.project(snap.Bounds)
	r.drawFloor(dc, proj)
	r.drawTargets(dc, proj, snap.Targets)
	r.drawBullets(dc, proj, snap.Bullets)
	r.drawEffects(dc, proj, snap.Effects)
	r.drawWeapon(dc, proj, snap.Weapon)

	dc.Identity()
	r.drawHUD(dc, snap)
}

func (r *Renderer) drawBackground(dc *gg.Context) {
	dc.SetColor(color.RGBA{12, 12, 28, 255})
	dc.DrawRectangle(0, 0, float64(r.cfg.Width), float64(r.cfg.Height))
	dc.Fill()
}

func (r *Renderer) drawFloor(dc *gg.Context, p projection) {
	x0, y0 := p.point(game.Vec3{X: p.bounds.Center.X - p.bounds.Size.X/2, Z: p.bounds.Center.Z + p.bounds.Size.Z/2})
	w, h := p.bounds.Size.X*p.scale, p.bounds.Size.Z*p.scale

	dc.SetColor(color.RGBA{22, 26, 40, 255})
	dc.DrawRectangle(x0, y0, w, h)
	dc.Fill()

	// One line per 5 world units
	dc.SetColor(color.RGBA{30, 30, 45, 255})
	dc.SetLineWidth(1)
	step := 5 * p.scale
	if step >= 4 {
		for x := x0; x <= x0+w; x += step {
			dc.DrawLine(x, y0, x, y0+h)
			dc.Stroke()
		}
		for y := y0; y <= y0+h; y += step {
			dc.DrawLine(x0, y, x0+w, y)
			dc.Stroke()
		}
	}

	dc.SetColor(color.RGBA{90, 90, 120, 255})
	dc.SetLineWidth(2)
	dc.DrawRectangle(x0, y0, w, h)
	dc.Stroke()
}

func (r *Renderer) drawTargets(dc *gg.Context, p projection, targets []game.TargetSnapshot) {
	for _, t := range targets {
		if !t.Visible {
			continue
		}
		x, y := p.point(t.Position)
		radius := math.Max(t.Radius*p.scale, 4)

		// Shadow
		dc.SetColor(color.RGBA{0, 0, 0, 128})
		dc.DrawCircle(x, y+3, radius)
		dc.Fill()

		// Body
		dc.SetColor(TierColor(t.Tier))
		dc.DrawCircle(x, y, radius)
		dc.Fill()

		dc.SetColor(color.White)
		dc.SetLineWidth(2)
		dc.DrawCircle(x, y, radius)
		dc.Stroke()

		// Health bar
		if t.InitialHealth > 0 {
			pct := math.Max(0, math.Min(1, t.Health/t.InitialHealth))
			barW := radius * 2
			dc.SetColor(color.RGBA{51, 51, 51, 255})
			dc.DrawRectangle(x-barW/2, y-radius-8, barW, 4)
			dc.Fill()
			dc.SetColor(healthColor(pct))
			dc.DrawRectangle(x-barW/2, y-radius-8, barW*pct, 4)
			dc.Fill()
		}
	}
}

func (r *Renderer) drawBullets(dc *gg.Context, p projection, bullets []game.BulletSnapshot) {
	for _, b := range bullets {
		if !b.Visible {
			continue
		}
		x, y := p.point(b.Position)

		// Motion streak behind the bullet
		tail := b.Position.Sub(b.Velocity.Scale(0.02))
		tx, ty := p.point(tail)
		dc.SetColor(color.RGBA{255, 235, 59, 110})
		dc.SetLineWidth(2)
		dc.DrawLine(tx, ty, x, y)
		dc.Stroke()

		dc.SetColor(color.RGBA{255, 235, 59, 255})
		dc.DrawCircle(x, y, math.Max(b.Size*p.scale, 2))
		dc.Fill()
	}
}

func (r *Renderer) drawEffects(dc *gg.Context, p projection, effects []game.EffectSnapshot) {
	for _, e := range effects {
		x, y := p.point(e.Point)
		c := color.RGBA{255, 255, 255, 0}
		radius := 6.0
		if e.Kind == game.EffectTargetDestroy.String() {
			c = color.RGBA{255, 149, 0, 0}
			radius = 18 + (1-e.Alpha)*20
		}
		c.A = uint8(math.Max(0, math.Min(1, e.Alpha)) * 200)
		dc.SetColor(c)
		dc.DrawCircle(x, y, radius)
		dc.Fill()
	}
}

func (r *Renderer) drawWeapon(dc *gg.Context, p projection, w game.WeaponSnapshot) {
	x, y := p.point(w.Muzzle)
	ax, ay := p.point(w.Muzzle.Add(w.Forward.Scale(5)))

	dc.SetColor(color.RGBA{120, 200, 255, 160})
	dc.SetLineWidth(1)
	dc.DrawLine(x, y, ax, ay)
	dc.Stroke()

	c := color.RGBA{120, 200, 255, 255}
	if w.TriggerHeld {
		c = color.RGBA{255, 62, 62, 255}
	}
	dc.SetColor(c)
	dc.DrawRegularPolygon(3, x, y, 10, -math.Pi/2)
	dc.Fill()
}

func (r *Renderer) drawHUD(dc *gg.Context, snap *game.RangeSnapshot) {
	if r.face == nil {
		return
	}
	dc.SetFontFace(r.face)
	dc.SetColor(color.White)
	dc.DrawString(fmt.Sprintf("SCORE %d", snap.Score), 20, 30)
	dc.DrawString(fmt.Sprintf("DESTROYED %d", snap.Destroyed), 20, 54)
	dc.DrawStringAnchored(
		fmt.Sprintf("bullets %d/%d  targets %d/%d",
			snap.BulletPool.InUse, snap.BulletPool.Capacity,
			snap.TargetPool.InUse, snap.TargetPool.Capacity),
		float64(r.cfg.Width)-20, 30, 1, 0)
	dc.DrawStringAnchored("weapon "+snap.Weapon.State, float64(r.cfg.Width)-20, 54, 1, 0)
}

// TierColor returns the fill for a visual tier, clamped to the palette.
func TierColor(tier int) color.RGBA {
	if tier < 0 {
		tier = 0
	}
	if tier >= len(tierColors) {
		tier = len(tierColors) - 1
	}
	return ParseHexColor(tierColors[tier])
}

func healthColor(pct float64) color.RGBA {
	switch {
	case pct > 0.5:
		return color.RGBA{83, 255, 69, 255}
	case pct > 0.25:
		return color.RGBA{255, 149, 0, 255}
	default:
		return color.RGBA{255, 62, 62, 255}
	}
}

// ParseHexColor parses "#rrggbb". Anything else is white.
func ParseHexColor(hex string) color.RGBA {
	if len(hex) != 7 || hex[0] != '#' {
		return color.RGBA{255, 255, 255, 255}
	}
	return color.RGBA{
		R: hexToByte(hex[1], hex[2]),
		G: hexToByte(hex[3], hex[4]),
		B: hexToByte(hex[5], hex[6]),
		A: 255,
	}
}

func hexToByte(h1, h2 byte) uint8 {
	return hexCharToNibble(h1)<<4 | hexCharToNibble(h2)
}

func hexCharToNibble(c byte) uint8 {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func findFont() string {
	paths := []string{
		"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		"/System/Library/Fonts/Helvetica.ttc",
		"C:\\Windows\\Fonts\\arial.ttf",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if matches, _ := filepath.Glob("*.ttf"); len(matches) > 0 {
		return matches[0]
	}
	return ""
}
