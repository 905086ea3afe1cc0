package game

// Shape is a spawn or sensor volume. Bounds is the axis-aligned box that
// encloses it; Contains is the exact test.
type Shape interface {
	Bounds() (min, max Vec3)
	Contains(p Vec3) bool
}

// Box is an axis-aligned box.
type Box struct {
	Center Vec3 `yaml:"center" json:"center"`
	Size   Vec3 `yaml:"size" json:"size"`
}

func (b Box) Bounds() (Vec3, Vec3) {
	half := b.Size.Scale(0.5)
	return b.Center.Sub(half), b.Center.Add(half)
}

func (b Box) Contains(p Vec3) bool {
	lo, hi := b.Bounds()
	return p.X >= lo.X && p.X <= hi.X &&
		p.Y >= lo.Y && p.Y <= hi.Y &&
		p.Z >= lo.Z && p.Z <= hi.Z
}

// Sphere is a ball. Box sampling misses it about half the time, which is
// what the sample retry budget is for.
type Sphere struct {
	Center Vec3    `yaml:"center" json:"center"`
	Radius float64 `yaml:"radius" json:"radius"`
}

func (s Sphere) Bounds() (Vec3, Vec3) {
	r := Vec3{s.Radius, s.Radius, s.Radius}
	return s.Center.Sub(r), s.Center.Add(r)
}

func (s Sphere) Contains(p Vec3) bool {
	return p.Sub(s.Center).Len() <= s.Radius
}

// SpawnArea is a region targets spawn in, with the direction they travel
// and the way they face.
type SpawnArea struct {
	Name      string
	Shape     Shape
	Direction Vec3
	Forward   Vec3
}

// MaxSampleAttempts bounds the rejection sampling in SamplePoint.
const MaxSampleAttempts = 10

// SamplePoint draws a point from the shape's bounds, retrying while it falls
// outside the true shape. After attempts draws the last point is returned
// as is. The second result is the number of draws used.
func SamplePoint(s Shape, rng Random, attempts int) (Vec3, int) {
	if attempts < 1 {
		attempts = 1
	}
	lo, hi := s.Bounds()
	var p Vec3
	for n := 1; n <= attempts; n++ {
		p = Vec3{
			X: rng.Float64Range(lo.X, hi.X),
			Y: rng.Float64Range(lo.Y, hi.Y),
			Z: rng.Float64Range(lo.Z, hi.Z),
		}
		if s.Contains(p) {
			return p, n
		}
	}
	return p, attempts
}
