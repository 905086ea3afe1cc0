package game

// deadline is a single pending continuation on the simulation clock.
// Arming a pending deadline replaces it.
type deadline struct {
	at      float64
	pending bool
}

func (d *deadline) Arm(now, after float64) {
	if after < 0 {
		after = 0
	}
	d.at = now + after
	d.pending = true
}

func (d *deadline) Cancel() { d.pending = false }

func (d *deadline) Pending() bool { return d.pending }

// Expired reports true exactly once, on the first call at or after the deadline.
func (d *deadline) Expired(now float64) bool {
	if !d.pending || now < d.at {
		return false
	}
	d.pending = false
	return true
}

// Remaining returns seconds until the deadline, 0 when nothing is pending.
func (d *deadline) Remaining(now float64) float64 {
	if !d.pending || now >= d.at {
		return 0
	}
	return d.at - now
}
