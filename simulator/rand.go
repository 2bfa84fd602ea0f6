package simulator

const (
	parkMillerModulus    = 2147483647
	parkMillerMultiplier = 16807
)

// Rand is a Park-Miller minimal standard generator. Each value carries its own
// state, so seeding is reproducible without package-level state.
type Rand struct {
	state int64
}

// NewRand seeds a generator. A seed of 0 (mod the modulus) would stick at 0
// and is replaced by 1.
func NewRand(seed int64) *Rand {
	s := seed % parkMillerModulus
	if s < 0 {
		s += parkMillerModulus
	}
	if s == 0 {
		s = 1
	}
	return &Rand{state: s}
}

// Next advances the generator and returns a float in [0, 1).
func (r *Rand) Next() float64 {
	r.state = (r.state * parkMillerMultiplier) % parkMillerModulus
	return float64(r.state-1) / float64(parkMillerModulus-1)
}
