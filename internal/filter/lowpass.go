package filter

import (
	"errors"
	"fmt"
	"math"

	"github.com/lukasbauer/livescribe/internal/audio"
)

// Params configures the Butterworth low-pass design.
type Params struct {
	SampleRate int
	CutoffHz   float64
	Order      int // must be even; each pair of poles becomes one biquad section
}

// Section is one normalized biquad (a0 == 1).
type Section struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// Coefficients is an immutable cascade of biquad sections.
// A zero-value Coefficients passes audio through unchanged.
type Coefficients struct {
	sections []Section
}

// State is the transposed direct-form II delay line, two values per section.
type State []float64

// Design computes a Butterworth low-pass cascade using the bilinear transform.
func Design(p Params) (Coefficients, error) {
	if p.SampleRate <= 0 {
		return Coefficients{}, errors.New("filter: sample rate must be positive")
	}
	if p.Order <= 0 || p.Order%2 != 0 {
		return Coefficients{}, fmt.Errorf("filter: order must be a positive even number (got %d)", p.Order)
	}
	nyquist := float64(p.SampleRate) / 2
	if p.CutoffHz <= 0 || p.CutoffHz >= nyquist {
		return Coefficients{}, fmt.Errorf("filter: cutoff %.1f Hz outside (0, %.1f)", p.CutoffHz, nyquist)
	}

	w0 := 2 * math.Pi * p.CutoffHz / float64(p.SampleRate)
	cosW0, sinW0 := math.Cos(w0), math.Sin(w0)

	n := p.Order / 2
	sections := make([]Section, n)
	for k := 0; k < n; k++ {
		q := 1 / (2 * math.Sin(float64(2*k+1)*math.Pi/float64(2*p.Order)))
		alpha := sinW0 / (2 * q)
		a0 := 1 + alpha
		sections[k] = Section{
			B0: (1 - cosW0) / 2 / a0,
			B1: (1 - cosW0) / a0,
			B2: (1 - cosW0) / 2 / a0,
			A1: -2 * cosW0 / a0,
			A2: (1 - alpha) / a0,
		}
	}
	return Coefficients{sections: sections}, nil
}

// Sections returns a copy of the cascade.
func (c Coefficients) Sections() []Section {
	return append([]Section(nil), c.sections...)
}

// Initial returns the zero state matching this cascade.
func (c Coefficients) Initial() State {
	return make(State, 2*len(c.sections))
}

// Apply filters 16-bit little-endian PCM and returns the filtered bytes and the
// next state. It does not modify chunk or st. Output length equals input length,
// and splitting a stream at any sample boundary yields identical output.
// chunk must have even length.
func (c Coefficients) Apply(chunk []byte, st State) ([]byte, State) {
	next := make(State, len(st))
	copy(next, st)
	if len(c.sections) == 0 {
		return append([]byte(nil), chunk...), next
	}

	samples := audio.Int16s(chunk)
	for i, s := range samples {
		y := float64(s)
		for k, sec := range c.sections {
			z1, z2 := &next[2*k], &next[2*k+1]
			x := y
			y = sec.B0*x + *z1
			*z1 = sec.B1*x - sec.A1*y + *z2
			*z2 = sec.B2*x - sec.A2*y
		}
		samples[i] = audio.ClampInt16(y)
	}
	return audio.Bytes(samples), next
}

// Stage is a single connection's filter: shared coefficients plus owned state.
type Stage struct {
	coeffs Coefficients
	state  State
}

// NewStage starts a stage from the coefficients' initial state.
func NewStage(c Coefficients) *Stage {
	return &Stage{coeffs: c, state: c.Initial()}
}

// Process filters one chunk and carries the state forward.
func (s *Stage) Process(chunk []byte) ([]byte, error) {
	if len(chunk)%audio.BytesPerSample != 0 {
		return nil, fmt.Errorf("%w (got %d bytes)", audio.ErrOddLength, len(chunk))
	}
	out, next := s.coeffs.Apply(chunk, s.state)
	s.state = next
	return out, nil
}

// State returns a copy of the current filter state.
func (s *Stage) State() State {
	return append(State(nil), s.state...)
}
