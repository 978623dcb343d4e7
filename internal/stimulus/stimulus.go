package stimulus

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
)

// ErrDone signals that a stream has no further stimuli.
var ErrDone = errors.New("stimulus stream exhausted")

// Stream is a lazy, possibly infinite source of stimulus vectors. Next
// returns ErrDone when the source is exhausted.
type Stream interface {
	Next(ctx context.Context) ([]float64, error)
}

// Slice is a finite Stream over an in-memory set of stimuli.
type Slice struct {
	stimuli [][]float64
	pos     int
}

func NewSlice(stimuli [][]float64) *Slice {
	return &Slice{stimuli: stimuli}
}

func (s *Slice) Next(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.stimuli) {
		return nil, ErrDone
	}
	v := s.stimuli[s.pos]
	s.pos++
	out := make([]float64, len(v))
	copy(out, v)
	return out, nil
}

// Func adapts a generator function to a Stream. The function returns ErrDone
// to terminate the stream.
type Func func(ctx context.Context) ([]float64, error)

func (f Func) Next(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f(ctx)
}

// Repeat yields the same vector a fixed number of times. A negative count
// repeats forever.
func Repeat(v []float64, count int) Stream {
	remaining := count
	return Func(func(ctx context.Context) ([]float64, error) {
		if remaining == 0 {
			return nil, ErrDone
		}
		if remaining > 0 {
			remaining--
		}
		out := make([]float64, len(v))
		copy(out, v)
		return out, nil
	})
}

// Uniform yields count random vectors of the given dimension with entries
// drawn uniformly from [lo, hi). A negative count yields forever.
func Uniform(dim, count int, lo, hi float64, rng *rand.Rand) Stream {
	remaining := count
	return Func(func(ctx context.Context) ([]float64, error) {
		if remaining == 0 {
			return nil, ErrDone
		}
		if remaining > 0 {
			remaining--
		}
		out := make([]float64, dim)
		for i := range out {
			out[i] = lo + (hi-lo)*rng.Float64()
		}
		return out, nil
	})
}

// Roll gathers up to n stimuli of the given dimension from src into one
// epoch batch. When the source runs out mid-batch the partial batch is
// returned together with ErrDone; an empty batch with ErrDone means the
// source was already exhausted.
func Roll(ctx context.Context, src Stream, n, dim int) ([][]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("batch size must be > 0, got %d", n)
	}
	batch := make([][]float64, 0, n)
	for len(batch) < n {
		v, err := src.Next(ctx)
		if errors.Is(err, ErrDone) {
			return batch, ErrDone
		}
		if err != nil {
			return nil, err
		}
		if len(v) != dim {
			return nil, fmt.Errorf("stimulus size mismatch: got=%d want=%d", len(v), dim)
		}
		batch = append(batch, v)
	}
	return batch, nil
}
