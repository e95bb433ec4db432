package utils

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Clock is the time source used by every loop that has to be driven
// deterministically in tests. Sleep is a suspension point: it returns early
// with the context error when ctx is cancelled.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RandomDurationMs returns a uniformly distributed duration in [minMs, maxMs].
func RandomDurationMs(minMs, maxMs int) time.Duration {
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	return time.Duration(minMs+rand.Intn(maxMs-minMs+1)) * time.Millisecond
}

// sampleGamma returns a sample from the Gamma(shape, scale) distribution using
// the Marsaglia-Tsang squeeze method. shape must be >= 1.
func sampleGamma(shape, scale float64) float64 {
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		x := rand.NormFloat64()
		v := 1.0 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		x2 := x * x
		u := rand.Float64()
		// Fast accept path
		if u < 1.0-0.0331*(x2*x2) {
			return d * v * scale
		}
		// Slow accept path
		if math.Log(u) < 0.5*x2+d*(1.0-v+math.Log(v)) {
			return d * v * scale
		}
	}
}

// RandGammaDurationMs returns a time.Duration sampled from a
// Gamma(shape, mean/shape) distribution with the requested mean in milliseconds.
// Higher shape gives a narrower spread. Used for the idle gap between two
// encounters, where a right-skewed distribution looks less mechanical than a
// fixed pause.
func RandGammaDurationMs(meanMs float64, shape float64) time.Duration {
	if meanMs <= 0 {
		return 0
	}
	if shape < 1 {
		shape = 1
	}
	sample := sampleGamma(shape, meanMs/shape)
	if sample < 1 {
		sample = 1
	}
	return time.Duration(sample) * time.Millisecond
}
