package sim

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrNoWaveform is returned when a pin has not completed two periods.
var ErrNoWaveform = errors.New("sim: not enough edges for a waveform")

// Waveform summarises the square wave on a pin. Times are in system clock
// cycles.
type Waveform struct {
	Pin     int
	Periods int
	Period  float64 // mean rising edge to rising edge
	Jitter  float64 // standard deviation of the period
	High    float64 // mean high time
	Duty    float64
	Min     float64
	Max     float64
}

// Duration converts the mean period to wall time at sysFreq Hz.
func (w Waveform) Duration(sysFreq uint32) time.Duration {
	if sysFreq == 0 {
		return 0
	}
	return time.Duration(w.Period / float64(sysFreq) * float64(time.Second))
}

func (w Waveform) String() string {
	return fmt.Sprintf("pin %d: %d periods of %.1f cycles (jitter %.2f, min %.1f, max %.1f), duty %.1f%%",
		w.Pin, w.Periods, w.Period, w.Jitter, w.Min, w.Max, w.Duty*100)
}

// Waveform measures the recorded edges of pin.
func (c *Chip) Waveform(pin int) (Waveform, error) {
	var rising []float64
	var highs []float64
	prev := HiZ
	var lastRise float64
	for _, e := range c.Edges(pin) {
		t := e.Cycles()
		switch {
		case e.Level == High && prev == Low:
			rising = append(rising, t)
			lastRise = t
		case e.Level == Low && prev == High && len(rising) > 0:
			highs = append(highs, t-lastRise)
		}
		prev = e.Level
	}
	if len(rising) < 3 {
		return Waveform{Pin: pin}, fmt.Errorf("pin %d: %d rising edges: %w", pin, len(rising), ErrNoWaveform)
	}

	periods := make([]float64, len(rising)-1)
	floats.SubTo(periods, rising[1:], rising[:len(rising)-1])

	w := Waveform{Pin: pin, Periods: len(periods)}
	w.Period, w.Jitter = stat.MeanStdDev(periods, nil)
	w.Min, w.Max = floats.Min(periods), floats.Max(periods)
	if len(highs) > 0 {
		w.High = stat.Mean(highs, nil)
		w.Duty = w.High / w.Period
	}
	return w, nil
}
