// Package timeaxis computes the tick divisions for the horizontal time axis
// of the network activity panel. Given the elapsed span of the visible
// request set it picks a human-friendly tick interval and labels every tick
// in the unit matching its magnitude, so the axis stays legible whether the
// recorded activity covers tens of milliseconds or several minutes.
package timeaxis

import (
	"errors"
	"fmt"
	"math"
)

// Unit is the time unit a division is labeled in.
type Unit string

const (
	UnitMillisecond Unit = "ms"
	UnitSecond      Unit = "s"
	UnitMinute      Unit = "min"
)

const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
)

// ErrInvalidArgument is returned for out-of-range inputs: a negative
// duration or a non-positive target tick count.
var ErrInvalidArgument = errors.New("invalid argument")

// Division is a single labeled tick mark on the axis.
type Division struct {
	OffsetMs float64 `json:"offsetMs"`
	Unit     Unit    `json:"unit"`
	Label    string  `json:"label"`
}

// niceStepsMs is the progression of human-friendly tick intervals in
// milliseconds. Every sub-second step divides one second and every
// sub-minute step divides one minute, which keeps the 1s and 60s unit
// boundaries on tick positions.
var niceStepsMs = []float64{
	1, 2, 5, 10, 20, 50, 100, 200, 500,
	1 * msPerSecond, 2 * msPerSecond, 5 * msPerSecond,
	10 * msPerSecond, 15 * msPerSecond, 30 * msPerSecond,
	1 * msPerMinute, 2 * msPerMinute, 5 * msPerMinute,
	10 * msPerMinute, 15 * msPerMinute, 30 * msPerMinute,
}

// Divide maps the total elapsed duration of the visible request set to an
// ordered sequence of axis divisions. Ticks sit at multiples of a nice step,
// strictly increasing from offset zero up to at most durationMs. The result
// is a pure function of its arguments.
func Divide(durationMs float64, targetTickCount int) ([]Division, error) {
	if durationMs < 0 || math.IsNaN(durationMs) {
		return nil, fmt.Errorf("%w: duration must be non-negative, got %v", ErrInvalidArgument, durationMs)
	}
	if targetTickCount < 1 {
		return nil, fmt.Errorf("%w: target tick count must be at least 1, got %d", ErrInvalidArgument, targetTickCount)
	}

	if durationMs == 0 {
		return []Division{divisionAt(0)}, nil
	}

	step := pickStep(durationMs, targetTickCount)
	divisions := make([]Division, 0, targetTickCount+1)
	for k := 0; ; k++ {
		offset := float64(k) * step
		if offset > durationMs {
			break
		}
		divisions = append(divisions, divisionAt(offset))
	}
	return divisions, nil
}

// pickStep snaps the raw interval up to the smallest nice step that honors
// the target tick count. A step larger than the whole duration would leave
// only the origin tick, so in that case it snaps back down to the largest
// step that still fits; the axis then always reaches the second and minute
// boundaries it spans.
func pickStep(durationMs float64, targetTickCount int) float64 {
	raw := durationMs / float64(targetTickCount)
	largest := niceStepsMs[len(niceStepsMs)-1]

	var step float64
	if raw > largest {
		step = math.Ceil(raw/largest) * largest
	} else {
		step = largest
		for _, s := range niceStepsMs {
			if s >= raw {
				step = s
				break
			}
		}
	}

	if step > durationMs {
		if m := math.Floor(durationMs/largest) * largest; m >= largest {
			return m
		}
		for i := len(niceStepsMs) - 1; i >= 0; i-- {
			if niceStepsMs[i] <= durationMs {
				return niceStepsMs[i]
			}
		}
	}
	return step
}

func divisionAt(offsetMs float64) Division {
	unit := unitFor(offsetMs)
	return Division{
		OffsetMs: offsetMs,
		Unit:     unit,
		Label:    label(offsetMs, unit),
	}
}

// unitFor returns the coarsest unit that keeps a label at the given offset
// precise: sub-second offsets stay in milliseconds, sub-minute offsets in
// seconds, everything beyond in minutes. Units may therefore vary across one
// axis; the residue ticks before the first second boundary keep the finer
// unit.
func unitFor(offsetMs float64) Unit {
	switch {
	case offsetMs < msPerSecond:
		return UnitMillisecond
	case offsetMs < msPerMinute:
		return UnitSecond
	default:
		return UnitMinute
	}
}

func label(offsetMs float64, unit Unit) string {
	switch unit {
	case UnitSecond:
		return fmt.Sprintf("%.2f s", offsetMs/msPerSecond)
	case UnitMinute:
		return fmt.Sprintf("%.2f min", offsetMs/msPerMinute)
	default:
		return fmt.Sprintf("%.0f ms", offsetMs)
	}
}
