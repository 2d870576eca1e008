package models

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/desertthunder/bpmx/internal/shared"
)

// Bounds accepted by the backend for a render target.
const (
	MinTargetBPM = 40
	MaxTargetBPM = 260
)

// TempoMode selects how a render target is derived.
type TempoMode int

const (
	CadenceMode TempoMode = iota
	PaceMode
)

// BeatMode decides whether one beat maps to a step or to a full stride (two steps).
type BeatMode int

const (
	StepBeat BeatMode = iota
	StrideBeat
)

// TempoInput describes a runner's target in cadence (steps per minute) or pace (m:ss per mile).
type TempoInput struct {
	Mode    TempoMode
	Beat    BeatMode
	Cadence float64
	Pace    string
}

var paceRe = regexp.MustCompile(`^(\d+):([0-5]\d)$`)

// ParsePace converts a "m:ss" per-mile pace into seconds per mile.
func ParsePace(pace string) (int, error) {
	m := paceRe.FindStringSubmatch(strings.TrimSpace(pace))
	if m == nil {
		return 0, fmt.Errorf("%w: pace %q, expected m:ss", shared.ErrInvalidInput, pace)
	}
	min, _ := strconv.Atoi(m[1])
	sec, _ := strconv.Atoi(m[2])
	total := min*60 + sec
	if total == 0 {
		return 0, fmt.Errorf("%w: pace must be greater than zero", shared.ErrInvalidInput)
	}
	return total, nil
}

// TargetBPM derives the render tempo for in.
//
// Pace estimates cadence as 160 spm at a 10:00 mile plus 6 spm per minute faster, clamped to 140..200.
// Stride mode halves the result.
func TargetBPM(in TempoInput) (float64, error) {
	var bpm float64
	switch in.Mode {
	case CadenceMode:
		if in.Cadence <= 0 {
			return 0, fmt.Errorf("%w: cadence must be positive", shared.ErrInvalidInput)
		}
		bpm = in.Cadence
	case PaceMode:
		secs, err := ParsePace(in.Pace)
		if err != nil {
			return 0, err
		}
		minPerMile := float64(secs) / 60
		bpm = 160 + math.Max(0, (10-minPerMile)*6)
		bpm = math.Min(200, math.Max(140, bpm))
	default:
		return 0, fmt.Errorf("%w: unknown tempo mode %d", shared.ErrInvalidInput, in.Mode)
	}

	if in.Beat == StrideBeat {
		bpm /= 2
	}
	return bpm, nil
}

// ValidateTargetBPM checks a render target against the backend's accepted range.
func ValidateTargetBPM(bpm float64) error {
	if math.IsNaN(bpm) || bpm < MinTargetBPM || bpm > MaxTargetBPM {
		return fmt.Errorf("%w: target_bpm must be between %d and %d, got %.1f", shared.ErrInvalidInput, MinTargetBPM, MaxTargetBPM, bpm)
	}
	return nil
}
