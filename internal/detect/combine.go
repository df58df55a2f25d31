package detect

import "github.com/andresuchdata/skuwatch/internal/domain"

// MethodResult is the outcome of one detection method on one series.
// Magnitude is the method's own signal strength normalized to [0,1]; it is
// meaningful only when Fired is set.
type MethodResult struct {
	Method    domain.DetectionMethod
	Fired     bool
	Direction domain.ShiftDirection
	Magnitude float64
}

// Combine folds per-method results into a single verdict:
//
//   - a shift is detected when at least one method fired;
//   - direction is the majority vote among firing methods, ties broken
//     toward the method with the largest magnitude;
//   - confidence is the fraction of all methods agreeing with the winning
//     direction, scaled by the strongest firing method's magnitude.
//
// relChange is the overall relative change between the trailing baseline
// window and the most recent window; it is reported as the shift magnitude.
func Combine(methods []MethodResult, relChange float64) domain.DemandShiftResult {
	fired := make([]MethodResult, 0, len(methods))
	for _, m := range methods {
		if m.Fired {
			fired = append(fired, m)
		}
	}

	if len(fired) == 0 {
		return domain.DemandShiftResult{
			Direction: domain.ShiftStable,
			Magnitude: relChange,
		}
	}

	votes := make(map[domain.ShiftDirection]int)
	strongestByDir := make(map[domain.ShiftDirection]float64)
	var strongest MethodResult
	for _, m := range fired {
		votes[m.Direction]++
		if m.Magnitude > strongestByDir[m.Direction] {
			strongestByDir[m.Direction] = m.Magnitude
		}
		if m.Magnitude > strongest.Magnitude {
			strongest = m
		}
	}

	direction := strongest.Direction
	bestVotes := votes[direction]
	bestMag := strongestByDir[direction]
	for dir, count := range votes {
		if count > bestVotes || (count == bestVotes && strongestByDir[dir] > bestMag) {
			direction = dir
			bestVotes = count
			bestMag = strongestByDir[dir]
		}
	}

	agreeing := votes[direction]
	confidence := float64(agreeing) / float64(len(methods)) * strongest.Magnitude

	method := fired[0].Method
	if len(fired) > 1 {
		method = domain.MethodCombined
	}

	return domain.DemandShiftResult{
		ShiftDetected: true,
		Direction:     direction,
		Magnitude:     relChange,
		Confidence:    clamp01(confidence),
		Method:        method,
	}
}
