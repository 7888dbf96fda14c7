package amrsweep

// angleEpsilon absorbs float error when an index-computed angle lands on the target.
const angleEpsilon = 1e-9

// notAtStoppingAngle reports whether a sweep travelling with the given signed step
// should still measure at current. Reaching final exactly still counts.
func notAtStoppingAngle(current, final, step float64) bool {
	if step > 0 {
		return current <= final+angleEpsilon
	}
	return current >= final-angleEpsilon
}

// legAngle is the i-th angle of a leg. Computing from the index keeps long sweeps
// from drifting the way repeated += would.
func legAngle(origin, step float64, i int) float64 {
	return origin + float64(i)*step
}
