package humanoid

import "math"

// easeInOutCubic gives the cursor a smooth acceleration and deceleration.
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// curvedPath returns numSteps points on a cubic Bezier from start to end. The
// control points are pushed sideways by bend1 and bend2 (fractions of the
// distance, signed) so the path arcs like a hand-driven pointer. Samples are
// spaced by easeInOutCubic rather than uniformly.
func curvedPath(start, end Vector2D, bend1, bend2 float64, numSteps int) []Vector2D {
	mainVec := end.Sub(start)
	dist := mainVec.Mag()
	if dist < 1.0 || numSteps <= 1 {
		return []Vector2D{end}
	}

	normal := mainVec.Perp().Mul(1 / dist)
	p0, p3 := start, end
	p1 := start.Add(mainVec.Mul(1.0 / 3.0)).Add(normal.Mul(bend1 * dist))
	p2 := start.Add(mainVec.Mul(2.0 / 3.0)).Add(normal.Mul(bend2 * dist))

	path := make([]Vector2D, numSteps)
	for i := 0; i < numSteps; i++ {
		t := easeInOutCubic(float64(i) / float64(numSteps-1))
		omt := 1.0 - t
		omt2 := omt * omt
		omt3 := omt2 * omt
		t2 := t * t
		t3 := t2 * t

		path[i] = p0.Mul(omt3).Add(p1.Mul(3 * omt2 * t)).Add(p2.Mul(3 * omt * t2)).Add(p3.Mul(t3))
	}
	return path
}
