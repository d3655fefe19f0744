// Package trajectorygen implements core.Interpolator over piecewise
// linear waypoint segments.
package trajectorygen

import "github.com/industrial-robotics/robotcore/internal/core"

// LinearFactory builds a fresh LinearInterpolator per trajectory task,
// satisfying core.InterpolatorFactory.
type LinearFactory struct{}

// New returns an unloaded interpolator.
func (LinearFactory) New() core.Interpolator {
	return &LinearInterpolator{}
}

// LinearInterpolator walks a sequence of waypoints, linearly
// interpolating joint positions between consecutive knots by
// time_from_start. speed_ratio > 0 rescales every waypoint's
// time_from_start, so a slower ratio stretches the whole motion.
type LinearInterpolator struct {
	waypoints []core.Waypoint
}

// LoadTrajectory stores a copy of waypoints, rescaled by speedRatio.
func (l *LinearInterpolator) LoadTrajectory(waypoints []core.Waypoint, speedRatio float64) error {
	if len(waypoints) == 0 {
		return errEmptyTrajectory
	}
	if speedRatio <= 0 {
		speedRatio = 1
	}
	scaled := make([]core.Waypoint, len(waypoints))
	for i, w := range waypoints {
		scaled[i] = core.Waypoint{
			JointPositions: append([]float64(nil), w.JointPositions...),
			TimeFromStart:  w.TimeFromStart / speedRatio,
		}
	}
	l.waypoints = scaled
	return nil
}

// Interpolate returns the joint positions at time t and the index of
// the waypoint segment t falls within.
func (l *LinearInterpolator) Interpolate(t float64) ([]float64, int) {
	if len(l.waypoints) == 0 {
		return nil, 0
	}
	if t <= l.waypoints[0].TimeFromStart {
		return copyOf(l.waypoints[0].JointPositions), 0
	}
	last := len(l.waypoints) - 1
	if t >= l.waypoints[last].TimeFromStart {
		return copyOf(l.waypoints[last].JointPositions), last
	}

	for i := 0; i < last; i++ {
		a, b := l.waypoints[i], l.waypoints[i+1]
		if t >= a.TimeFromStart && t <= b.TimeFromStart {
			span := b.TimeFromStart - a.TimeFromStart
			frac := 0.0
			if span > 0 {
				frac = (t - a.TimeFromStart) / span
			}
			out := make([]float64, len(a.JointPositions))
			for j := range out {
				out[j] = a.JointPositions[j] + frac*(b.JointPositions[j]-a.JointPositions[j])
			}
			return out, i
		}
	}
	return copyOf(l.waypoints[last].JointPositions), last
}

// MaxTime returns the time_from_start of the final waypoint.
func (l *LinearInterpolator) MaxTime() float64 {
	if len(l.waypoints) == 0 {
		return 0
	}
	return l.waypoints[len(l.waypoints)-1].TimeFromStart
}

func copyOf(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

type errString string

func (e errString) Error() string { return string(e) }

const errEmptyTrajectory = errString("trajectory has no waypoints")

var _ core.InterpolatorFactory = LinearFactory{}
