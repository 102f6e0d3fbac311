package telemetry

import "github.com/nerrad567/remapd/internal/profile"

// Fanout forwards every call to each recorder in order.
type Fanout []profile.Recorder

// NewFanout drops nil recorders.
func NewFanout(rs ...profile.Recorder) Fanout {
	out := make(Fanout, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (f Fanout) InputDelivered(ev profile.InputEvent) {
	for _, r := range f {
		r.InputDelivered(ev)
	}
}

func (f Fanout) ReactionPanicked(profileTitle, plugin string) {
	for _, r := range f {
		r.ReactionPanicked(profileTitle, plugin)
	}
}

func (f Fanout) OutputFailed(profileTitle string, err error) {
	for _, r := range f {
		r.OutputFailed(profileTitle, err)
	}
}

func (f Fanout) ProfileActivated(rep profile.ActivationReport) {
	for _, r := range f {
		r.ProfileActivated(rep)
	}
}
