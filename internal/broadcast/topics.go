package broadcast

import (
	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/countdown"
	"github.com/kozaktomas/attendance-kiosk/internal/recognition"
)

// PublishResult publishes a recognition outcome.
func (b *Broadcaster) PublishResult(o recognition.Outcome) {
	b.Publish(TopicResult, o)
}

// PublishStatus publishes a camera status transition.
func (b *Broadcaster) PublishStatus(s capture.Status) {
	b.Publish(TopicStatus, s)
}

// LatestResult returns the most recent recognition outcome.
func (b *Broadcaster) LatestResult() (recognition.Outcome, bool) {
	e, ok := b.Latest(TopicResult)
	if !ok {
		return recognition.Outcome{}, false
	}
	o, ok := e.Data.(recognition.Outcome)
	return o, ok
}

// LatestStatus returns the current camera status, Stopped if none was published.
func (b *Broadcaster) LatestStatus() capture.Status {
	e, ok := b.Latest(TopicStatus)
	if !ok {
		return capture.StatusStopped
	}
	s, _ := e.Data.(capture.Status)
	return s
}

// PublishCountdown publishes an enrollment countdown transition.
func (b *Broadcaster) PublishCountdown(s countdown.State) {
	b.Publish(TopicCountdown, s)
}

// LatestCountdown returns the most recent countdown state, Idle if none was published.
func (b *Broadcaster) LatestCountdown() countdown.State {
	e, ok := b.Latest(TopicCountdown)
	if !ok {
		return countdown.State{}
	}
	s, _ := e.Data.(countdown.State)
	return s
}
