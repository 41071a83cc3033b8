package synth

import "github.com/rs/zerolog"

// State is a pipeline stage of one request.
type State int

const (
	StateIdle State = iota
	StateTokenizing
	StateEncoding
	StateDecoding
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTokenizing:
		return "tokenizing"
	case StateEncoding:
		return "encoding"
	case StateDecoding:
		return "decoding"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type tracker struct {
	logger  zerolog.Logger
	onState func(State, int)
	state   State
}

func newTracker(logger zerolog.Logger, onState func(State, int)) *tracker {
	return &tracker{logger: logger, onState: onState}
}

func (t *tracker) set(state State, chunk int) {
	t.logger.Trace().Stringer("from", t.state).Stringer("to", state).Int("chunk", chunk).Msg("State change")
	t.state = state
	if t.onState != nil {
		t.onState(state, chunk)
	}
}
