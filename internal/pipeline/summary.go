package pipeline

import "fmt"

// State is the phase a run has reached. A run ends in StateDone or, on a
// fatal setup failure, StateAborted.
type State string

const (
	StateIdle        State = "idle"
	StateSessionOpen State = "session_open"
	StateSinkOpen    State = "sink_open"
	StateListing     State = "listing"
	StatePerMessage  State = "per_message"
	StateFinalizing  State = "finalizing"
	StateDone        State = "done"
	StateAborted     State = "aborted"
)

// Stage names the step at which a message failed.
type Stage string

const (
	StageFetch Stage = "fetch"
	StageParse Stage = "parse"
	StageStore Stage = "store"
	StageMark  Stage = "mark"
)

// Outcome is the tagged result of one message: either archived (Err nil)
// or failed at a specific stage. A StageMark failure means the record was
// stored but the message remains unread on the server.
type Outcome struct {
	UID       uint32
	MessageID string // empty when the failure precedes parsing
	Stage     Stage  // empty on success
	Err       error
}

// Summary aggregates one run. It is built fresh per run and never
// persisted.
type Summary struct {
	Attempted int
	Succeeded int
	Failed    int
	Outcomes  []Outcome // per-message results in processing order
}

// Record folds one outcome into the counters.
func (s *Summary) Record(out Outcome) {
	s.Attempted++
	if out.Err != nil {
		s.Failed++
	} else {
		s.Succeeded++
	}
	s.Outcomes = append(s.Outcomes, out)
}

// Failures returns the failed outcomes in processing order.
func (s *Summary) Failures() []Outcome {
	var failed []Outcome
	for _, out := range s.Outcomes {
		if out.Err != nil {
			failed = append(failed, out)
		}
	}
	return failed
}

func (s *Summary) String() string {
	return fmt.Sprintf("attempted=%d succeeded=%d failed=%d", s.Attempted, s.Succeeded, s.Failed)
}
