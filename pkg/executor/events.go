package executor

import "time"

// EventType names a progress event.
type EventType string

const (
	EventRunStarted     EventType = "run-started"
	EventStepStarting   EventType = "step-starting"
	EventStepComplete   EventType = "step-complete"
	EventStepError      EventType = "step-error"
	EventStepUnresolved EventType = "step-unresolved"
	// EventRunDone is always the last event of a run.
	EventRunDone EventType = "run-done"
)

// Event is one progress notification.
type Event struct {
	Type     EventType
	RunID    string
	Workflow string
	StepID   string
	Order    int
	Success  bool
	Message  string
	Category string
	RowID    string
	Status   Status
	Time     time.Time
}

// Sink receives progress events synchronously on the run's goroutine.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// emitter stamps run-level fields on every event.
type emitter struct {
	sink     Sink
	now      func() time.Time
	runID    string
	workflow string
	rowID    string
	category string
}

func (em *emitter) emit(ev Event) {
	if em.sink == nil {
		return
	}
	ev.RunID = em.runID
	ev.Workflow = em.workflow
	ev.RowID = em.rowID
	ev.Category = em.category
	ev.Time = em.now()
	em.sink.Emit(ev)
}
