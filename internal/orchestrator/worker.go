package orchestrator

import "io"

// Worker transfers one segment. Offsets are absolute, End is exclusive and
// ready counts bytes already present from Start. The accessors must be safe to
// call while the transfer is running.
//
// Run identifies the most recent transfer launched by Start or Restart; it is
// what the worker passes to Notifier.Failed.
type Worker interface {
	Start(index int, url string, dst io.WriterAt, start, end, ready int64)
	Pause()
	Restart()
	Close()

	Run() uint64
	URL() string
	StartOffset() int64
	EndOffset() int64
	ReadyBytes() int64
}

// Notifier receives a worker's events. Calls may block until the orchestrator
// accepts them. A failure reported for a run that has since been replaced is
// ignored.
type Notifier interface {
	Progress(index int)
	Finished(index int)
	Failed(index int, run uint64, err error)
}

type WorkerFactory func(n Notifier) Worker

// Recorder observes session activity. A nil Recorder is allowed.
type Recorder interface {
	SessionStarted()
	SessionFinished()
	SegmentFailed()
	BreakpointSaved(err error)
	ReadyBytes(n int64)
}
