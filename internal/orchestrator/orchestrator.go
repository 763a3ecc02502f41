// Package orchestrator drives one segmented download session: it probes the
// resource size, partitions it, runs a worker per segment, aggregates their
// progress and persists a breakpoint on pause so the session can be resumed.
//
// Worker events and control calls are serialized through one mutex; worker
// events arrive on a single channel drained by one goroutine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/rangedl/internal/breakpoint"
)

const (
	MinWorkers           = 1
	MaxWorkers           = 15
	DefaultProbeAttempts = 3
	defaultEventBuffer   = 1024
)

type Options struct {
	Prober        Prober
	NewWorker     WorkerFactory
	Store         breakpoint.Store // nil disables breakpoints
	OutputDir     string
	ProbeAttempts int
	Metrics       Recorder
	EventBuffer   int
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	State    State
	URL      string
	FileName string
	Path     string
	Total    int64
	Ready    int64
	Segments []Segment
}

type session struct {
	id       uuid.UUID
	url      string
	fileName string
	path     string
	key      string
	total    int64
	file     *os.File
	workers  []Worker
	running  int
	quit     chan struct{}
}

type workerEventKind int

const (
	workerProgress workerEventKind = iota
	workerFinished
	workerFailed
)

type workerEvent struct {
	session uuid.UUID
	kind    workerEventKind
	index   int
	run     uint64
	err     error
}

type Orchestrator struct {
	opts Options

	mu     sync.Mutex
	state  State
	sess   *session
	ready  int64
	closed bool

	workerEvents chan workerEvent
	done         chan struct{}
	loopDone     chan struct{}
	closeOnce    sync.Once

	// Caller events are queued under qmu and moved to events by dispatch, so
	// nothing holding mu ever waits on the caller.
	qmu          sync.Mutex
	queue        []Event
	wake         chan struct{}
	events       chan Event
	dispatchDone chan struct{}
}

func New(opts Options) *Orchestrator {
	if opts.ProbeAttempts < 1 {
		opts.ProbeAttempts = DefaultProbeAttempts
	}
	if opts.EventBuffer < 1 {
		opts.EventBuffer = defaultEventBuffer
	}
	o := &Orchestrator{
		opts:         opts,
		state:        Stopped,
		workerEvents: make(chan workerEvent, 4*MaxWorkers),
		events:       make(chan Event, opts.EventBuffer),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}
	go o.loop()
	go o.dispatch()
	return o
}

// Events returns the caller-facing event stream. It is closed by Close.
// A caller that stops reading never blocks the orchestrator: events queue up
// in order, and once the backlog reaches the buffer size consecutive progress
// events collapse into the latest one, which carries the full recomputed
// aggregate.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Snapshot() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{State: o.state}
	s := o.sess
	if s == nil {
		return st
	}
	st.URL, st.FileName, st.Path, st.Total = s.url, s.fileName, s.path, s.total
	for i, w := range s.workers {
		seg := Segment{Index: i, Start: w.StartOffset(), End: w.EndOffset(), Ready: w.ReadyBytes()}
		st.Ready += seg.Ready
		st.Segments = append(st.Segments, seg)
	}
	return st
}

// Start begins downloading rawURL with the given number of workers, naming
// the destination after the URL path.
func (o *Orchestrator) Start(ctx context.Context, rawURL string, workers int) error {
	return o.StartFile(ctx, rawURL, "", workers)
}

// StartFile is Start with an explicit destination file name. An empty name
// falls back to the URL-derived one. It blocks only for the size probe and
// file creation; the transfer continues in the background.
func (o *Orchestrator) StartFile(ctx context.Context, rawURL, fileName string, workers int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.state == Downloading {
		log.Warn().Str("op", "orchestrator/start").Msg("Current session is still downloading")
		return ErrAlreadyDownloading
	}
	prev := o.state
	o.setStateLocked(Waiting)
	fail := func(err error) error {
		o.setStateLocked(prev)
		log.Error().Str("op", "orchestrator/start").Err(err).Msgf("Cannot start download of %s", rawURL)
		return err
	}

	if workers < MinWorkers || workers > MaxWorkers {
		return fail(fmt.Errorf("%w: %d (valid %d-%d)", ErrInvalidWorkerCount, workers, MinWorkers, MaxWorkers))
	}

	total, err := ProbeSize(ctx, o.opts.Prober, rawURL, o.opts.ProbeAttempts)
	if err != nil {
		return fail(err)
	}

	if fileName == "" {
		fileName = FileNameFromURL(rawURL)
	}
	o.emit(Event{Kind: EventFileInfo, FileName: fileName, Total: total})

	key := breakpoint.Key(fileName)
	records := o.loadRecordsLocked(key)

	path := filepath.Join(o.opts.OutputDir, fileName)
	file, err := openDestination(path, total)
	if err != nil {
		return fail(fmt.Errorf("%w %s: %v", ErrOpenDestination, path, err))
	}

	// A paused session is replaced only once the new one is certain to start.
	if err := o.teardownLocked(); err != nil {
		log.Warn().Str("op", "orchestrator/start").Err(err).Msg("Error releasing previous session")
	}

	segs, err := ApplyRecords(Partition(total, workers), records, rawURL, total)
	if err != nil {
		o.diagnosticLocked(fmt.Sprintf("Ignoring breakpoint for %s: %v", fileName, err), err)
	}

	s := &session{
		id:       uuid.New(),
		url:      rawURL,
		fileName: fileName,
		path:     path,
		key:      key,
		total:    total,
		file:     file,
		running:  workers,
		quit:     make(chan struct{}),
	}
	o.ready = 0
	for _, seg := range segs {
		s.workers = append(s.workers, o.opts.NewWorker(&sessionNotifier{o: o, id: s.id, quit: s.quit}))
		o.ready += seg.Ready
	}
	o.sess = s
	for i, seg := range segs {
		s.workers[i].Start(i, rawURL, file, seg.Start, seg.End, seg.Ready)
	}

	o.setStateLocked(Downloading)
	if o.opts.Metrics != nil {
		o.opts.Metrics.SessionStarted()
	}
	log.Info().Str("op", "orchestrator/start").Msgf("Downloading %s (%d bytes) with %d workers, %d bytes already done", fileName, total, workers, o.ready)
	return nil
}

func openDestination(path string, total int64) (*os.File, error) {
	// No O_TRUNC: a resumed session needs the bytes already on disk.
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err := file.Truncate(total); err != nil {
		file.Close()
		return nil, err
	}
	return file, nil
}

func (o *Orchestrator) loadRecordsLocked(key string) breakpoint.Records {
	if o.opts.Store == nil || !o.opts.Store.Exists(key) {
		return nil
	}
	records, err := o.opts.Store.Load(key)
	if err != nil {
		o.diagnosticLocked(fmt.Sprintf("Cannot read breakpoint %s", key), err)
		return nil
	}
	log.Debug().Str("op", "orchestrator/breakpoint").Msgf("Loaded %d breakpoint records from %s", len(records), key)
	return records
}

// Pause halts every worker and persists their resume state, overwriting any
// earlier breakpoint. It is a no-op unless waiting or downloading.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if o.state != Downloading && o.state != Waiting {
		o.diagnosticLocked("Pause ignored: current session is not downloading", nil)
		return
	}
	o.setStateLocked(Paused)

	s := o.sess
	if s == nil {
		return
	}
	records := make(breakpoint.Records, 0, len(s.workers))
	for _, w := range s.workers {
		w.Pause()
		records = append(records, breakpoint.Record{
			URL:   w.URL(),
			Start: w.StartOffset(),
			End:   w.EndOffset(),
			Ready: w.ReadyBytes(),
		})
	}
	if o.opts.Store == nil {
		return
	}
	err := o.opts.Store.Save(s.key, records)
	if o.opts.Metrics != nil {
		o.opts.Metrics.BreakpointSaved(err)
	}
	if err != nil {
		o.diagnosticLocked(fmt.Sprintf("Cannot save breakpoint %s, pause is not resumable", s.key), err)
		return
	}
	log.Debug().Str("op", "orchestrator/breakpoint").Msgf("Saved %d breakpoint records to %s", len(records), s.key)
}

// Restart resumes every worker of a paused session from its retained state.
func (o *Orchestrator) Restart() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if o.state != Paused {
		o.diagnosticLocked("Restart ignored: current session is not paused", nil)
		return
	}
	s := o.sess
	if s == nil {
		o.setStateLocked(Stopped)
		return
	}
	o.setStateLocked(Downloading)
	for _, w := range s.workers {
		w.Restart()
	}
	// Workers that completed while paused sent no further event.
	if s.running <= 0 {
		o.finishLocked(s)
	}
}

// Close releases the destination file and every worker without finishing
// the session, then closes the event stream.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() { close(o.done) })
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	err := o.teardownLocked()
	o.mu.Unlock()
	<-o.loopDone
	<-o.dispatchDone
	o.flushQueue()
	close(o.events)
	return err
}

func (o *Orchestrator) teardownLocked() error {
	s := o.sess
	if s == nil {
		return nil
	}
	o.sess = nil
	close(s.quit)
	for _, w := range s.workers {
		w.Close()
	}
	return s.file.Close()
}

func (o *Orchestrator) loop() {
	defer close(o.loopDone)
	for {
		select {
		case ev := <-o.workerEvents:
			o.handle(ev)
		case <-o.done:
			return
		}
	}
}

func (o *Orchestrator) handle(ev workerEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.sess
	if s == nil || s.id != ev.session {
		return
	}
	switch ev.kind {
	case workerProgress:
		o.progressLocked(s)
	case workerFinished:
		s.running--
		log.Debug().Str("op", "orchestrator/worker").Msgf("Segment %d finished, %d still running", ev.index, s.running)
		if s.running == 0 && o.state == Downloading {
			o.finishLocked(s)
		}
	case workerFailed:
		if ev.index < 0 || ev.index >= len(s.workers) {
			return
		}
		if run := s.workers[ev.index].Run(); run != ev.run {
			log.Debug().Str("op", "orchestrator/worker").Msgf("Dropping failure of segment %d from run %d, now on run %d", ev.index, ev.run, run)
			return
		}
		if ev.err == nil {
			ev.err = errors.New("unknown segment error")
		}
		s.workers[ev.index].Pause()
		if o.opts.Metrics != nil {
			o.opts.Metrics.SegmentFailed()
		}
		log.Error().Str("op", "orchestrator/worker").Err(ev.err).Msgf("Segment %d failed and was paused", ev.index)
		o.emit(Event{Kind: EventSegmentError, Index: ev.index, Err: ev.err, Message: ev.err.Error()})
	}
}

// progressLocked recomputes the aggregate from every worker instead of
// accumulating deltas.
func (o *Orchestrator) progressLocked(s *session) {
	if o.state != Downloading && o.state != Paused {
		return
	}
	var ready int64
	for _, w := range s.workers {
		ready += w.ReadyBytes()
	}
	o.ready = ready
	if o.opts.Metrics != nil {
		o.opts.Metrics.ReadyBytes(ready)
	}
	o.emit(Event{Kind: EventProgress, Ready: ready, Total: s.total})
}

func (o *Orchestrator) finishLocked(s *session) {
	o.progressLocked(s)
	o.sess = nil
	close(s.quit)
	for _, w := range s.workers {
		w.Close()
	}
	if err := s.file.Sync(); err != nil {
		log.Warn().Str("op", "orchestrator/finish").Err(err).Msgf("Error flushing %s", s.path)
	}
	if err := s.file.Close(); err != nil {
		log.Warn().Str("op", "orchestrator/finish").Err(err).Msgf("Error closing %s", s.path)
	}
	if o.opts.Store != nil {
		if err := o.opts.Store.Delete(s.key); err != nil {
			o.diagnosticLocked(fmt.Sprintf("Cannot delete breakpoint %s", s.key), err)
		}
	}
	o.setStateLocked(Finished)
	if o.opts.Metrics != nil {
		o.opts.Metrics.SessionFinished()
	}
	log.Info().Str("op", "orchestrator/finish").Msgf("Download of %s finished", s.fileName)
	o.emit(Event{Kind: EventFinished, FileName: s.fileName, Ready: s.total, Total: s.total})
}

func (o *Orchestrator) setStateLocked(st State) {
	o.state = st
	o.emit(Event{Kind: EventStateChanged, State: st})
}

func (o *Orchestrator) diagnosticLocked(msg string, err error) {
	log.Warn().Str("op", "orchestrator").Err(err).Msg(msg)
	o.emit(Event{Kind: EventDiagnostic, Message: msg, Err: err})
}

// emit queues ev for the caller. It never blocks.
func (o *Orchestrator) emit(ev Event) {
	o.qmu.Lock()
	n := len(o.queue)
	if ev.Kind == EventProgress && n >= o.opts.EventBuffer && o.queue[n-1].Kind == EventProgress {
		o.queue[n-1] = ev
	} else {
		o.queue = append(o.queue, ev)
	}
	o.qmu.Unlock()
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) dispatch() {
	defer close(o.dispatchDone)
	for {
		o.qmu.Lock()
		if len(o.queue) == 0 {
			o.queue = nil
			o.qmu.Unlock()
			select {
			case <-o.wake:
				continue
			case <-o.done:
				return
			}
		}
		ev := o.queue[0]
		o.queue = o.queue[1:]
		o.qmu.Unlock()

		select {
		case o.events <- ev:
		case <-o.done:
			o.qmu.Lock()
			o.queue = append([]Event{ev}, o.queue...)
			o.qmu.Unlock()
			return
		}
	}
}

// flushQueue hands whatever still fits in the buffer to the caller once the
// dispatcher has stopped.
func (o *Orchestrator) flushQueue() {
	o.qmu.Lock()
	defer o.qmu.Unlock()
	for _, ev := range o.queue {
		select {
		case o.events <- ev:
		default:
			o.queue = nil
			return
		}
	}
	o.queue = nil
}

type sessionNotifier struct {
	o    *Orchestrator
	id   uuid.UUID
	quit chan struct{}
}

func (n *sessionNotifier) send(ev workerEvent) {
	ev.session = n.id
	select {
	case n.o.workerEvents <- ev:
	case <-n.quit:
	case <-n.o.done:
	}
}

func (n *sessionNotifier) Progress(index int) {
	n.send(workerEvent{kind: workerProgress, index: index})
}

func (n *sessionNotifier) Finished(index int) {
	n.send(workerEvent{kind: workerFinished, index: index})
}

func (n *sessionNotifier) Failed(index int, run uint64, err error) {
	n.send(workerEvent{kind: workerFailed, index: index, run: run, err: err})
}
