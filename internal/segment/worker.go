// Package segment implements the orchestrator's per-segment worker: it pulls
// one byte range from a Fetcher and writes it at its absolute offset.
package segment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/rangedl/internal/orchestrator"
	"github.com/tanq16/rangedl/internal/utils"
)

// Fetcher opens a reader over bytes from..to of url, both inclusive.
type Fetcher interface {
	Fetch(ctx context.Context, url string, from, to int64) (io.ReadCloser, error)
}

var _ orchestrator.Worker = (*Worker)(nil)

type Worker struct {
	fetcher Fetcher
	n       orchestrator.Notifier
	bufSize int

	mu       sync.Mutex
	index    int
	url      string
	dst      io.WriterAt
	start    int64
	end      int64
	gen      uint64
	run      uint64
	cancel   context.CancelFunc
	active   bool
	paused   bool
	finished bool
	closed   bool

	ready atomic.Int64
	wg    sync.WaitGroup
}

func New(f Fetcher, n orchestrator.Notifier) *Worker {
	return &Worker{fetcher: f, n: n, bufSize: utils.DefaultBufferSize}
}

// Factory adapts New for orchestrator.Options.
func Factory(f Fetcher) orchestrator.WorkerFactory {
	return func(n orchestrator.Notifier) orchestrator.Worker {
		return New(f, n)
	}
}

func (w *Worker) Start(index int, url string, dst io.WriterAt, start, end, ready int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.index, w.url, w.dst, w.start, w.end = index, url, dst, start, end
	w.ready.Store(max(0, min(ready, end-start)))
	w.launchLocked()
}

// Pause stops the transfer. Bytes that arrive after Pause are not counted.
func (w *Worker) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.finished {
		return
	}
	w.paused = true
	w.stopLocked()
}

// Restart continues from the retained ready count. It does nothing while a
// transfer is running or once the segment is done.
func (w *Worker) Restart() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.finished || (w.active && !w.paused) {
		return
	}
	w.paused = false
	w.launchLocked()
}

// Close cancels the transfer and waits for it to stop writing.
func (w *Worker) Close() {
	w.mu.Lock()
	w.closed = true
	w.stopLocked()
	w.mu.Unlock()
	w.wg.Wait()
}

// Run returns the id of the latest launched transfer.
func (w *Worker) Run() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.run
}

func (w *Worker) URL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.url
}

func (w *Worker) StartOffset() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.start
}

func (w *Worker) EndOffset() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.end
}

func (w *Worker) ReadyBytes() int64 {
	return w.ready.Load()
}

func (w *Worker) stopLocked() {
	w.gen++
	w.active = false
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

func (w *Worker) launchLocked() {
	w.stopLocked()
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.active = true
	w.run++
	gen, run := w.gen, w.run
	from := w.start + w.ready.Load()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer cancel()
		w.transferRun(ctx, gen, run, from)
	}()
}

func (w *Worker) transferRun(ctx context.Context, gen, run uint64, pos int64) {
	w.mu.Lock()
	index, url, dst, start, end := w.index, w.url, w.dst, w.start, w.end
	w.mu.Unlock()

	err := w.transfer(ctx, gen, index, url, dst, pos, end)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		w.mu.Lock()
		current := w.gen == gen
		if current {
			w.active = false
		}
		w.mu.Unlock()
		if current {
			log.Debug().Str("op", "segment/run").Err(err).Msgf("Segment %d stopped at offset %d", index, start+w.ready.Load())
			w.n.Failed(index, run, err)
		}
		return
	}

	w.mu.Lock()
	current := w.gen == gen
	if current {
		w.finished = true
		w.active = false
	}
	w.mu.Unlock()
	if current {
		w.n.Progress(index)
		w.n.Finished(index)
	}
}

func (w *Worker) transfer(ctx context.Context, gen uint64, index int, url string, dst io.WriterAt, pos, end int64) error {
	if pos >= end {
		return nil
	}
	body, err := w.fetcher.Fetch(ctx, url, pos, end-1)
	if err != nil {
		return err
	}
	defer body.Close()

	buffer := make([]byte, w.bufSize)
	for pos < end {
		want := min(int64(len(buffer)), end-pos)
		n, readErr := body.Read(buffer[:want])
		if n > 0 {
			if _, err := dst.WriteAt(buffer[:n], pos); err != nil {
				return fmt.Errorf("error writing at offset %d: %w", pos, err)
			}
			pos += int64(n)
			if !w.advance(gen, pos) {
				return ctx.Err()
			}
			if pos < end {
				w.n.Progress(index)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if pos < end {
					return fmt.Errorf("body ended %d bytes short: %w", end-pos, io.ErrUnexpectedEOF)
				}
				break
			}
			return readErr
		}
	}
	return nil
}

// advance records pos as the new high-water mark if gen is still current.
func (w *Worker) advance(gen uint64, pos int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen {
		return false
	}
	w.ready.Store(pos - w.start)
	return true
}
