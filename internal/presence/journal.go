package presence

import (
	"context"
	"errors"
	"log"
	"sync"

	"classcast/pkg/interfaces"
	"classcast/pkg/types"
)

// journalQueueSize bounds entries waiting for the journal writer
const journalQueueSize = 256

// ErrJournalClosed is returned by Flush after Close
var ErrJournalClosed = errors.New("activity journal writer is closed")

// journalOp is either an entry to write or a flush marker
type journalOp struct {
	activity *types.Activity
	flushed  chan struct{}
}

// journalWriter moves journal I/O off the caller's goroutine. Entries are
// written in order by one goroutine; a full queue drops the entry.
type journalWriter struct {
	journal   interfaces.ActivityJournal
	queue     chan journalOp
	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func newJournalWriter(journal interfaces.ActivityJournal) *journalWriter {
	w := &journalWriter{
		journal: journal,
		queue:   make(chan journalOp, journalQueueSize),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *journalWriter) run() {
	defer close(w.stopped)

	for {
		select {
		case op := <-w.queue:
			w.handle(op)
		case <-w.stop:
			// Drain what was accepted before Close
			for {
				select {
				case op := <-w.queue:
					w.handle(op)
				default:
					return
				}
			}
		}
	}
}

func (w *journalWriter) handle(op journalOp) {
	if op.flushed != nil {
		close(op.flushed)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	if err := w.journal.RecordActivity(ctx, op.activity); err != nil {
		log.Printf("Failed to journal activity: class=%s kind=%s error=%v",
			op.activity.ClassCode, op.activity.Kind, err)
	}
}

// enqueue never blocks
func (w *journalWriter) enqueue(activity *types.Activity) {
	select {
	case <-w.stop:
		log.Printf("Journal writer closed, dropping activity: class=%s kind=%s", activity.ClassCode, activity.Kind)
		return
	default:
	}

	select {
	case w.queue <- journalOp{activity: activity}:
	default:
		log.Printf("Journal queue full, dropping activity: class=%s kind=%s", activity.ClassCode, activity.Kind)
	}
}

// flush waits until every entry enqueued before the call has been written
func (w *journalWriter) flush(ctx context.Context) error {
	marker := journalOp{flushed: make(chan struct{})}

	select {
	case w.queue <- marker:
	case <-w.stop:
		return ErrJournalClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-marker.flushed:
		return nil
	case <-w.stopped:
		return ErrJournalClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close writes the queued entries and stops the writer
func (w *journalWriter) close() {
	w.closeOnce.Do(func() {
		close(w.stop)
	})
	<-w.stopped
}
