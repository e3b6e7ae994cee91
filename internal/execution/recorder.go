package execution

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

type Saver interface {
	Save(Entry) error
}

// Recorder accumulates the steps of a single invocation and persists the
// entry after every change. A nil Recorder is a no-op.
type Recorder struct {
	mu    sync.Mutex
	store Saver
	log   logrus.FieldLogger
	entry Entry
}

func NewRecorder(store Saver, entry Entry, log logrus.FieldLogger) *Recorder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Recorder{store: store, entry: entry, log: log}
	r.persist()
	return r
}

// Step records a step. A step of the same type that is still pending or
// submitted is updated in place instead of appended.
func (r *Recorder) Step(step Step) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	step.At = timestamp()
	if n := len(r.entry.Steps); n > 0 {
		last := &r.entry.Steps[n-1]
		if last.Type == step.Type && (last.Status == StepStatusPending || last.Status == StepStatusSubmitted) {
			if step.TxHash == "" {
				step.TxHash = last.TxHash
			}
			*last = step
			r.entry.Touch()
			r.persistLocked()
			return
		}
	}
	r.entry.Steps = append(r.entry.Steps, step)
	r.entry.Touch()
	r.persistLocked()
}

func (r *Recorder) Finish(result string, err error) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry.Finish(result, err)
	r.persistLocked()
}

func (r *Recorder) Entry() Entry {
	if r == nil {
		return Entry{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.entry
	out.Steps = append([]Step(nil), r.entry.Steps...)
	return out
}

func (r *Recorder) persist() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persistLocked()
}

func (r *Recorder) persistLocked() {
	if r.store == nil {
		return
	}
	if err := r.store.Save(r.entry); err != nil {
		r.log.WithFields(logrus.Fields{
			"entry_id": r.entry.EntryID,
			"action":   r.entry.Action,
		}).WithError(err).Warn("journal write failed")
	}
}

type recorderKey struct{}

func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

// RecorderFrom returns the recorder attached to ctx, or nil.
func RecorderFrom(ctx context.Context) *Recorder {
	r, _ := ctx.Value(recorderKey{}).(*Recorder)
	return r
}
