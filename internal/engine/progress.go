package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/log"
)

type (
	// ProgressSink delivers progress updates to the controller
	ProgressSink interface {
		SendProgress(ctx context.Context, update *api.ProgressUpdate) error
	}

	// Progress pushes snapshots of one run. Reports arriving within the
	// debounce window are coalesced into a single push of the latest
	// snapshot, and a mutex keeps at most one push in flight. A snapshot
	// older than one already sent is dropped
	Progress struct {
		sink     ProgressSink
		build    progressBuilder
		debounce time.Duration

		pushMu sync.Mutex
		sent   uint64

		mu      sync.Mutex
		seq     uint64
		pending *snapshot
		timer   *time.Timer
	}

	progressBuilder func(
		context.Context, *api.FlowContext,
	) (*api.ProgressUpdate, error)

	snapshot struct {
		fc  *api.FlowContext
		seq uint64
	}
)

// NewProgress creates a reporter that pushes through sink
func NewProgress(
	sink ProgressSink, debounce time.Duration, build progressBuilder,
) *Progress {
	return &Progress{
		sink:     sink,
		build:    build,
		debounce: debounce,
	}
}

// Report schedules a push of fc without waiting for it
func (p *Progress) Report(ctx context.Context, fc *api.FlowContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.pending = &snapshot{fc: fc, seq: p.seq}
	if p.timer != nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	p.timer = time.AfterFunc(p.debounce, func() {
		p.push(ctx, p.take())
	})
}

// Flush cancels any scheduled push and sends fc immediately
func (p *Progress) Flush(ctx context.Context, fc *api.FlowContext) {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.seq++
	snap := &snapshot{fc: fc, seq: p.seq}
	p.pending = nil
	p.mu.Unlock()
	p.push(ctx, snap)
}

func (p *Progress) take() *snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := p.pending
	p.pending = nil
	p.timer = nil
	return res
}

func (p *Progress) push(ctx context.Context, snap *snapshot) {
	if snap == nil {
		return
	}
	p.pushMu.Lock()
	defer p.pushMu.Unlock()
	if snap.seq <= p.sent {
		return
	}
	p.sent = snap.seq

	update, err := p.build(ctx, snap.fc)
	if err == nil {
		err = p.sink.SendProgress(ctx, update)
	}
	if err != nil {
		slog.Warn("Failed to send progress",
			log.RunID(snap.fc.RunID),
			log.Error(err))
	}
}
