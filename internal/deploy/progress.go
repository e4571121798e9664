package deploy

import "github.com/edvin/homedock/internal/model"

// Progress milestones of one deploy attempt.
const (
	ProgressStart      = 0.05
	ProgressConfigured = 0.15
	ProgressSeeded     = 0.20
	ProgressPullStart  = 0.35
	ProgressPullDone   = 0.85
	ProgressFinalizing = 0.90
	ProgressTerminal   = 1.0
)

// ProgressSink receives install progress events. PushProgress must not block.
type ProgressSink interface {
	PushProgress(ev model.InstallProgress)
}

// reporter emits the events of one attempt. Values never decrease and at
// most one terminal event is sent.
type reporter struct {
	sink ProgressSink
	base model.InstallProgress
	last float64
	done bool
}

func newReporter(sink ProgressSink, appID, container string, meta model.AppMeta) *reporter {
	return &reporter{
		sink: sink,
		base: model.InstallProgress{
			AppID:     appID,
			Container: container,
			Name:      meta.Name,
			Icon:      meta.Icon,
		},
	}
}

func (r *reporter) setContainer(name string) {
	r.base.Container = name
}

func (r *reporter) emit(progress float64, status model.ProgressStatus, msg string) {
	if r.done || r.sink == nil {
		return
	}
	if progress < r.last {
		progress = r.last
	}
	r.last = progress
	if status.Terminal() {
		r.done = true
	}

	ev := r.base
	ev.Progress = progress
	ev.Status = status
	ev.Message = msg
	r.sink.PushProgress(ev)
}

func (r *reporter) running(progress float64, msg string) {
	r.emit(progress, model.ProgressRunning, msg)
}

func (r *reporter) completed(msg string) {
	r.emit(ProgressTerminal, model.ProgressCompleted, msg)
}

func (r *reporter) failed(msg string) {
	r.emit(ProgressTerminal, model.ProgressError, msg)
}
