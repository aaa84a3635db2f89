package messaging

import "context"

// NopNotifier ignores every event. Embed it to implement part of Notifier.
type NopNotifier struct{}

func (NopNotifier) Queued(context.Context, JobEvent) {}

func (NopNotifier) Started(context.Context, JobEvent) {}

func (NopNotifier) Progress(context.Context, ProgressEvent) {}

func (NopNotifier) Completed(context.Context, CompletionEvent) {}

// Fanout forwards each event to every notifier in order.
type Fanout []Notifier

func (f Fanout) Queued(ctx context.Context, ev JobEvent) {
	for _, n := range f {
		n.Queued(ctx, ev)
	}
}

func (f Fanout) Started(ctx context.Context, ev JobEvent) {
	for _, n := range f {
		n.Started(ctx, ev)
	}
}

func (f Fanout) Progress(ctx context.Context, ev ProgressEvent) {
	for _, n := range f {
		n.Progress(ctx, ev)
	}
}

func (f Fanout) Completed(ctx context.Context, ev CompletionEvent) {
	for _, n := range f {
		n.Completed(ctx, ev)
	}
}
