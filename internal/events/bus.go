// Package events carries panel traffic between the panels and their
// consumers (websocket hub, run history, metrics) over a kelindar/event
// dispatcher. Each subscriber receives events of its type in publish order
// on its own goroutine.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/kelindar/event"

	"agentdock/internal/protocol"
)

const (
	TypePanelMessage uint32 = iota + 1
	TypeRunStarted
	TypeRunFinished
)

// PanelMessageEvent is one outbound message for a panel's views.
type PanelMessageEvent struct {
	PanelID string
	Message protocol.Outbound
}

func (e PanelMessageEvent) Type() uint32 { return TypePanelMessage }

// RunStartedEvent is published when a panel hands a process to its supervisor.
type RunStartedEvent struct {
	RunID       string
	PanelID     string
	CommandLine string
	StartedAt   time.Time

	barrier *sync.WaitGroup
}

func (e RunStartedEvent) Type() uint32 { return TypeRunStarted }

// RunFinishedEvent is published once per run, on its terminal status.
type RunFinishedEvent struct {
	RunID       string
	PanelID     string
	Status      string
	Message     string
	ExitCode    int
	OutputBytes int
	StartedAt   time.Time
	FinishedAt  time.Time

	barrier *sync.WaitGroup
}

func (e RunFinishedEvent) Type() uint32 { return TypeRunFinished }

type Bus struct {
	dispatcher *event.Dispatcher

	mu      sync.Mutex
	runSubs int
}

func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

func (b *Bus) PublishPanelMessage(e PanelMessageEvent) {
	if b == nil {
		return
	}
	event.Publish(b.dispatcher, e)
}

func (b *Bus) PublishRunStarted(e RunStartedEvent) {
	if b == nil {
		return
	}
	event.Publish(b.dispatcher, e)
}

func (b *Bus) PublishRunFinished(e RunFinishedEvent) {
	if b == nil {
		return
	}
	event.Publish(b.dispatcher, e)
}

// SubscribePanelMessages returns an unsubscribe function.
func (b *Bus) SubscribePanelMessages(h func(PanelMessageEvent)) func() {
	return event.Subscribe(b.dispatcher, h)
}

func (b *Bus) SubscribeRunStarted(h func(RunStartedEvent)) func() {
	return b.trackRunSub(event.Subscribe(b.dispatcher, func(e RunStartedEvent) {
		if e.barrier != nil {
			e.barrier.Done()
			return
		}
		h(e)
	}))
}

func (b *Bus) SubscribeRunFinished(h func(RunFinishedEvent)) func() {
	return b.trackRunSub(event.Subscribe(b.dispatcher, func(e RunFinishedEvent) {
		if e.barrier != nil {
			e.barrier.Done()
			return
		}
		h(e)
	}))
}

func (b *Bus) trackRunSub(unsub func()) func() {
	b.mu.Lock()
	b.runSubs++
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.runSubs--
			b.mu.Unlock()
			unsub()
		})
	}
}

// DrainRuns blocks until every run event published before the call has been
// handled by the current run subscribers, or ctx ends.
func (b *Bus) DrainRuns(ctx context.Context) error {
	if b == nil {
		return nil
	}
	// Subscribers of each type see the barrier after the events queued
	// ahead of it.
	b.mu.Lock()
	var wg sync.WaitGroup
	wg.Add(b.runSubs)
	event.Publish(b.dispatcher, RunStartedEvent{barrier: &wg})
	event.Publish(b.dispatcher, RunFinishedEvent{barrier: &wg})
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
