// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"time"

	"github.com/DocSyncAI/DocSync/services/alignment/datatypes"
)

// debouncer coalesces a burst of change events for one document into a
// single handler invocation. Each event resets the window; when the
// window finally expires only the most recent event fires, so rapid
// intermediate edits never trigger their own re-analysis.
type debouncer struct {
	window  time.Duration
	events  chan datatypes.ChangeEvent
	done    chan struct{}
	stopped chan struct{}
	handler func(datatypes.ChangeEvent)
}

func newDebouncer(window time.Duration, handler func(datatypes.ChangeEvent)) *debouncer {
	d := &debouncer{
		window:  window,
		events:  make(chan datatypes.ChangeEvent, 64),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		handler: handler,
	}
	go d.loop()
	return d
}

// offer queues an event without blocking. If the buffer is full the
// event is dropped; a later event carries the newer fingerprint anyway.
func (d *debouncer) offer(event datatypes.ChangeEvent) {
	select {
	case d.events <- event:
	default:
	}
}

func (d *debouncer) stop() {
	close(d.done)
	<-d.stopped
}

// loop batches events and calls the handler after the window settles.
func (d *debouncer) loop() {
	defer close(d.stopped)

	var latest datatypes.ChangeEvent
	var pending bool
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if pending {
			d.handler(latest)
			pending = false
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-d.done:
			// Pending work is dropped at shutdown. The change itself is
			// durable in the snapshot store, so the next request derives
			// the new cache key anyway.
			return

		case event := <-d.events:
			latest = event
			pending = true

			if timer == nil {
				timer = time.NewTimer(d.window)
				timerC = timer.C
			} else {
				timer.Reset(d.window)
			}

		case <-timerC:
			flush()
		}
	}
}
