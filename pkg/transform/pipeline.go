// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transform

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Func is the pluggable transformation capability. Implementations receive
// the raw message text and return the transformed text or an error.
type Func func(text string) (string, error)

// Result is the outcome of one transformation invocation.
type Result struct {
	Output      string
	Succeeded   bool
	ErrorDetail string
}

// Pipeline applies a Func under a fixed execution budget. Exceeding the
// budget is a failure, not a retry trigger: the Func may have side effects
// and must not be invoked twice for the same message.
type Pipeline struct {
	fn     Func
	budget time.Duration
}

// NewPipeline wraps fn with the given execution budget. A budget of zero
// falls back to 30 seconds.
func NewPipeline(fn Func, budget time.Duration) *Pipeline {
	if budget <= 0 {
		budget = 30 * time.Second
	}

	return &Pipeline{
		fn:     fn,
		budget: budget,
	}
}

// Transform invokes the wrapped Func for the given text. The invocation runs
// in its own goroutine; a panic inside the Func is captured as a failure. If
// the budget or the passed context expires first, the Result is a failure and
// the Func's eventual output is discarded.
func (p *Pipeline) Transform(ctx context.Context, text string) Result {
	type outcome struct {
		output string
		err    error
	}

	outcomeChan := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				outcomeChan <- outcome{err: fmt.Errorf("transformation panicked: %v", r)}
			}
		}()

		output, err := p.fn(text)
		outcomeChan <- outcome{output: output, err: err}
	}()

	select {
	case o := <-outcomeChan:
		if o.err != nil {
			log.WithError(o.err).Debug("Transformation function errored")

			return Result{ErrorDetail: o.err.Error()}
		}
		return Result{Output: o.output, Succeeded: true}

	case <-time.After(p.budget):
		log.WithField("budget", p.budget).Warn("Transformation exceeded its execution budget")

		return Result{ErrorDetail: fmt.Sprintf("transformation exceeded its budget of %v", p.budget)}

	case <-ctx.Done():
		return Result{ErrorDetail: fmt.Sprintf("transformation aborted: %v", ctx.Err())}
	}
}
