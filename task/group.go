// Package task implements a Group of named, concurrently executing tasks.
// Scrivo processes are structured as such groups: the server's accept loops
// and the signal handler each run as one task, and the first task to fail
// cancels all of the others.
package task

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Group runs a set of named tasks, each on its own goroutine, and cancels
// all of them when any one returns a non-nil error. Tasks must watch the
// Group Context and exit once it is cancelled. A Group is built up with
// Queue, started exactly once with GoRun, and then drained with Wait.
// A Group is not itself safe for concurrent use.
type Group struct {
	ctx      context.Context
	cancelFn context.CancelFunc

	names   []string
	fns     []func() error
	eg      *errgroup.Group
	started bool
}

// NewGroup returns an empty Group derived from |ctx|.
func NewGroup(ctx context.Context) *Group {
	ctx, cancel := context.WithCancel(ctx)
	eg, ctx := errgroup.WithContext(ctx)
	return &Group{ctx: ctx, cancelFn: cancel, eg: eg}
}

// Context of the Group. It is cancelled when a queued task returns a
// non-nil error, when Cancel is called, or when the parent context of the
// Group is cancelled.
func (g *Group) Context() context.Context { return g.ctx }

// Cancel the Group Context.
func (g *Group) Cancel() { g.cancelFn() }

// Queue |fn| to be run by GoRun. |name| prefixes an error returned by |fn|.
// Queue panics if the Group was already started.
func (g *Group) Queue(name string, fn func() error) {
	if g.started {
		panic("task: Queue of a started Group")
	}
	g.names = append(g.names, name)
	g.fns = append(g.fns, fn)
}

// GoRun starts every queued task. It panics on a second invocation.
func (g *Group) GoRun() {
	if g.started {
		panic("task: GoRun of a started Group")
	}
	g.started = true

	for i := range g.fns {
		var name, fn = g.names[i], g.fns[i]
		g.eg.Go(func() error { return errors.WithMessage(fn(), name) })
	}
}

// Wait blocks until all started tasks complete, and returns the first
// encountered non-nil error. GoRun must have been called, or Wait panics.
func (g *Group) Wait() error {
	if !g.started {
		panic("task: Wait of an un-started Group")
	}
	return g.eg.Wait()
}
