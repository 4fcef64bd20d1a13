package kvmirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type persistOp struct {
	name string
	keys []string
	run  func(ctx context.Context) error
}

// persister applies backing-store writes in submission order. In the
// default write-behind mode a single goroutine drains the queue and the
// caller never waits; failures are kept until the next flush.
type persister struct {
	logf    func(level string, ctx context.Context, format string, args ...interface{})
	onError func(error)
	sync    bool

	mu     sync.Mutex
	queue  []queuedOp
	errs   []error
	closed bool
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

type queuedOp struct {
	ctx context.Context
	op  persistOp
}

func (p *persister) start() {
	p.signal = make(chan struct{}, 1)
	p.done = make(chan struct{})
	if p.sync {
		close(p.done)
		return
	}
	go p.loop()
}

func (p *persister) loop() {
	defer close(p.done)
	for {
		p.mu.Lock()
		for len(p.queue) == 0 {
			if p.closed {
				p.mu.Unlock()
				return
			}
			p.mu.Unlock()
			<-p.signal
			p.mu.Lock()
		}
		next := p.queue[0]
		p.queue[0] = queuedOp{}
		p.queue = p.queue[1:]
		p.mu.Unlock()

		if err := p.apply(next.ctx, next.op); err != nil {
			p.mu.Lock()
			p.errs = append(p.errs, err)
			p.mu.Unlock()
		}
	}
}

func (p *persister) wake() {
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// err reports ErrClosed once the persister has been closed.
func (p *persister) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return nil
}

// submit runs op inline in sync mode, otherwise queues it. The queued
// operation keeps ctx values but not its cancellation.
func (p *persister) submit(ctx context.Context, op persistOp) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.sync {
		p.mu.Unlock()
		return p.apply(ctx, op)
	}
	p.queue = append(p.queue, queuedOp{ctx: context.WithoutCancel(ctx), op: op})
	p.mu.Unlock()
	p.wake()
	return nil
}

func (p *persister) apply(ctx context.Context, op persistOp) error {
	err := op.run(ctx)
	if err == nil {
		return nil
	}
	err = fmt.Errorf("%s %v: %w", op.name, op.keys, err)
	p.logf("error", ctx, "persist failed: %v", err)
	if p.onError != nil {
		p.onError(err)
	}
	return err
}

// drain waits until every operation queued before the call has been
// applied.
func (p *persister) drain(ctx context.Context) error {
	if p.sync {
		return nil
	}
	barrier := make(chan struct{})
	err := p.submit(ctx, persistOp{name: "drain", run: func(context.Context) error {
		close(barrier)
		return nil
	}})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	if err != nil {
		return err
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// flush drains the queue and returns the failures collected since the
// previous flush.
func (p *persister) flush(ctx context.Context) error {
	if err := p.drain(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	collected := errors.Join(p.errs...)
	p.errs = nil
	return collected
}

// close drains the queue and stops the worker.
func (p *persister) close(ctx context.Context) error {
	err := p.flush(ctx)
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.wake()
	})
	select {
	case <-p.done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}
