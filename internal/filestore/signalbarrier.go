package filestore

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// globalSignalBarrier is process-wide because signal disposition is
// process-scoped — there is no per-mount equivalent. Every Store that
// uses the Bracket backend shares this one instance.
var globalSignalBarrier = newSignalBarrier()

// SignalBarrier defers delivery of SIGINT/SIGTERM while a Bracket
// transaction is between TRANS_START and TRANS_END, so a terminated
// process never observes a half-applied bracket.
type SignalBarrier struct {
	mu           sync.Mutex
	cond         *sync.Cond
	transRunning int
	sigPending   os.Signal

	installed int32
}

func newSignalBarrier() *SignalBarrier {
	b := &SignalBarrier{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// install registers the SIGINT/SIGTERM handler exactly once, no matter
// how many Stores call it — first-wins.
func (b *SignalBarrier) install() {
	if !atomic.CompareAndSwapInt32(&b.installed, 0, 1) {
		return
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go b.handle(ch)
}

func (b *SignalBarrier) handle(ch <-chan os.Signal) {
	for sig := range ch {
		b.mu.Lock()
		b.sigPending = sig
		running := b.transRunning
		b.mu.Unlock()
		if running == 0 {
			b.exit(sig)
		}
		// else: deferred. leave() will invoke the exit path once
		// transRunning drops back to zero.
	}
}

// exit runs the process's default disposition for sig: log and
// terminate. It never returns.
func (b *SignalBarrier) exit(sig os.Signal) {
	log.WithField("signal", sig).Warn("terminating on deferred signal")
	signal.Stop(make(chan os.Signal))
	os.Exit(128 + int(sig.(syscall.Signal)))
}

// enter marks the start of a Bracket transaction window, blocking only
// in the narrow case where another transaction is still running and a
// signal is already pending its exit.
func (b *SignalBarrier) enter() {
	b.install()
	b.mu.Lock()
	for b.transRunning > 0 && b.sigPending != nil {
		b.cond.Wait()
	}
	b.transRunning++
	b.mu.Unlock()
}

// leave marks the end of a Bracket transaction window. If this was the
// last in-flight transaction and a signal arrived while it ran, the
// deferred exit happens now, synchronously.
func (b *SignalBarrier) leave() {
	b.mu.Lock()
	b.transRunning--
	if b.transRunning == 0 && b.sigPending != nil {
		sig := b.sigPending
		b.mu.Unlock()
		b.exit(sig)
		return
	}
	b.mu.Unlock()
	b.cond.Broadcast()
}
