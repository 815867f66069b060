//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Forwarding engine worker.
//

package emucore

import (
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/chargen/sockem/emuconf"
	"github.com/rbmk-project/common/errclass"
)

// direction identifies one relay direction.
type direction int

const (
	// directionTx relays application bytes to the peer.
	directionTx direction = iota

	// directionRx relays peer bytes to the application.
	directionRx
)

// String returns the conventional short name of the direction.
func (d direction) String() string {
	if d == directionTx {
		return "tx"
	}
	return "rx"
}

// throughputCap returns the throughput cap declared for the
// direction. The engine reports the cap but does not enforce it.
func (d direction) throughputCap(conf emuconf.Config) int {
	if d == directionTx {
		return conf.TxThroughput
	}
	return conf.RxThroughput
}

// waitTimeout returns the bounded readiness wait for one relay
// cycle. An idle configuration waits a full second; once latency
// injection is active the wait shrinks to the smaller latency
// parameter so configuration changes and termination are noticed
// promptly. The wait never drops below a millisecond because a
// zero wait would spin.
func waitTimeout(conf emuconf.Config) time.Duration {
	if conf.Delay+conf.Jitter == 0 {
		return time.Second
	}
	wt := time.Duration(min(conf.Delay, conf.Jitter)) * time.Millisecond
	return max(wt, time.Millisecond)
}

// injectedDelay returns the latency injected before forwarding a
// chunk: the full delay plus half the jitter, deterministically,
// with no randomness involved.
func injectedDelay(conf emuconf.Config) time.Duration {
	return time.Duration(conf.Delay+conf.Jitter/2) * time.Millisecond
}

// engineMain is the forwarding engine worker. Exactly one worker
// ever runs per handle; teardown joins it through the done channel.
func (h *Handle) engineMain() {
	defer h.signalDone()
	defer h.mgr.unlink(h)
	defer func() {
		h.mu.Lock()
		h.run = runTerm
		h.closeAllLocked()
		h.mu.Unlock()
	}()

	h.mu.Lock()
	if h.run != runStart {
		// Torn down before the body began executing.
		h.mu.Unlock()
		return
	}
	h.run = runRun
	h.use = h.conf
	use := h.use
	lis := h.lis
	h.mu.Unlock()

	// The relay chunk size is fixed for the connection lifetime, so
	// later rx.bufsz changes only affect future connections.
	bufsz := use.BufferSize
	if bufsz <= 0 {
		bufsz = emuconf.DefaultBufferSize
	}

	// Wait for the redirected application connection. During an
	// orderly teardown the listener is force-closed while the state
	// is already terminating, and that failure is silent; any other
	// accept failure must be surfaced, not swallowed.
	acc, err := lis.Accept()
	if err != nil {
		h.mu.Lock()
		quiet := h.run == runTerm
		h.mu.Unlock()
		if !quiet && h.mgr.Logger != nil {
			h.mgr.Logger.Error(
				"acceptFailed",
				slog.Any("err", err),
				slog.String("errClass", errclass.New(err)),
				slog.Int64("socketID", int64(h.id)),
				slog.String("target", h.target),
				slog.Time("t", h.mgr.timeNow()),
			)
		}
		return
	}
	h.mu.Lock()
	h.acc = acc
	h.mu.Unlock()

	// Wait for the background dial of the real destination.
	<-h.dialReady
	h.mu.Lock()
	peer, dialErr := h.peer, h.dialErr
	running := h.run == runRun
	h.mu.Unlock()
	if dialErr != nil || !running || peer == nil {
		if dialErr != nil && h.mgr.Logger != nil {
			h.mgr.Logger.Error(
				"peerDialFailed",
				slog.Any("err", dialErr),
				slog.String("errClass", errclass.New(dialErr)),
				slog.Int64("socketID", int64(h.id)),
				slog.String("target", h.target),
				slog.Time("t", h.mgr.timeNow()),
			)
		}
		return
	}

	if h.mgr.Logger != nil {
		h.mgr.Logger.Info(
			"relayStart",
			slog.String("localAddr", acc.RemoteAddr().String()),
			slog.String("remoteAddr", peer.RemoteAddr().String()),
			slog.Int64("socketID", int64(h.id)),
			slog.String("target", h.target),
			slog.Time("t", h.mgr.timeNow()),
		)
	}

	// Relay until either side terminates the connection. The worker
	// joins both shuttles before exiting, which keeps the teardown
	// contract of a single joinable worker per connection.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.shuttle(acc, peer, directionTx, bufsz)
	}()
	go func() {
		defer wg.Done()
		h.shuttle(peer, acc, directionRx, bufsz)
	}()
	wg.Wait()

	if h.mgr.Logger != nil {
		h.mgr.Logger.Info(
			"relayDone",
			slog.Int64("socketID", int64(h.id)),
			slog.String("target", h.target),
			slog.Time("t", h.mgr.timeNow()),
		)
	}
}

// shuttle relays bytes from src to dst until the connection
// terminates, applying the effective configuration to every chunk.
func (h *Handle) shuttle(src, dst net.Conn, dir direction, bufsz int) {
	buf := make([]byte, bufsz)
	for {
		// Cycle boundary: adopt the desired configuration. This is
		// the only point where live updates take effect. The lock
		// is released before any blocking operation below.
		h.mu.Lock()
		if h.run != runRun {
			h.mu.Unlock()
			// Closing the relay sockets here unblocks a sibling
			// shuttle parked in a blocking write.
			h.terminate()
			return
		}
		h.use = h.conf
		use := h.use
		h.mu.Unlock()

		// Bounded readiness wait, so that termination and fresh
		// configuration are noticed even on an idle connection.
		src.SetReadDeadline(time.Now().Add(waitTimeout(use)))
		count, err := src.Read(buf)

		if count > 0 {
			if d := injectedDelay(use); d > 0 {
				time.Sleep(d)
			}
			if use.Debug != 0 && h.mgr.Logger != nil {
				h.mgr.Logger.Info(
					"relayChunk",
					slog.String("direction", dir.String()),
					slog.Int("ioBytesCount", count),
					slog.Int64("delayMillisecond", injectedDelay(use).Milliseconds()),
					slog.Int("throughputCap", dir.throughputCap(use)),
					slog.Int64("socketID", int64(h.id)),
					slog.Time("t", h.mgr.timeNow()),
				)
			}
			if _, werr := dst.Write(buf[:count]); werr != nil {
				h.terminate()
				return
			}
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) || retryableReadError(err) {
				continue
			}
			// EOF, hangup, or a fatal transport error: the
			// connection is over.
			h.terminate()
			return
		}
	}
}
