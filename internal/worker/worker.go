// Package worker implements SID's worker-control subsystem (spec.md
// §4.5): spawning forked worker processes, the channel file descriptor
// pairs they communicate over with the parent "proxy", yield/timeout
// handling, and teardown. Internal channels are unix domain socket
// pairs so ancillary file descriptors (DATA_EXT, spec.md §4.5) can
// ride alongside the length-prefixed frame.
package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/sidproject/sid/internal/logging"
	"github.com/sidproject/sid/internal/siderr"
	"github.com/sidproject/sid/internal/wire"
)

// State is a worker proxy's lifecycle state (spec.md §4.5).
type State int

const (
	StateIdle State = iota
	StateAssigned
	StateExiting
	StateTimedOut
	StateExited
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAssigned:
		return "ASSIGNED"
	case StateExiting:
		return "EXITING"
	case StateTimedOut:
		return "TIMED_OUT"
	case StateExited:
		return "EXITED"
	default:
		return "UNKNOWN"
	}
}

// Kind distinguishes an internal (in-tree event-loop) worker from an
// external (exec'd program) worker, which determines the parent-death
// signal and channel framing (spec.md §4.5).
type Kind int

const (
	KindInternal Kind = iota
	KindExternal
)

func (k Kind) parentDeathSignal() syscall.Signal {
	if k == KindInternal {
		return syscall.SIGUSR1
	}
	return syscall.SIGTERM
}

// Channel is one parent-side end of a socketpair shared with a worker.
type Channel struct {
	Conn *os.File
}

// Proxy is the parent-side handle on a spawned worker process.
type Proxy struct {
	ID    string
	Kind  Kind
	State State

	cmd      *exec.Cmd
	channels []*Channel

	idleTimer *time.Timer
	execTimer *time.Timer

	parentExited bool

	mu sync.Mutex
}

// Manager owns every worker proxy and the assignment policy
// (get_idle_worker / spawn-on-demand, spec.md §4.5).
type Manager struct {
	mu         sync.Mutex
	proxies    map[string]*Proxy
	idleWait   time.Duration
	execWait   time.Duration
	log        *logging.Logger
}

// NewManager returns an empty worker manager with the given idle and
// execution timeouts (0 disables a timeout).
func NewManager(idleWait, execWait time.Duration) *Manager {
	return &Manager{
		proxies:  make(map[string]*Proxy),
		idleWait: idleWait,
		execWait: execWait,
		log:      logging.Default(),
	}
}

// channelCount is the number of internal channels spawned with every
// worker: one data channel plus one control channel.
const channelCount = 2

// Spawn creates channelCount socketpairs, forks the child via os/exec
// (the command to run for an external worker, or the current
// executable re-invoked in an internal worker-loop mode), sets the
// parent-death signal, and registers an idle proxy bound to the child
// PID (spec.md §4.5).
func (m *Manager) Spawn(kind Kind, id string, argv []string) (*Proxy, error) {
	if id == "" {
		id = uuid.NewString()
	}

	channels := make([]*Channel, 0, channelCount)
	childFiles := make([]*os.File, 0, channelCount)
	for i := 0; i < channelCount; i++ {
		fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
		if err != nil {
			return nil, siderr.Wrap("worker.Spawn", err)
		}
		parentEnd := os.NewFile(uintptr(fds[0]), fmt.Sprintf("%s-chan%d-parent", id, i))
		childEnd := os.NewFile(uintptr(fds[1]), fmt.Sprintf("%s-chan%d-child", id, i))
		channels = append(channels, &Channel{Conn: parentEnd})
		childFiles = append(childFiles, childEnd)
	}

	if len(argv) == 0 {
		argv = []string{os.Args[0], "-worker-loop"}
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.ExtraFiles = childFiles
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: kind.parentDeathSignal()}

	if err := cmd.Start(); err != nil {
		return nil, siderr.Wrap("worker.Spawn", err)
	}
	for _, f := range childFiles {
		f.Close()
	}

	p := &Proxy{ID: id, Kind: kind, State: StateIdle, cmd: cmd, channels: channels}

	m.mu.Lock()
	m.proxies[id] = p
	m.mu.Unlock()

	m.armIdleTimer(p)
	go m.waitForExit(p)

	m.log.Info("worker spawned", "id", id, "kind", kind, "pid", cmd.Process.Pid)
	return p, nil
}

// GetIdleWorker returns any proxy in IDLE state, or (nil, false) if
// none is available (spec.md §4.5).
func (m *Manager) GetIdleWorker() (*Proxy, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.proxies {
		p.mu.Lock()
		idle := p.State == StateIdle
		p.mu.Unlock()
		if idle {
			return p, true
		}
	}
	return nil, false
}

// Assign moves p to ASSIGNED, cancels its idle timer, and arms the
// execution timeout if configured (spec.md §4.5).
func (m *Manager) Assign(p *Proxy) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.idleTimer != nil {
		p.idleTimer.Stop()
	}
	p.State = StateAssigned

	if m.execWait > 0 {
		p.execTimer = time.AfterFunc(m.execWait, func() { m.timeout(p) })
	}
}

// Yield handles a worker's wire.InternalYield frame on its lowest-
// numbered channel by tearing the worker down: spec.md §3.4 transitions
// a worker to EXITING on YIELD, not back to IDLE, and
// original_source/src/resource/worker-control.c's
// WORKER_CHANNEL_CMD_YIELD handler unconditionally calls
// _make_worker_exit (kill + WORKER_STATE_EXITING) — a persistent,
// reused worker pool is not how the source behaves. If the parent has
// already seen the worker's SIGUSR1 (parent-gone) flag, Yield only
// sends the worker SIGTERM, leaving its state and timers unchanged
// (spec.md §4.5).
func (m *Manager) Yield(p *Proxy) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.parentExited {
		return p.cmd.Process.Signal(syscall.SIGTERM)
	}

	if p.execTimer != nil {
		p.execTimer.Stop()
	}
	if p.idleTimer != nil {
		p.idleTimer.Stop()
	}
	p.State = StateExiting
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

func (m *Manager) armIdleTimer(p *Proxy) {
	if m.idleWait <= 0 {
		return
	}
	p.idleTimer = time.AfterFunc(m.idleWait, func() { m.timeout(p) })
}

// timeout marks p TIMED_OUT and sends the child SIGTERM. The signal is
// fixed; there is no setting to choose another one or none.
func (m *Manager) timeout(p *Proxy) {
	p.mu.Lock()
	p.State = StateTimedOut
	p.mu.Unlock()
	m.log.Warn("worker timed out", "id", p.ID)
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
}

// waitForExit is the child-exit handler: logs the exit code or signal,
// flips state to EXITED, then tears the proxy down (spec.md §4.5).
func (m *Manager) waitForExit(p *Proxy) {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.State = StateExited
	p.mu.Unlock()

	if err != nil {
		m.log.Info("worker exited", "id", p.ID, "error", err)
	} else {
		m.log.Info("worker exited", "id", p.ID, "code", 0)
	}

	m.teardown(p)
}

// teardown closes every channel and removes p from the manager.
func (m *Manager) teardown(p *Proxy) {
	for _, ch := range p.channels {
		ch.Conn.Close()
	}
	m.mu.Lock()
	delete(m.proxies, p.ID)
	m.mu.Unlock()
}

// Destroy signals every live worker to terminate, for restree teardown
// (spec.md §5 "resource discipline": children destroyed before
// parents, so the worker pool is torn down before the store it was
// reading a snapshot of).
func (m *Manager) Destroy() error {
	m.mu.Lock()
	proxies := make([]*Proxy, 0, len(m.proxies))
	for _, p := range m.proxies {
		proxies = append(proxies, p)
	}
	m.mu.Unlock()

	for _, p := range proxies {
		p.mu.Lock()
		cmd := p.cmd
		p.mu.Unlock()
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
		}
	}
	return nil
}

// NotifyParentGone flags p as having observed SIGUSR1, per Kind's
// parent-death-signal contract, so a subsequent Yield only sends the
// worker SIGTERM instead of moving it to EXITING (spec.md §4.5).
func (p *Proxy) NotifyParentGone() {
	p.mu.Lock()
	p.parentExited = true
	p.mu.Unlock()
}

// Channels returns p's parent-side channel handles.
func (p *Proxy) Channels() []*Channel { return p.channels }

// SendData writes a DATA frame on the proxy's first channel, the
// lowest-numbered channel per spec.md §4.5's yield preference.
func (p *Proxy) SendData(payload []byte) error {
	if len(p.channels) == 0 {
		return siderr.New("worker.SendData", siderr.KindInternal, "proxy has no channels")
	}
	return wire.WriteInternalFrame(p.channels[0].Conn, wire.InternalData, payload)
}

// RunLoop drives an internal worker's own single-threaded event loop:
// read one framed command at a time from its parent-assigned channel,
// dispatching NOOP/YIELD/DATA/DATA_EXT, until ctx is cancelled (spec.md
// §5's "single-threaded cooperative event loop per process").
func RunLoop(ctx context.Context, ch *os.File, handle func(wire.InternalFrame) error) error {
	type result struct {
		frame wire.InternalFrame
		err   error
	}
	frames := make(chan result, 1)

	for {
		go func() {
			frame, err := wire.ReadInternalFrame(ch)
			frames <- result{frame, err}
		}()

		select {
		case <-ctx.Done():
			return nil
		case r := <-frames:
			if r.err != nil {
				return r.err
			}
			if err := handle(r.frame); err != nil {
				return err
			}
		}
	}
}
