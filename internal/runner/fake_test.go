package runner

import (
	"io"
	"os"
	"sync"
	"time"
)

// fakeProcess is an in-memory Process. Wait writes the scripted output and
// then blocks until release is called or, when exitOnSignal is set, until
// the process is signalled.
type fakeProcess struct {
	startErr     error
	chunks       []string
	stderrText   string
	exitCode     int
	exitSignal   os.Signal
	waitErr      error
	exitOnSignal bool

	stdout io.Writer
	stderr io.Writer

	mu       sync.Mutex
	signals  []os.Signal
	exit     chan struct{}
	exitOnce sync.Once
	started  chan struct{}
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{
		exit:    make(chan struct{}),
		started: make(chan struct{}),
	}
}

func (p *fakeProcess) Start() error {
	if p.startErr != nil {
		return p.startErr
	}
	close(p.started)
	return nil
}

func (p *fakeProcess) Wait() (ExitStatus, error) {
	for _, c := range p.chunks {
		p.stdout.Write([]byte(c))
	}
	if p.stderrText != "" {
		p.stderr.Write([]byte(p.stderrText))
	}
	<-p.exit
	return ExitStatus{Code: p.exitCode, Signal: p.exitSignal}, p.waitErr
}

func (p *fakeProcess) Signal(sig os.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	p.mu.Unlock()
	if p.exitOnSignal {
		p.release()
	}
	return nil
}

func (p *fakeProcess) Pid() int { return 4242 }

func (p *fakeProcess) release() {
	p.exitOnce.Do(func() { close(p.exit) })
}

func (p *fakeProcess) Signals() []os.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]os.Signal{}, p.signals...)
}

type fakeLauncher struct {
	proc *fakeProcess
	spec Spec
}

func (l *fakeLauncher) Launch(spec Spec, stdout, stderr io.Writer) Process {
	l.spec = spec
	l.proc.stdout = stdout
	l.proc.stderr = stderr
	return l.proc
}

// fakeClock hands out timers that only fire when Fire is called.
type fakeClock struct {
	mu         sync.Mutex
	timers     []*fakeTimer
	registered chan struct{}
}

func newFakeClock() *fakeClock {
	return &fakeClock{registered: make(chan struct{}, 16)}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{d: d, f: f}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	c.registered <- struct{}{}
	return t
}

// Fire runs the most recently registered timer unless it was stopped.
func (c *fakeClock) Fire() {
	c.mu.Lock()
	t := c.timers[len(c.timers)-1]
	c.mu.Unlock()
	t.fire()
}

func (c *fakeClock) Timers() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTimer{}, c.timers...)
}

type fakeTimer struct {
	mu      sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (t *fakeTimer) fire() {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()
	t.f()
}

func (t *fakeTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// recordingInterpreter keeps every chunk it is handed.
type recordingInterpreter struct {
	mu     sync.Mutex
	chunks []string
	next   Interpreter
}

func (r *recordingInterpreter) OnChunk(chunk string) []string {
	r.mu.Lock()
	r.chunks = append(r.chunks, chunk)
	r.mu.Unlock()
	return r.next.OnChunk(chunk)
}
