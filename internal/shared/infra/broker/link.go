package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrConnectTimeout = errors.New("broker: timed out waiting for connection attempt")
	ErrClosed         = errors.New("broker: link closed")
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// DialFunc comprueba que el broker es alcanzable.
type DialFunc func(ctx context.Context) error

type attempt struct {
	done chan struct{}
	err  error
}

// Link es la máquina de estados de conexión que comparten Producer y Consumer.
// Solo hay un intento de conexión en vuelo; tras un fallo se programa un reintento.
type Link struct {
	name string
	cfg  Config
	dial DialFunc
	log  *zap.Logger

	mu          sync.Mutex
	state       State
	current     *attempt
	retry       *time.Timer
	closed      bool
	onConnected []func()
}

func NewLink(name string, cfg Config, dial DialFunc, log *zap.Logger) *Link {
	return &Link{
		name: name,
		cfg:  cfg.WithDefaults(),
		dial: dial,
		log:  log,
	}
}

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// OnConnected registra un callback que se ejecuta cada vez que se entra en Connected.
func (l *Link) OnConnected(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onConnected = append(l.onConnected, fn)
}

// Connect es idempotente. Si ya hay un intento en curso espera a su resultado
// como mucho ConnectTimeout, sin lanzar un segundo intento.
func (l *Link) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	switch l.state {
	case Connected:
		l.mu.Unlock()
		return nil
	case Connecting:
		a := l.current
		l.mu.Unlock()
		return l.await(ctx, a, true)
	}
	a := l.begin()
	l.mu.Unlock()

	return l.await(ctx, a, false)
}

// ConnectAsync lanza un intento si no hay ninguno y vuelve sin esperar.
func (l *Link) ConnectAsync() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.state != Disconnected {
		return
	}
	l.begin()
}

// Reset marca la conexión como caída (p.ej. tras un envío fallido) y programa un reintento.
func (l *Link) Reset(cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Connected {
		return
	}
	l.state = Disconnected
	l.log.Warn("broker link reset", zap.String("link", l.name), zap.Error(cause))
	l.scheduleRetry()
}

// Disconnect libera la conexión y cancela reintentos pendientes. Se puede volver a conectar.
func (l *Link) Disconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnectLocked()
}

func (l *Link) disconnectLocked() {
	l.stopRetry()
	l.current = nil
	l.state = Disconnected
}

// Close desconecta y rechaza cualquier intento posterior.
func (l *Link) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.disconnectLocked()
}

// begin arranca un intento en background. Requiere l.mu.
func (l *Link) begin() *attempt {
	l.stopRetry()
	a := &attempt{done: make(chan struct{})}
	l.state = Connecting
	l.current = a
	go l.run(a)
	return a
}

func (l *Link) run(a *attempt) {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.ConnectTimeout)
	err := l.dial(ctx)
	cancel()

	l.mu.Lock()
	var callbacks []func()
	switch {
	case l.current != a:
		// Un Disconnect/Close intermedio invalidó este intento.
		if err == nil {
			err = ErrClosed
		}
	case err == nil && !l.closed:
		l.state = Connected
		callbacks = append(callbacks, l.onConnected...)
		l.log.Info("✅ broker connected", zap.String("link", l.name), zap.Strings("brokers", l.cfg.Brokers))
	default:
		if err == nil {
			err = ErrClosed
		}
		l.state = Disconnected
		l.log.Warn("⚠️ broker connection failed",
			zap.String("link", l.name),
			zap.Duration("retry_in", l.cfg.RetryBackoff),
			zap.Error(err),
		)
		if !l.closed {
			l.scheduleRetry()
		}
	}
	if l.current == a {
		l.current = nil
	}
	a.err = err
	close(a.done)
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

func (l *Link) await(ctx context.Context, a *attempt, joined bool) error {
	var timeout <-chan time.Time
	if joined {
		t := time.NewTimer(l.cfg.ConnectTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-a.done:
		return a.err
	case <-timeout:
		return ErrConnectTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// scheduleRetry requiere l.mu. Un timer que ya disparó pero llega tarde al lock
// (tras un Disconnect o un begin) deja de ser l.retry y no hace nada.
func (l *Link) scheduleRetry() {
	if l.retry != nil {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(l.cfg.RetryBackoff, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.retry != t {
			return
		}
		l.retry = nil
		if l.closed || l.state != Disconnected {
			return
		}
		l.begin()
	})
	l.retry = t
}

func (l *Link) stopRetry() {
	if l.retry != nil {
		l.retry.Stop()
		l.retry = nil
	}
}
