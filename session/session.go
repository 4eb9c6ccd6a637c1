// Package session manages the single connection to a glockenspiel.
//
// A Session walks disconnected -> connecting -> connected and back. All
// transitions happen under the session's own lock; callers observe them via
// Status or Subscribe and never mutate them directly.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mil-ad/glockctl/melody"
)

// SerialPortUUID is the Bluetooth Serial Port Profile service class.
const SerialPortUUID = "00001101-0000-1000-8000-00805f9b34fb"

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultTempo          = 120
)

// State is the connection state of a Session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

var (
	ErrAdapterDisabled   = errors.New("bluetooth adapter is disabled")
	ErrNotFound          = errors.New("no bonded device with that name")
	ErrAmbiguous         = errors.New("several bonded devices share that name")
	ErrTimeout           = errors.New("connect timed out")
	ErrNotConnected      = errors.New("not connected")
	ErrConnectInProgress = errors.New("connect already in progress")
	ErrAlreadyConnected  = errors.New("already connected")
	ErrCanceled          = errors.New("connect canceled")
)

// IOError reports a transport fault during connect, write or close.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *IOError) Unwrap() error { return e.Err }

// Device is a bonded remote device.
type Device struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Directory is the platform's view of the local adapter and its bonded
// devices.
type Directory interface {
	// PowerOn makes sure the adapter is powered.
	PowerOn(ctx context.Context) error
	BondedDevices(ctx context.Context) ([]Device, error)
}

// Dialer opens a data connection to a device for the given service class.
// Implementations must honor ctx cancellation.
type Dialer interface {
	Dial(ctx context.Context, dev Device, serviceID string) (io.WriteCloser, error)
}

type Options struct {
	ServiceID      string
	ConnectTimeout time.Duration
	// DefaultTempo is used by Stop before any melody was sent.
	DefaultTempo int
	// StrictNames rejects names shared by several bonded devices with
	// ErrAmbiguous instead of picking the first.
	StrictNames bool
	Logger      *slog.Logger
}

// Status is a snapshot of a Session.
type Status struct {
	State  State  `json:"state"`
	Device Device `json:"device"`
	Tempo  int    `json:"tempo"`
}

type Session struct {
	dir    Directory
	dialer Dialer
	opts   Options
	log    *slog.Logger

	mu      sync.Mutex
	state   State
	device  Device
	conn    io.WriteCloser
	tempo   int
	attempt uint64
	cancel  context.CancelFunc
	// dialing stays set while a Dial runs, even after Disconnect gave up
	// on it.
	dialing bool
	subs    map[int]chan Status
	nextSub int
}

func New(dir Directory, dialer Dialer, opts Options) *Session {
	if opts.ServiceID == "" {
		opts.ServiceID = SerialPortUUID
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.DefaultTempo <= 0 {
		opts.DefaultTempo = DefaultTempo
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		dir:    dir,
		dialer: dialer,
		opts:   opts,
		log:    log.With("component", "session"),
		state:  StateDisconnected,
		subs:   make(map[int]chan Status),
	}
}

// Connect resolves name among the bonded devices and opens a connection to
// it. It blocks until the handshake finishes, fails, or the connect timeout
// expires. Only one connect may be in flight.
func (s *Session) Connect(ctx context.Context, name string) error {
	s.mu.Lock()
	if s.state == StateConnecting || s.dialing {
		s.mu.Unlock()
		return ErrConnectInProgress
	}
	if s.state == StateConnected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()
	s.attempt++
	attempt := s.attempt
	s.cancel = cancel
	s.dialing = true
	s.device = Device{Name: name}
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	s.log.Info("connecting", "device", name)
	dev, conn, err := s.dial(ctx, name)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialing = false
	if s.attempt != attempt {
		// Disconnect won the race.
		if conn != nil {
			conn.Close()
		}
		s.log.Info("connect canceled", "device", name)
		return ErrCanceled
	}
	s.cancel = nil
	if err != nil {
		s.device = Device{}
		s.setStateLocked(StateDisconnected)
		s.log.Warn("connect failed", "device", name, "err", err)
		return err
	}
	s.conn = conn
	s.device = dev
	s.setStateLocked(StateConnected)
	s.log.Info("connected", "device", dev.Name, "address", dev.Address)
	return nil
}

// ConnectAsync runs Connect on its own goroutine. The returned channel
// receives exactly one result.
func (s *Session) ConnectAsync(ctx context.Context, name string) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- s.Connect(ctx, name)
	}()
	return done
}

func (s *Session) dial(ctx context.Context, name string) (Device, io.WriteCloser, error) {
	if err := s.dir.PowerOn(ctx); err != nil {
		return Device{}, nil, fmt.Errorf("%w: %v", ErrAdapterDisabled, err)
	}
	devs, err := s.dir.BondedDevices(ctx)
	if err != nil {
		return Device{}, nil, &IOError{Op: "list bonded devices", Err: err}
	}
	dev, err := s.resolve(devs, name)
	if err != nil {
		return Device{}, nil, err
	}
	s.log.Debug("resolved device", "device", dev.Name, "address", dev.Address)

	conn, err := s.dialer.Dial(ctx, dev, s.opts.ServiceID)
	if err == nil && ctx.Err() != nil {
		conn.Close()
		conn, err = nil, ctx.Err()
	}
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return Device{}, nil, fmt.Errorf("%w after %s", ErrTimeout, s.opts.ConnectTimeout)
		case errors.Is(err, context.Canceled):
			return Device{}, nil, ErrCanceled
		}
		return Device{}, nil, &IOError{Op: "connect", Err: err}
	}
	return dev, conn, nil
}

func (s *Session) resolve(devs []Device, name string) (Device, error) {
	var match *Device
	for i := range devs {
		if devs[i].Name != name {
			continue
		}
		if match == nil {
			match = &devs[i]
			if !s.opts.StrictNames {
				break
			}
			continue
		}
		return Device{}, fmt.Errorf("%w: %q", ErrAmbiguous, name)
	}
	if match == nil {
		return Device{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return *match, nil
}

// Send writes cmd to the device. A write fault drops the connection.
func (s *Session) Send(cmd melody.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked(cmd)
}

// Stop silences the device at the last sent tempo.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tempo := s.tempo
	if tempo <= 0 {
		tempo = s.opts.DefaultTempo
	}
	return s.sendLocked(melody.StopCommand(tempo))
}

func (s *Session) sendLocked(cmd melody.Command) error {
	if s.state != StateConnected {
		return ErrNotConnected
	}
	n, err := s.conn.Write(cmd.Bytes())
	if err != nil {
		s.log.Error("write failed, dropping connection", "device", s.device.Name, "err", err)
		s.dropLocked()
		return &IOError{Op: "write", Err: err}
	}
	s.tempo = cmd.Tempo
	s.log.Debug("command sent", "bytes", n, "tempo", cmd.Tempo, "steps", len(cmd.Steps))
	s.notifyLocked()
	return nil
}

// Disconnect closes the connection, or cancels a connect in flight. It
// returns ErrNotConnected when there is nothing to close; the session is
// left untouched in that case.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateDisconnected:
		return ErrNotConnected
	case StateConnecting:
		s.attempt++
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.device = Device{}
		s.setStateLocked(StateDisconnected)
		s.log.Info("connect aborted")
		return nil
	}
	dev := s.device
	err := s.conn.Close()
	s.conn = nil
	s.device = Device{}
	s.setStateLocked(StateDisconnected)
	if err != nil {
		return &IOError{Op: "close", Err: err}
	}
	s.log.Info("disconnected", "device", dev.Name)
	return nil
}

// LinkLost reports that the platform saw the link to address go down.
func (s *Session) LinkLost(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || !strings.EqualFold(s.device.Address, address) {
		return
	}
	s.log.Warn("link lost", "device", s.device.Name, "address", address)
	s.dropLocked()
}

func (s *Session) dropLocked() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.device = Device{}
	s.setStateLocked(StateDisconnected)
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	tempo := s.tempo
	if tempo <= 0 {
		tempo = s.opts.DefaultTempo
	}
	return Status{State: s.state, Device: s.device, Tempo: tempo}
}

// Subscribe returns a channel of status changes and a func to stop them.
// Slow readers miss intermediate updates rather than block the session.
func (s *Session) Subscribe() (<-chan Status, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Status, 8)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) setStateLocked(st State) {
	s.state = st
	s.notifyLocked()
}

func (s *Session) notifyLocked() {
	st := s.statusLocked()
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
		}
	}
}
