package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/mil-ad/glockctl/melody"
	"github.com/mil-ad/glockctl/session"
)

func socketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/tmp"
	}
	return filepath.Join(dir, "glockctl.sock")
}

type daemon struct {
	cfg  *Config
	sess *session.Session
	dir  session.Directory
	enc  melody.Encoder
}

func newDaemon(cfg *Config, dir session.Directory, dialer session.Dialer) *daemon {
	sess := session.New(dir, dialer, session.Options{
		ServiceID:      cfg.Transport.ServiceUUID,
		ConnectTimeout: cfg.ConnectTimeout,
		DefaultTempo:   cfg.Tempo,
		StrictNames:    cfg.StrictNames,
		Logger:         logger,
	})
	return &daemon{
		cfg:  cfg,
		sess: sess,
		dir:  dir,
		enc:  melody.Encoder{Strict: cfg.StrictNotes},
	}
}

func (d *daemon) encode(req IPCRequest) (melody.Command, error) {
	tempo := req.Tempo
	if tempo == 0 {
		tempo = d.cfg.Tempo
	}
	return d.enc.Encode(req.Melody, tempo)
}

// do runs one request against the session.
func (d *daemon) do(ctx context.Context, req IPCRequest) (IPCResponse, error) {
	switch req.Command {
	case "status":
		return statusResponse(d.sess.Status()), nil

	case "devices":
		devs, err := d.dir.BondedDevices(ctx)
		if err != nil {
			return IPCResponse{}, fmt.Errorf("list devices: %w", err)
		}
		return IPCResponse{Devices: devs}, nil

	case "encode":
		cmd, err := d.encode(req)
		if err != nil {
			return IPCResponse{}, err
		}
		return IPCResponse{Wire: cmd.String(), Tempo: cmd.Tempo}, nil

	case "connect":
		name, err := resolveDevice(d.cfg, req.Device)
		if err != nil {
			return IPCResponse{}, err
		}
		if err := d.sess.Connect(ctx, name); err != nil {
			return statusResponse(d.sess.Status()), err
		}
		resp := statusResponse(d.sess.Status())
		resp.Notice = "connected to " + name
		return resp, nil

	case "send":
		cmd, err := d.encode(req)
		if err != nil {
			return IPCResponse{}, err
		}
		if err := d.sess.Send(cmd); err != nil {
			return statusResponse(d.sess.Status()), err
		}
		resp := statusResponse(d.sess.Status())
		resp.Wire = cmd.String()
		resp.Notice = "uploaded, now playing"
		return resp, nil

	case "stop":
		if err := d.sess.Stop(); err != nil {
			return statusResponse(d.sess.Status()), err
		}
		st := d.sess.Status()
		resp := statusResponse(st)
		resp.Wire = melody.StopCommand(st.Tempo).String()
		return resp, nil

	case "disconnect":
		err := d.sess.Disconnect()
		resp := statusResponse(d.sess.Status())
		switch {
		case errors.Is(err, session.ErrNotConnected):
			resp.Notice = "already disconnected"
		case err != nil:
			return resp, err
		default:
			resp.Notice = "connection closed"
		}
		return resp, nil

	default:
		return IPCResponse{}, fmt.Errorf("unknown command: %q", req.Command)
	}
}

func (d *daemon) handleRequest(ctx context.Context, req IPCRequest) IPCResponse {
	resp, err := d.do(ctx, req)
	if err != nil {
		logger.Warn("request failed", "command", req.Command, "err", err)
		resp.Error = err.Error()
	}
	return resp
}

func (d *daemon) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var req IPCRequest
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		resp := IPCResponse{Error: "invalid request: " + err.Error()}
		json.NewEncoder(conn).Encode(resp)
		return
	}

	resp := d.handleRequest(ctx, req)
	json.NewEncoder(conn).Encode(resp)
}

func (d *daemon) watchSignals(sigCh chan *dbus.Signal) {
	for sig := range sigCh {
		mac, ok := linkDown(sig)
		if !ok {
			continue
		}
		logger.Debug("device link down", "address", mac)
		d.sess.LinkLost(mac)
	}
}

func (d *daemon) logTransitions(updates <-chan session.Status) {
	last := session.StateDisconnected
	for st := range updates {
		if st.State == last {
			continue
		}
		last = st.State
		logger.Info("session state changed", "state", st.State, "device", st.Device.Name)
	}
}

func newDialer(cfg *Config, bz *bluez) (session.Dialer, error) {
	switch cfg.Transport.Kind {
	case transportRFCOMM:
		return rfcommDialer{channel: cfg.Transport.Channel}, nil
	case transportTTY:
		return ttyDialer{port: cfg.Transport.Port, baud: cfg.Transport.Baud}, nil
	default:
		return newProfileDialer(bz)
	}
}

func runDaemon(cfg *Config) error {
	bz, err := newBluez()
	if err != nil {
		return err
	}
	defer bz.close()

	dialer, err := newDialer(cfg, bz)
	if err != nil {
		return err
	}
	d := newDaemon(cfg, bz, dialer)

	sock := socketPath()
	os.Remove(sock) // remove stale socket
	ln, err := net.Listen("unix", sock)
	if err != nil {
		return fmt.Errorf("listen %s: %w", sock, err)
	}
	os.Chmod(sock, 0700)
	defer os.Remove(sock)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal watcher goroutine.
	dbusSignals := bz.subscribePropertyChanges()
	go d.watchSignals(dbusSignals)

	updates, unsubscribe := d.sess.Subscribe()
	defer unsubscribe()
	go d.logTransitions(updates)

	var srv *http.Server
	if cfg.HTTP.Listen != "" {
		srv = &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           d.httpHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("http api listening", "addr", cfg.HTTP.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http api stopped", "err", err)
			}
		}()
	}

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutting down")
		cancel()
		if srv != nil {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			srv.Shutdown(shutdownCtx)
			done()
		}
		ln.Close()
	}()

	logger.Info("listening", "socket", sock, "transport", cfg.Transport.Kind)
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed by shutdown goroutine.
			break
		}
		go d.handleConn(ctx, conn)
	}

	if err := d.sess.Disconnect(); err != nil && !errors.Is(err, session.ErrNotConnected) {
		logger.Warn("disconnect on shutdown", "err", err)
	}
	return nil
}
