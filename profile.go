package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/mil-ad/glockctl/session"
)

const profileObjectPath = dbus.ObjectPath("/com/github/mil_ad/glockctl/spp")

// sppProfile is the client-side org.bluez.Profile1 object. BlueZ hands it the
// RFCOMM socket of every connection made through ConnectProfile.
type sppProfile struct {
	mu      sync.Mutex
	pending map[dbus.ObjectPath]chan *os.File
}

func newSPPProfile() *sppProfile {
	return &sppProfile{pending: make(map[dbus.ObjectPath]chan *os.File)}
}

func (p *sppProfile) expect(dev dbus.ObjectPath) <-chan *os.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan *os.File, 1)
	p.pending[dev] = ch
	return ch
}

// forget drops the wait for dev and closes a socket that arrived too late.
func (p *sppProfile) forget(dev dbus.ObjectPath, ch <-chan *os.File) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending[dev] == ch {
		delete(p.pending, dev)
	}
	select {
	case f := <-ch:
		f.Close()
	default:
	}
}

func (p *sppProfile) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, props map[string]dbus.Variant) *dbus.Error {
	f := os.NewFile(uintptr(fd), "rfcomm:"+macFromPath(dev))
	// delivery happens under the lock so forget never misses a socket
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.pending[dev]
	if !ok {
		f.Close()
		logger.Warn("profile: unexpected connection", "device", dev)
		return dbus.MakeFailedError(fmt.Errorf("no connection pending for %s", dev))
	}
	delete(p.pending, dev)
	logger.Debug("profile: new connection", "device", dev, "fd", fd)
	ch <- f
	return nil
}

func (p *sppProfile) RequestDisconnection(dev dbus.ObjectPath) *dbus.Error {
	logger.Debug("profile: disconnection requested", "device", dev)
	return nil
}

func (p *sppProfile) Release() *dbus.Error {
	return nil
}

// profileDialer connects through BlueZ's profile manager, which resolves the
// RFCOMM channel over SDP.
type profileDialer struct {
	bz      *bluez
	profile *sppProfile

	mu         sync.Mutex
	registered map[string]bool
}

func newProfileDialer(bz *bluez) (*profileDialer, error) {
	p := newSPPProfile()
	if err := bz.conn.Export(p, profileObjectPath, profileIface); err != nil {
		return nil, fmt.Errorf("export profile: %w", err)
	}
	return &profileDialer{bz: bz, profile: p, registered: make(map[string]bool)}, nil
}

func (d *profileDialer) register(ctx context.Context, serviceID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.registered[serviceID] {
		return nil
	}
	opts := map[string]dbus.Variant{
		"Name":        dbus.MakeVariant("glockctl"),
		"Role":        dbus.MakeVariant("client"),
		"AutoConnect": dbus.MakeVariant(false),
	}
	obj := d.bz.conn.Object(busName, bluezRoot)
	if err := obj.CallWithContext(ctx, profileManagerIface+".RegisterProfile", 0, profileObjectPath, serviceID, opts).Err; err != nil {
		return fmt.Errorf("register profile %s: %w", serviceID, err)
	}
	d.registered[serviceID] = true
	return nil
}

func (d *profileDialer) Dial(ctx context.Context, dev session.Device, serviceID string) (io.WriteCloser, error) {
	if err := d.register(ctx, serviceID); err != nil {
		return nil, err
	}
	path := deviceObjectPath(dev.Address)
	ch := d.profile.expect(path)
	defer d.profile.forget(path, ch)

	if err := d.bz.connectProfile(ctx, dev.Address, serviceID); err != nil {
		return nil, fmt.Errorf("connect profile: %w", err)
	}
	select {
	case f := <-ch:
		return &profileConn{File: f, bz: d.bz, addr: dev.Address, serviceID: serviceID}, nil
	case <-ctx.Done():
		d.bz.disconnectProfile(context.Background(), dev.Address, serviceID)
		return nil, ctx.Err()
	}
}

// profileConn is an RFCOMM socket handed over by BlueZ.
type profileConn struct {
	*os.File
	bz        *bluez
	addr      string
	serviceID string
}

func (c *profileConn) Close() error {
	err := c.File.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if derr := c.bz.disconnectProfile(ctx, c.addr, c.serviceID); derr != nil {
		logger.Debug("profile: disconnect", "device", c.addr, "err", derr)
	}
	return err
}
