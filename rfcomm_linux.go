package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mil-ad/glockctl/session"
)

// rfcommDialer opens a raw RFCOMM socket on a fixed channel, skipping the
// SDP lookup that the profile manager would do.
type rfcommDialer struct {
	channel uint8
}

// bdaddr converts "00:11:22:33:44:55" to the kernel's little-endian layout.
func bdaddr(addr string) ([6]uint8, error) {
	var out [6]uint8
	hw, err := net.ParseMAC(addr)
	if err != nil || len(hw) != 6 {
		return out, fmt.Errorf("bad bluetooth address %q", addr)
	}
	for i := range out {
		out[i] = hw[5-i]
	}
	return out, nil
}

func (d rfcommDialer) Dial(ctx context.Context, dev session.Device, _ string) (io.WriteCloser, error) {
	addr, err := bdaddr(dev.Address)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("rfcomm socket: %w", err)
	}
	if err := connectRFCOMM(ctx, fd, &unix.SockaddrRFCOMM{Addr: addr, Channel: d.channel}); err != nil {
		unix.Close(fd)
		return nil, err
	}
	logger.Debug("rfcomm: connected", "address", dev.Address, "channel", d.channel)
	return os.NewFile(uintptr(fd), "rfcomm:"+dev.Address), nil
}

// connectRFCOMM runs a non-blocking connect, polling so ctx can abort it.
func connectRFCOMM(ctx context.Context, fd int, sa unix.Sockaddr) error {
	err := unix.Connect(fd, sa)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EINPROGRESS) {
		return fmt.Errorf("rfcomm connect: %w", err)
	}
	const pollEvery = 100 * time.Millisecond
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		n, err := unix.Poll(fds, int(pollEvery.Milliseconds()))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("rfcomm poll: %w", err)
		}
		if n == 0 {
			continue
		}
		soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return fmt.Errorf("rfcomm getsockopt: %w", err)
		}
		if soerr != 0 {
			return fmt.Errorf("rfcomm connect: %w", unix.Errno(soerr))
		}
		return nil
	}
}
