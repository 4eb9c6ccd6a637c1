package main

import (
	"context"
	"fmt"
	"io"

	"go.bug.st/serial"

	"github.com/mil-ad/glockctl/session"
)

// ttyDialer writes to an RFCOMM tty bound ahead of time with
// `rfcomm bind`, e.g. /dev/rfcomm0.
type ttyDialer struct {
	port string
	baud int
}

func (d ttyDialer) Dial(ctx context.Context, dev session.Device, _ string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.port, err)
	}
	logger.Info("serial: port opened", "port", d.port, "baud", d.baud, "device", dev.Name)
	return &serialPort{port: p, name: d.port}, nil
}

// serialPort wraps a go.bug.st/serial port with logging.
type serialPort struct {
	port serial.Port
	name string
}

func (s *serialPort) Write(data []byte) (int, error) {
	n, err := s.port.Write(data)
	if err != nil {
		logger.Error("serial: write error", "port", s.name, "err", err)
		return n, err
	}
	logger.Debug("serial: command sent", "port", s.name, "bytes", n)
	return n, nil
}

func (s *serialPort) Close() error {
	logger.Info("serial: closing port", "port", s.name)
	return s.port.Close()
}
