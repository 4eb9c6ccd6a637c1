//go:build !linux

package main

import (
	"context"
	"errors"
	"io"

	"github.com/mil-ad/glockctl/session"
)

type rfcommDialer struct {
	channel uint8
}

func (d rfcommDialer) Dial(ctx context.Context, dev session.Device, _ string) (io.WriteCloser, error) {
	return nil, errors.New("rfcomm transport is only available on linux")
}
