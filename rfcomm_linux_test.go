package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBDAddrIsLittleEndian(t *testing.T) {
	addr, err := bdaddr("00:11:22:33:44:55")
	require.NoError(t, err)
	assert.Equal(t, [6]uint8{0x55, 0x44, 0x33, 0x22, 0x11, 0x00}, addr)

	_, err = bdaddr("not-an-address")
	assert.Error(t, err)
}
