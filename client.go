package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/mil-ad/glockctl/session"
)

// ipcHeadroom covers the daemon's work around a connect handshake.
const ipcHeadroom = 5 * time.Second

// ipcTimeout bounds a request: a connect may wait for the full handshake
// timeout of c before the daemon answers.
func ipcTimeout(c *Config) time.Duration {
	timeout := session.DefaultConnectTimeout
	if c != nil && c.ConnectTimeout > 0 {
		timeout = c.ConnectTimeout
	}
	return timeout + ipcHeadroom
}

func ipcCall(req IPCRequest) (IPCResponse, error) {
	conn, err := net.Dial("unix", socketPath())
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to daemon: %w (is `glockctl daemon` running?)", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(ipcTimeout(cfg)))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return IPCResponse{}, fmt.Errorf("send request: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return IPCResponse{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// runIPC sends req to the daemon and prints the response as JSON.
func runIPC(req IPCRequest) error {
	resp, err := ipcCall(req)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%s", resp.Error)
	}
	return json.NewEncoder(os.Stdout).Encode(resp)
}
