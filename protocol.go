package main

import "github.com/mil-ad/glockctl/session"

// IPCRequest is sent from the CLI client to the daemon.
type IPCRequest struct {
	Command string `json:"command"`          // "status" | "devices" | "connect" | "send" | "stop" | "disconnect" | "encode"
	Device  string `json:"device,omitempty"` // bonded device name, optional for connect
	Melody  string `json:"melody,omitempty"` // e.g. "C+E,R,G"
	Tempo   int    `json:"tempo,omitempty"`  // beats per minute, config default when zero
}

// IPCResponse is sent from the daemon back to the CLI client.
type IPCResponse struct {
	State   string           `json:"state,omitempty"` // "disconnected", "connecting", "connected"
	Device  string           `json:"device,omitempty"`
	Address string           `json:"address,omitempty"`
	Tempo   int              `json:"tempo,omitempty"`
	Wire    string           `json:"command,omitempty"` // command written to the device
	Devices []session.Device `json:"devices,omitempty"`
	Notice  string           `json:"notice,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func statusResponse(st session.Status) IPCResponse {
	return IPCResponse{
		State:   string(st.State),
		Device:  st.Device.Name,
		Address: st.Device.Address,
		Tempo:   st.Tempo,
	}
}
