package main

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"

	"github.com/mil-ad/glockctl/session"
)

func TestDeviceObjectPath(t *testing.T) {
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci0/dev_00_11_22_AA_BB_CC"), deviceObjectPath("00:11:22:aa:bb:cc"))
	assert.Equal(t, "00:11:22:AA:BB:CC", macFromPath("/org/bluez/hci0/dev_00_11_22_AA_BB_CC"))
	assert.Equal(t, "", macFromPath("/org/bluez/hci1/dev_00_11_22_AA_BB_CC"))
}

func deviceProps(name, addr string, paired bool) map[string]map[string]dbus.Variant {
	return map[string]map[string]dbus.Variant{
		deviceIface: {
			"Name":    dbus.MakeVariant(name),
			"Address": dbus.MakeVariant(addr),
			"Paired":  dbus.MakeVariant(paired),
		},
	}
}

func TestBondedFromObjects(t *testing.T) {
	objs := managedObjects{
		"/org/bluez/hci0": {
			adapterIface: {"Powered": dbus.MakeVariant(true)},
		},
		"/org/bluez/hci0/dev_BB_BB_BB_BB_BB_BB": deviceProps("Glockenspiel", "BB:BB:BB:BB:BB:BB", true),
		"/org/bluez/hci0/dev_AA_AA_AA_AA_AA_AA": deviceProps("Glockenspiel", "AA:AA:AA:AA:AA:AA", true),
		"/org/bluez/hci0/dev_CC_CC_CC_CC_CC_CC": deviceProps("Speaker", "CC:CC:CC:CC:CC:CC", false),
		"/org/bluez/hci0/dev_DD_DD_DD_DD_DD_DD": {
			deviceIface: {
				"Name":   dbus.MakeVariant("HC-05"),
				"Bonded": dbus.MakeVariant(true),
			},
		},
	}

	assert.Equal(t, []session.Device{
		{Name: "Glockenspiel", Address: "AA:AA:AA:AA:AA:AA"},
		{Name: "Glockenspiel", Address: "BB:BB:BB:BB:BB:BB"},
		{Name: "HC-05", Address: "DD:DD:DD:DD:DD:DD"},
	}, bondedFromObjects(objs))
}

func TestLinkDown(t *testing.T) {
	sig := &dbus.Signal{
		Name: propsSignal,
		Path: "/org/bluez/hci0/dev_00_11_22_33_44_55",
		Body: []interface{}{
			deviceIface,
			map[string]dbus.Variant{"Connected": dbus.MakeVariant(false)},
			[]string{},
		},
	}
	mac, ok := linkDown(sig)
	assert.True(t, ok)
	assert.Equal(t, "00:11:22:33:44:55", mac)

	sig.Body[1] = map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)}
	_, ok = linkDown(sig)
	assert.False(t, ok)

	sig.Body[0] = adapterIface
	sig.Body[1] = map[string]dbus.Variant{"Connected": dbus.MakeVariant(false)}
	_, ok = linkDown(sig)
	assert.False(t, ok)
}
