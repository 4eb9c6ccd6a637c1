package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/mil-ad/glockctl/session"
)

const (
	busName             = "org.bluez"
	bluezRoot           = "/org/bluez"
	adapterPath         = "/org/bluez/hci0"
	adapterIface        = "org.bluez.Adapter1"
	deviceIface         = "org.bluez.Device1"
	profileManagerIface = "org.bluez.ProfileManager1"
	profileIface        = "org.bluez.Profile1"
	propsIface          = "org.freedesktop.DBus.Properties"
	propsSignal         = "org.freedesktop.DBus.Properties.PropertiesChanged"
	objectManagerIface  = "org.freedesktop.DBus.ObjectManager"
)

// deviceObjectPath converts a MAC address like "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(addr string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(strings.ToUpper(addr), ":", "_")
	return dbus.ObjectPath(adapterPath + "/dev_" + escaped)
}

// macFromPath extracts a MAC address from a BlueZ device object path.
func macFromPath(path dbus.ObjectPath) string {
	s := string(path)
	prefix := adapterPath + "/dev_"
	if !strings.HasPrefix(s, prefix) {
		return ""
	}
	return strings.ReplaceAll(s[len(prefix):], "_", ":")
}

// bluez wraps a system D-Bus connection for BlueZ operations. It is the
// session's device directory.
type bluez struct {
	conn *dbus.Conn
}

func newBluez() (*bluez, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	// Quick check that BlueZ is on the bus.
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	found := false
	for _, n := range names {
		if n == busName {
			found = true
			break
		}
	}
	if !found {
		conn.Close()
		return nil, fmt.Errorf("org.bluez not found on system bus, is bluetooth.service running?")
	}
	return &bluez{conn: conn}, nil
}

func (b *bluez) close() {
	b.conn.Close()
}

// --- property helpers ---

func (b *bluez) getProp(ctx context.Context, path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	obj := b.conn.Object(busName, path)
	var v dbus.Variant
	err := obj.CallWithContext(ctx, propsIface+".Get", 0, iface, prop).Store(&v)
	return v, err
}

func (b *bluez) setProp(ctx context.Context, path dbus.ObjectPath, iface, prop string, val interface{}) error {
	obj := b.conn.Object(busName, path)
	return obj.CallWithContext(ctx, propsIface+".Set", 0, iface, prop, dbus.MakeVariant(val)).Err
}

func (b *bluez) getBool(ctx context.Context, path dbus.ObjectPath, iface, prop string) (bool, error) {
	v, err := b.getProp(ctx, path, iface, prop)
	if err != nil {
		return false, err
	}
	val, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("property %s is not bool", prop)
	}
	return val, nil
}

// --- adapter ---

func (b *bluez) adapterPowered(ctx context.Context) (bool, error) {
	return b.getBool(ctx, adapterPath, adapterIface, "Powered")
}

func (b *bluez) setAdapterPowered(ctx context.Context, on bool) error {
	return b.setProp(ctx, adapterPath, adapterIface, "Powered", on)
}

// PowerOn powers the adapter if needed. It fails when the radio refuses,
// e.g. because of rfkill.
func (b *bluez) PowerOn(ctx context.Context) error {
	powered, err := b.adapterPowered(ctx)
	if err != nil {
		return fmt.Errorf("read adapter power: %w", err)
	}
	if powered {
		return nil
	}
	logger.Info("powering on adapter", "adapter", adapterPath)
	if err := b.setAdapterPowered(ctx, true); err != nil {
		return fmt.Errorf("power on: %w", err)
	}
	return nil
}

// --- devices ---

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// BondedDevices lists paired devices on the adapter in object path order.
func (b *bluez) BondedDevices(ctx context.Context) ([]session.Device, error) {
	var objs managedObjects
	obj := b.conn.Object(busName, "/")
	if err := obj.CallWithContext(ctx, objectManagerIface+".GetManagedObjects", 0).Store(&objs); err != nil {
		return nil, fmt.Errorf("get managed objects: %w", err)
	}
	return bondedFromObjects(objs), nil
}

func bondedFromObjects(objs managedObjects) []session.Device {
	paths := make([]string, 0, len(objs))
	for p := range objs {
		if strings.HasPrefix(string(p), adapterPath+"/dev_") {
			paths = append(paths, string(p))
		}
	}
	sort.Strings(paths)

	var devs []session.Device
	for _, p := range paths {
		props, ok := objs[dbus.ObjectPath(p)][deviceIface]
		if !ok {
			continue
		}
		if !variantBool(props["Paired"]) && !variantBool(props["Bonded"]) {
			continue
		}
		name, _ := props["Name"].Value().(string)
		addr, _ := props["Address"].Value().(string)
		if addr == "" {
			addr = macFromPath(dbus.ObjectPath(p))
		}
		devs = append(devs, session.Device{Name: name, Address: addr})
	}
	return devs
}

func variantBool(v dbus.Variant) bool {
	b, _ := v.Value().(bool)
	return b
}

func (b *bluez) connectProfile(ctx context.Context, addr, serviceID string) error {
	obj := b.conn.Object(busName, deviceObjectPath(addr))
	return obj.CallWithContext(ctx, deviceIface+".ConnectProfile", 0, serviceID).Err
}

func (b *bluez) disconnectProfile(ctx context.Context, addr, serviceID string) error {
	obj := b.conn.Object(busName, deviceObjectPath(addr))
	return obj.CallWithContext(ctx, deviceIface+".DisconnectProfile", 0, serviceID).Err
}

// --- signal subscription ---

func (b *bluez) subscribePropertyChanges() chan *dbus.Signal {
	b.conn.BusObject().Call(
		"org.freedesktop.DBus.AddMatch", 0,
		"type='signal',interface='"+propsIface+"',member='PropertiesChanged',path_namespace='"+bluezRoot+"'",
	)
	ch := make(chan *dbus.Signal, 16)
	b.conn.Signal(ch)
	return ch
}

// linkDown reports the device address whose Connected property flipped to
// false, if sig is such a change.
func linkDown(sig *dbus.Signal) (string, bool) {
	if sig.Name != propsSignal {
		return "", false
	}
	// Body: [interface_name string, changed_props map[string]Variant, invalidated []string]
	if len(sig.Body) < 2 {
		return "", false
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != deviceIface {
		return "", false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return "", false
	}
	connVar, ok := changed["Connected"]
	if !ok {
		return "", false
	}
	connected, ok := connVar.Value().(bool)
	if !ok || connected {
		return "", false
	}
	mac := macFromPath(sig.Path)
	return mac, mac != ""
}
