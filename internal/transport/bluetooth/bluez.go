package bluetooth

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/nerrad567/gray-logic-hub/internal/transport"
)

const (
	bluezService        = "org.bluez"
	bluezRoot           = dbus.ObjectPath("/org/bluez")
	profileManagerIface = "org.bluez.ProfileManager1"
	profileIface        = "org.bluez.Profile1"
	profilePath         = dbus.ObjectPath("/io/glhub/rfcomm")
)

// BlueZOptions configures the BlueZ RFCOMM profile.
type BlueZOptions struct {
	ServiceName string
	// Channel is the RFCOMM channel to request; 0 lets BlueZ choose.
	Channel uint16
	Logger  transport.Logger
}

type incoming struct {
	conn   io.ReadWriteCloser
	remote string
}

// BlueZAcceptor registers an org.bluez.Profile1 server profile on the
// system bus. BlueZ hands each connected peer to NewConnection as a
// socket file descriptor, which Accept returns as a stream.
type BlueZAcceptor struct {
	conn   *dbus.Conn
	logger transport.Logger

	conns     chan incoming
	closed    chan struct{}
	closeOnce sync.Once
}

// NewBlueZAcceptor connects to the system bus, exports the profile object
// and registers it with BlueZ under ServiceUUID.
func NewBlueZAcceptor(ctx context.Context, opts BlueZOptions) (*BlueZAcceptor, error) {
	logger := opts.Logger
	if logger == nil {
		logger = transport.NoopLogger{}
	}

	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBlueZUnavailable, err)
	}

	a := &BlueZAcceptor{
		conn:   conn,
		logger: logger,
		conns:  make(chan incoming),
		closed: make(chan struct{}),
	}

	if err := conn.Export(a, profilePath, profileIface); err != nil {
		conn.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("exporting rfcomm profile: %w", err)
	}

	name := opts.ServiceName
	if name == "" {
		name = "glhub"
	}
	profileOpts := map[string]dbus.Variant{
		"Name":                  dbus.MakeVariant(name),
		"Role":                  dbus.MakeVariant("server"),
		"RequireAuthentication": dbus.MakeVariant(false),
		"RequireAuthorization":  dbus.MakeVariant(false),
		"AutoConnect":           dbus.MakeVariant(true),
	}
	if opts.Channel != 0 {
		profileOpts["Channel"] = dbus.MakeVariant(opts.Channel)
	}

	manager := conn.Object(bluezService, bluezRoot)
	call := manager.CallWithContext(ctx, profileManagerIface+".RegisterProfile", 0,
		profilePath, ServiceUUID, profileOpts)
	if call.Err != nil {
		conn.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("%w: registering profile: %w", ErrBlueZUnavailable, call.Err)
	}

	return a, nil
}

// Accept implements Acceptor.
func (a *BlueZAcceptor) Accept() (io.ReadWriteCloser, string, error) {
	select {
	case in := <-a.conns:
		return in.conn, in.remote, nil
	case <-a.closed:
		return nil, "", ErrAcceptorClosed
	}
}

// Close unregisters the profile and releases the bus connection.
func (a *BlueZAcceptor) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.closed)
		manager := a.conn.Object(bluezService, bluezRoot)
		if call := manager.Call(profileManagerIface+".UnregisterProfile", 0, profilePath); call.Err != nil {
			a.logger.Debug("unregistering rfcomm profile", "error", call.Err)
		}
		err = a.conn.Close()
	})
	return err
}

// NewConnection is called by BlueZ (org.bluez.Profile1) for each peer.
func (a *BlueZAcceptor) NewConnection(device dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	f := os.NewFile(uintptr(fd), string(device))
	if f == nil {
		return dbus.MakeFailedError(fmt.Errorf("invalid descriptor for %s", device))
	}
	select {
	case a.conns <- incoming{conn: f, remote: string(device)}:
		return nil
	case <-a.closed:
		f.Close() //nolint:errcheck // Shutting down
		return dbus.MakeFailedError(ErrAcceptorClosed)
	}
}

// RequestDisconnection is called by BlueZ (org.bluez.Profile1) when a
// peer is being disconnected. The stream's reader sees EOF on its own.
func (a *BlueZAcceptor) RequestDisconnection(device dbus.ObjectPath) *dbus.Error {
	a.logger.Debug("rfcomm disconnection requested", "device", string(device))
	return nil
}

// Release is called by BlueZ (org.bluez.Profile1) when it drops the profile.
func (a *BlueZAcceptor) Release() *dbus.Error {
	a.logger.Info("rfcomm profile released by bluez")
	return nil
}
