package systemd

import (
	"context"
	"fmt"

	sd "github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

// Scope selects between the user session manager and the system manager.
type Scope string

const (
	UserScope   Scope = "user"
	SystemScope Scope = "system"
)

// unitConn is the subset of the systemd D-Bus API the manager needs.
// *sd.Conn satisfies it; tests provide fakes.
type unitConn interface {
	GetUnitPropertiesContext(ctx context.Context, unit string) (map[string]interface{}, error)
	ListUnitFilesByPatternsContext(ctx context.Context, states []string, patterns []string) ([]sd.UnitFile, error)
	StartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	RestartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	EnableUnitFilesContext(ctx context.Context, files []string, runtime bool, force bool) (bool, []sd.EnableUnitFileChange, error)
	UnmaskUnitFilesContext(ctx context.Context, files []string, runtime bool) ([]sd.UnmaskUnitFileChange, error)
	ReloadContext(ctx context.Context) error
}

// Manager talks to the user and system instances of systemd. Connections
// are established lazily tolerant: a missing scope (e.g. no user session
// when running from a tty) only disables operations on that scope.
type Manager struct {
	conns      map[Scope]unitConn
	sessionBus *godbus.Conn
	closers    []func()

	// unit file search paths per scope, overridable in tests
	unitDirs map[Scope][]string
}

func NewManager(ctx context.Context) *Manager {
	m := &Manager{
		conns:    make(map[Scope]unitConn),
		unitDirs: defaultUnitDirs(),
	}

	if conn, err := sd.NewUserConnectionContext(ctx); err != nil {
		zap.S().Warnw("cannot connect to user systemd instance", "error", err)
	} else {
		m.conns[UserScope] = conn
		m.closers = append(m.closers, conn.Close)
	}

	if conn, err := sd.NewSystemConnectionContext(ctx); err != nil {
		zap.S().Warnw("cannot connect to system systemd instance", "error", err)
	} else {
		m.conns[SystemScope] = conn
		m.closers = append(m.closers, conn.Close)
	}

	if bus, err := godbus.SessionBus(); err != nil {
		zap.S().Warnw("cannot connect to session bus", "error", err)
	} else {
		m.sessionBus = bus
		m.closers = append(m.closers, func() { bus.Close() })
	}

	return m
}

// Close releases the D-Bus connections.
func (m *Manager) Close() {
	for _, c := range m.closers {
		c()
	}
}

func (m *Manager) conn(scope Scope) (unitConn, error) {
	conn, ok := m.conns[scope]
	if !ok {
		return nil, fmt.Errorf("no connection to %s systemd instance", scope)
	}
	return conn, nil
}

// IsMasked reports whether the unit's load state is masked.
func (m *Manager) IsMasked(ctx context.Context, scope Scope, unit string) bool {
	conn, err := m.conn(scope)
	if err != nil {
		return false
	}

	props, err := conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		return false
	}

	state, _ := props["LoadState"].(string)
	return state == "masked"
}

// IsActive returns the unit's active state together with a short detail
// string for the report.
func (m *Manager) IsActive(ctx context.Context, scope Scope, unit string) (bool, string) {
	conn, err := m.conn(scope)
	if err != nil {
		return false, err.Error()
	}

	props, err := conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		return false, err.Error()
	}

	active, _ := props["ActiveState"].(string)
	sub, _ := props["SubState"].(string)
	return active == "active", fmt.Sprintf("%s (%s)", active, sub)
}

func (m *Manager) Unmask(ctx context.Context, scope Scope, unit string) error {
	conn, err := m.conn(scope)
	if err != nil {
		return err
	}

	changes, err := conn.UnmaskUnitFilesContext(ctx, []string{unit}, false)
	if err != nil {
		return err
	}

	for _, c := range changes {
		zap.S().Infow("unmasked unit file", "type", c.Type, "file", c.Filename)
	}

	return nil
}

func (m *Manager) Reload(ctx context.Context, scope Scope) error {
	conn, err := m.conn(scope)
	if err != nil {
		return err
	}
	return conn.ReloadContext(ctx)
}

func (m *Manager) Start(ctx context.Context, scope Scope, unit string) error {
	conn, err := m.conn(scope)
	if err != nil {
		return err
	}

	done := make(chan string, 1)
	if _, err := conn.StartUnitContext(ctx, unit, "replace", done); err != nil {
		return err
	}

	select {
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("start of %s finished with %q", unit, result)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (m *Manager) Restart(ctx context.Context, scope Scope, unit string) error {
	conn, err := m.conn(scope)
	if err != nil {
		return err
	}

	done := make(chan string, 1)
	if _, err := conn.RestartUnitContext(ctx, unit, "replace", done); err != nil {
		return err
	}

	select {
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("restart of %s finished with %q", unit, result)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

// Enable enables the unit file. Static units cannot be enabled; the caller
// treats the error as informational.
func (m *Manager) Enable(ctx context.Context, scope Scope, unit string) error {
	conn, err := m.conn(scope)
	if err != nil {
		return err
	}

	_, _, err = conn.EnableUnitFilesContext(ctx, []string{unit}, false, true)
	return err
}

// HasUnitFile reports whether a unit file with the given name exists in
// the scope.
func (m *Manager) HasUnitFile(ctx context.Context, scope Scope, unit string) bool {
	conn, err := m.conn(scope)
	if err != nil {
		return false
	}

	files, err := conn.ListUnitFilesByPatternsContext(ctx, nil, []string{unit})
	if err != nil {
		return false
	}

	return len(files) > 0
}
