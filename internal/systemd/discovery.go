package systemd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// busServiceCandidates maps a D-Bus service name to unit files known to
// provide it on common desktops. Last-resort fallback when neither the bus
// nor the unit files give an answer.
var busServiceCandidates = map[string][]string{
	"org.a11y.Bus": {
		"at-spi-dbus-bus.service",
		"at-spi-bus-launcher.service",
	},
	"org.freedesktop.impl.portal.PermissionStore": {
		"xdg-desktop-portal.service",
		"xdg-desktop-portal-gtk.service",
		"xdg-desktop-portal-kde.service",
		"xdg-desktop-portal-gnome.service",
		"flatpak-portal.service",
	},
}

func defaultUnitDirs() map[Scope][]string {
	home, _ := os.UserHomeDir()
	return map[Scope][]string{
		UserScope: {
			filepath.Join(home, ".config", "systemd", "user"),
			"/usr/lib/systemd/user",
		},
		SystemScope: {
			"/etc/systemd/system",
			"/usr/lib/systemd/system",
		},
	}
}

// DiscoverUnit finds the systemd unit backing a D-Bus service name.
// Strategies, in order:
//  1. the name has an owner on the session bus: resolve the owner's PID and
//     read the owning service unit from its cgroup
//  2. scan unit file directories for a BusName= entry
//  3. well-known candidate units, checked for existence
func (m *Manager) DiscoverUnit(ctx context.Context, busName string) (string, Scope, error) {
	if unit, scope, ok := m.unitFromBusOwner(ctx, busName); ok {
		zap.S().Infow("unit discovered via bus owner", "bus name", busName, "unit", unit, "scope", scope)
		return unit, scope, nil
	}

	for _, scope := range []Scope{UserScope, SystemScope} {
		if unit, ok := scanUnitDirs(m.unitDirs[scope], busName); ok {
			zap.S().Infow("unit discovered via unit files", "bus name", busName, "unit", unit, "scope", scope)
			return unit, scope, nil
		}
	}

	for _, candidate := range busServiceCandidates[busName] {
		for _, scope := range []Scope{UserScope, SystemScope} {
			if m.HasUnitFile(ctx, scope, candidate) {
				zap.S().Infow("unit discovered via candidate list", "bus name", busName, "unit", candidate, "scope", scope)
				return candidate, scope, nil
			}
		}
	}

	return "", "", fmt.Errorf("no systemd unit found for D-Bus service %q", busName)
}

// unitFromBusOwner asks the session bus who owns the name and maps the
// owner's PID back to its service unit through /proc/<pid>/cgroup.
func (m *Manager) unitFromBusOwner(ctx context.Context, busName string) (string, Scope, bool) {
	if m.sessionBus == nil {
		return "", "", false
	}

	bus := m.sessionBus.BusObject()

	var owner string
	if err := bus.CallWithContext(ctx, "org.freedesktop.DBus.GetNameOwner", 0, busName).Store(&owner); err != nil {
		return "", "", false
	}

	var pid uint32
	if err := bus.CallWithContext(ctx, "org.freedesktop.DBus.GetConnectionUnixProcessID", 0, owner).Store(&pid); err != nil {
		return "", "", false
	}

	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/cgroup", pid))
	if err != nil {
		return "", "", false
	}

	return unitFromCgroup(string(data))
}

// unitFromCgroup extracts the owning service unit from /proc/<pid>/cgroup
// content. Units running inside user@<uid>.service belong to the user scope.
func unitFromCgroup(data string) (string, Scope, bool) {
	for _, line := range strings.Split(data, "\n") {
		// format: hierarchy-ID:controller-list:cgroup-path
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			continue
		}
		path := parts[2]

		var unit string
		for _, seg := range strings.Split(path, "/") {
			if strings.HasSuffix(seg, ".service") && !strings.HasPrefix(seg, "user@") {
				unit = seg
			}
		}
		if unit == "" {
			continue
		}

		scope := SystemScope
		if strings.Contains(path, "/user.slice/") || strings.Contains(path, "user@") {
			scope = UserScope
		}
		return unit, scope, true
	}

	return "", "", false
}

// scanUnitDirs searches .service files under dirs for a BusName= entry
// matching busName.
func scanUnitDirs(dirs []string, busName string) (string, bool) {
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".service") {
				continue
			}

			data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				zap.S().Debugw("cannot read unit file", "file", entry.Name(), "error", err)
				continue
			}

			if unitDeclaresBusName(string(data), busName) {
				return entry.Name(), true
			}
		}
	}

	return "", false
}

func unitDeclaresBusName(content, busName string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "BusName=") {
			continue
		}

		value := strings.TrimPrefix(line, "BusName=")
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if value == busName {
			return true
		}
	}
	return false
}
