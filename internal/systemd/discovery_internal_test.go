package systemd

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"
)

func TestUnitFromCgroup(t *testing.T) {
	tests := []struct {
		name  string
		input string
		unit  string
		scope Scope
		found bool
	}{
		{
			name:  "user session service",
			input: "0::/user.slice/user-1000.slice/user@1000.service/session.slice/xdg-desktop-portal.service\n",
			unit:  "xdg-desktop-portal.service",
			scope: UserScope,
			found: true,
		},
		{
			name:  "system service",
			input: "0::/system.slice/accounts-daemon.service\n",
			unit:  "accounts-daemon.service",
			scope: SystemScope,
			found: true,
		},
		{
			name:  "cgroup v1 multiple hierarchies",
			input: "12:cpuset:/\n3:cpu,cpuacct:/user.slice/user-1000.slice/user@1000.service/app.slice/at-spi-dbus-bus.service\n",
			unit:  "at-spi-dbus-bus.service",
			scope: UserScope,
			found: true,
		},
		{
			name:  "no service in path",
			input: "0::/user.slice/user-1000.slice/session-2.scope\n",
			found: false,
		},
		{
			name:  "only the user manager itself",
			input: "0::/user.slice/user-1000.slice/user@1000.service\n",
			found: false,
		},
		{
			name:  "empty",
			input: "",
			found: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g := NewWithT(t)

			unit, scope, found := unitFromCgroup(test.input)
			g.Expect(found).To(Equal(test.found))
			if !test.found {
				return
			}
			g.Expect(unit).To(Equal(test.unit))
			g.Expect(scope).To(Equal(test.scope))
		})
	}
}

func TestUnitDeclaresBusName(t *testing.T) {
	g := NewWithT(t)

	unit := `[Unit]
Description=Accessibility services bus

[Service]
Type=dbus
BusName=org.a11y.Bus
ExecStart=/usr/libexec/at-spi-bus-launcher --launch-immediately
`

	g.Expect(unitDeclaresBusName(unit, "org.a11y.Bus")).To(BeTrue())
	g.Expect(unitDeclaresBusName(unit, "org.a11y.Bus.Other")).To(BeFalse())

	quoted := "BusName=\"org.freedesktop.impl.portal.PermissionStore\"\n"
	g.Expect(unitDeclaresBusName(quoted, "org.freedesktop.impl.portal.PermissionStore")).To(BeTrue())

	g.Expect(unitDeclaresBusName("", "org.a11y.Bus")).To(BeFalse())
}

func TestScanUnitDirs(t *testing.T) {
	g := NewWithT(t)

	dir := t.TempDir()

	writeUnit := func(name, busName string) {
		content := "[Service]\nType=dbus\n"
		if busName != "" {
			content += "BusName=" + busName + "\n"
		}
		g.Expect(os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)).To(Succeed())
	}

	writeUnit("plain.service", "")
	writeUnit("at-spi-dbus-bus.service", "org.a11y.Bus")
	g.Expect(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("BusName=org.a11y.Bus"), 0o644)).To(Succeed())

	unit, found := scanUnitDirs([]string{dir}, "org.a11y.Bus")
	g.Expect(found).To(BeTrue())
	g.Expect(unit).To(Equal("at-spi-dbus-bus.service"))

	_, found = scanUnitDirs([]string{dir}, "org.example.Missing")
	g.Expect(found).To(BeFalse())

	// missing directories are skipped silently
	_, found = scanUnitDirs([]string{filepath.Join(dir, "nope")}, "org.a11y.Bus")
	g.Expect(found).To(BeFalse())
}
