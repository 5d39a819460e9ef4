package provision

import (
	"context"
	"strings"

	"github.com/tupyy/camsetup/internal/systemd"
	"go.uber.org/zap"
)

const portalUnit = "xdg-desktop-portal.service"

// portalErrorPatterns are log lines that indicate the portal lost its
// PipeWire connection. A restart usually recovers it.
var portalErrorPatterns = []string{
	"Caught PipeWire error: connection error",
	"Realtime error: Could not get pidns",
}

// ensurePortal makes sure the desktop portal user service runs and is not
// stuck on a broken PipeWire connection.
func (p *Provisioner) ensurePortal(ctx context.Context) Result {
	const name = "desktop portal"

	if err := p.units.Start(ctx, systemd.UserScope, portalUnit); err != nil {
		zap.S().Warnw("cannot start portal unit", "error", err)
	}

	active, detail := p.units.IsActive(ctx, systemd.UserScope, portalUnit)
	if !active {
		return warn(name, portalUnit+" is "+detail,
			"your desktop environment should start the portal; a reboot can help")
	}

	if !portalOutputUnhealthy(p.portalStatus(ctx)) {
		return ok(name, portalUnit+" active")
	}

	zap.S().Info("portal logs show PipeWire connection errors, restarting the unit")

	if err := p.units.Restart(ctx, systemd.UserScope, portalUnit); err != nil {
		return warn(name, "restart failed: "+err.Error(),
			"restart manually: systemctl --user restart "+portalUnit)
	}

	if portalOutputUnhealthy(p.portalStatus(ctx)) {
		return warn(name, "PipeWire errors persist after restart",
			"a full logout/login or reboot is recommended")
	}

	return ok(name, portalUnit+" recovered after restart")
}

// portalStatus captures the unit's recent log excerpt. systemctl status
// includes the last journal lines, which is where the PipeWire errors show.
func (p *Provisioner) portalStatus(ctx context.Context) string {
	res := p.runner.Run(ctx, "systemctl", "--user", "status", portalUnit, "--no-pager")
	return res.Output
}

func portalOutputUnhealthy(out string) bool {
	for _, pattern := range portalErrorPatterns {
		if strings.Contains(out, pattern) {
			return true
		}
	}
	return false
}
