package provision

import (
	"context"
	"fmt"

	"github.com/tupyy/camsetup/internal/systemd"
	"go.uber.org/zap"
)

// ensureBusService discovers the systemd unit backing a D-Bus service name
// and makes sure it is unmasked, started and enabled.
func (p *Provisioner) ensureBusService(ctx context.Context, busName string) Result {
	name := fmt.Sprintf("D-Bus service %s", busName)

	unit, scope, err := p.units.DiscoverUnit(ctx, busName)
	if err != nil {
		return warn(name, err.Error(),
			"the service may be provided by your desktop environment; a relogin can help")
	}

	if p.units.IsMasked(ctx, scope, unit) {
		zap.S().Infow("unmasking unit", "unit", unit, "scope", scope)

		if err := p.units.Unmask(ctx, scope, unit); err != nil {
			// user scope unmask can fail when the mask lives system-wide;
			// only the unmask falls back, the unit stays managed in the
			// discovered scope
			serr := err
			if scope == systemd.UserScope {
				serr = p.units.Unmask(ctx, systemd.SystemScope, unit)
			}
			if serr != nil {
				return fail(name, fmt.Sprintf("cannot unmask %s: %v", unit, err),
					fmt.Sprintf("unmask manually: sudo systemctl unmask %s", unit))
			}
		}

		if err := p.units.Reload(ctx, scope); err != nil {
			zap.S().Warnw("daemon-reload failed", "scope", scope, "error", err)
		}
	}

	if err := p.units.Start(ctx, scope, unit); err != nil {
		zap.S().Warnw("cannot start unit", "unit", unit, "error", err)
	}
	if err := p.units.Enable(ctx, scope, unit); err != nil {
		// static units cannot be enabled; informational only
		zap.S().Debugw("cannot enable unit", "unit", unit, "error", err)
	}

	active, detail := p.units.IsActive(ctx, scope, unit)
	if !active {
		return warn(name, fmt.Sprintf("%s is %s after start", unit, detail),
			"a full logout/login or reboot may be necessary to activate this service")
	}

	if p.units.IsMasked(ctx, scope, unit) {
		return warn(name, fmt.Sprintf("%s still reported masked after unmasking", unit),
			"a reboot is highly recommended")
	}

	return ok(name, fmt.Sprintf("%s active in %s scope", unit, scope))
}
