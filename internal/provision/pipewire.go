package provision

import (
	"context"
	"fmt"
	"strings"
	"time"

	config "github.com/tupyy/camsetup/configuration"
	"github.com/tupyy/camsetup/internal/systemd"
	"go.uber.org/zap"
)

var pipewireUnits = []string{
	"pipewire.service",
	"pipewire-pulse.service",
	"wireplumber.service",
}

const conflictingSessionManager = "pipewire-media-session"

// ensurePipewire enables and starts the PipeWire trio in the user session.
func (p *Provisioner) ensurePipewire(ctx context.Context) Result {
	const name = "pipewire services"

	var inactive []string
	for _, unit := range pipewireUnits {
		if err := p.units.Enable(ctx, systemd.UserScope, unit); err != nil {
			// socket-activated/static units refuse enabling; harmless
			zap.S().Debugw("cannot enable unit", "unit", unit, "error", err)
		}
		if err := p.units.Start(ctx, systemd.UserScope, unit); err != nil {
			zap.S().Warnw("cannot start unit", "unit", unit, "error", err)
		}

		if active, detail := p.units.IsActive(ctx, systemd.UserScope, unit); !active {
			inactive = append(inactive, fmt.Sprintf("%s: %s", unit, detail))
		}
	}

	if len(inactive) > 0 {
		return warn(name, strings.Join(inactive, "; "),
			"restart your user session or reboot for PipeWire services to function")
	}

	return ok(name, "pipewire, pipewire-pulse and wireplumber active")
}

// restartPipewire restarts the trio so freshly loaded devices and unmasked
// units are picked up.
func (p *Provisioner) restartPipewire(ctx context.Context) Result {
	const name = "pipewire restart"

	var failed []string
	for _, unit := range pipewireUnits {
		if err := p.units.Restart(ctx, systemd.UserScope, unit); err != nil {
			failed = append(failed, unit)
			zap.S().Warnw("cannot restart unit", "unit", unit, "error", err)
		}
	}

	if len(failed) > 0 {
		return warn(name, "restart failed for "+strings.Join(failed, ", "),
			"restart manually: systemctl --user restart "+strings.Join(pipewireUnits, " "))
	}

	return ok(name, "services restarted")
}

// waitForVideoNodes polls PipeWire for video capture nodes until they show
// up or the timeout elapses. Returns whether nodes were seen plus the
// step result.
func (p *Provisioner) waitForVideoNodes(ctx context.Context) (bool, Result) {
	const name = "pipewire video nodes"

	lister := p.nodeLister()
	if lister == nil {
		return false, skip(name, "neither pw-cli nor pw-dump found")
	}

	deadline := time.Now().Add(config.GetNodeWaitTimeout())
	for {
		out := lister(ctx)
		if hasVideoNodes(out) {
			return true, ok(name, "PipeWire reports video/V4L2 entities")
		}

		if time.Now().After(deadline) {
			return false, warn(name, "no video nodes reported within "+config.GetNodeWaitTimeout().String(),
				"check wireplumber logs: journalctl --user -u wireplumber.service")
		}

		select {
		case <-ctx.Done():
			return false, warn(name, "cancelled while waiting for video nodes", "")
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (p *Provisioner) nodeLister() func(ctx context.Context) string {
	switch {
	case p.runner.Exists("pw-cli"):
		return func(ctx context.Context) string {
			return p.runner.Run(ctx, "pw-cli", "list-objects").Output
		}
	case p.runner.Exists("pw-dump"):
		return func(ctx context.Context) string {
			return p.runner.Run(ctx, "pw-dump").Output
		}
	}
	return nil
}

// hasVideoNodes reports whether a pw-cli/pw-dump listing contains video
// capture entities.
func hasVideoNodes(out string) bool {
	return strings.Contains(out, "/dev/video") ||
		strings.Contains(strings.ToLower(out), "v4l2") ||
		strings.Contains(out, "Video/Device")
}

// checkSessionManagerConflict warns when pipewire-media-session is
// installed next to wireplumber; the two fight over devices.
func (p *Provisioner) checkSessionManagerConflict(ctx context.Context) Result {
	const name = "session manager conflict"

	res := p.runner.Run(ctx, "dnf", "list", "installed", conflictingSessionManager)
	if !mediaSessionInstalled(res.Output, res.Code) {
		return ok(name, conflictingSessionManager+" not installed")
	}

	return warn(name, conflictingSessionManager+" installed alongside wireplumber",
		"remove it and reboot: sudo dnf remove "+conflictingSessionManager)
}

// mediaSessionInstalled interprets dnf list output; dnf can exit 0 with an
// "Error: No matching Packages" body, so the text is authoritative.
func mediaSessionInstalled(out string, code int) bool {
	if code != 0 {
		return false
	}
	lower := strings.ToLower(out)
	return strings.Contains(lower, "installed") && strings.Contains(lower, conflictingSessionManager)
}

// journal scan patterns per unit; wireplumber gets extra signals for masked
// units and leaked proxies.
var journalIssuePatterns = map[string][]string{
	"pipewire.service":    {"error", "fail"},
	"wireplumber.service": {"error", "fail", "masked", "leaked proxy"},
}

// scanJournals inspects the last day of user-session logs for the PipeWire
// units and surfaces suspicious lines.
func (p *Provisioner) scanJournals(ctx context.Context) []Result {
	var results []Result

	for _, unit := range []string{"pipewire.service", "wireplumber.service"} {
		name := "journal " + unit

		res := p.runner.Run(ctx, "journalctl", "--user", "-u", unit, "--since", "24 hours ago", "--no-pager")
		if !res.Ok() {
			results = append(results, skip(name, fmt.Sprintf("journalctl exited with code %d", res.Code)))
			continue
		}

		if issues := journalIssues(res.Output, journalIssuePatterns[unit]); len(issues) > 0 {
			detail := fmt.Sprintf("%d suspicious lines in the last 24h", len(issues))
			results = append(results, warn(name, detail,
				"inspect: journalctl --user -u "+unit+" --since '24 hours ago'"))
			for _, line := range issues {
				zap.S().Warnf("  %s: %s", unit, line)
			}
			continue
		}

		results = append(results, ok(name, "no errors in the last 24h"))
	}

	return results
}

func journalIssues(out string, patterns []string) []string {
	var issues []string
	for _, line := range strings.Split(out, "\n") {
		lower := strings.ToLower(line)
		for _, pattern := range patterns {
			if strings.Contains(lower, pattern) {
				issues = append(issues, strings.TrimSpace(line))
				break
			}
		}
	}
	return issues
}
