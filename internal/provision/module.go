package provision

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	config "github.com/tupyy/camsetup/configuration"
	"go.uber.org/zap"
)

const moduleName = "v4l2loopback"

// ensureModule verifies the v4l2loopback module is available for the
// running kernel, building it from the upstream repo when it is not.
func (p *Provisioner) ensureModule(ctx context.Context) Result {
	const name = "v4l2loopback module"

	if res := p.runner.Run(ctx, "modinfo", moduleName); res.Ok() {
		return ok(name, "module available for the running kernel")
	}

	zap.S().Infow("module not available, building from source", "module", moduleName, "repo", config.GetModuleRepo())

	if err := p.buildModule(ctx); err != nil {
		return fail(name, err.Error(),
			"ensure kernel-devel matches the running kernel: sudo dnf install kernel-devel-$(uname -r)")
	}

	return ok(name, "module built and installed from source")
}

func (p *Provisioner) buildModule(ctx context.Context) error {
	buildDir := config.GetModuleBuildDir()

	// stale build trees poison make; start clean
	if _, err := os.Stat(buildDir); err == nil {
		if res := p.runner.Run(ctx, "sudo", "rm", "-rf", buildDir); !res.Ok() {
			zap.S().Warnw("cannot clean previous build dir", "dir", buildDir, "output", res.Output)
		}
	}

	if res := p.runner.Stream(ctx, "", "git", "clone", config.GetModuleRepo(), buildDir); !res.Ok() {
		return fmt.Errorf("clone of %s failed with code %d", config.GetModuleRepo(), res.Code)
	}

	if res := p.runner.Stream(ctx, buildDir, "make"); !res.Ok() {
		// try the install anyway; a partial build is sometimes usable
		zap.S().Warnw("make failed, attempting install regardless", "code", res.Code)
	}

	if res := p.runner.Stream(ctx, buildDir, "sudo", "make", "install", "INSTALL_MOD_STRIP=1"); !res.Ok() {
		return fmt.Errorf("module install failed with code %d", res.Code)
	}

	if res := p.runner.Run(ctx, "sudo", "depmod", "-a"); !res.Ok() {
		return fmt.Errorf("depmod failed: %s", strings.TrimSpace(res.Output))
	}

	return nil
}

// loadVirtualCamera reloads v4l2loopback with the configured device number,
// waits for the device node and fixes its ownership and mode.
func (p *Provisioner) loadVirtualCamera(ctx context.Context) Result {
	const name = "virtual camera"

	device := config.GetVirtualDevicePath()

	// unload first so the parameters always apply
	p.runner.Run(ctx, "sudo", "modprobe", "-r", moduleName)

	args := modprobeArgs(config.GetVirtualVideoNr(), config.GetCardLabel())
	if res := p.runner.Run(ctx, "sudo", args...); !res.Ok() {
		detail := fmt.Sprintf("modprobe failed: %s", strings.TrimSpace(res.Output))
		if dmesg := p.runner.Run(ctx, "dmesg"); dmesg.Ok() {
			if lines := grepLines(dmesg.Output, moduleName); len(lines) > 0 {
				detail = fmt.Sprintf("%s; kernel log: %s", detail, strings.Join(lines, " | "))
			}
		}
		return fail(name, detail,
			"ensure kernel-devel matches your running kernel: sudo dnf install kernel-devel-$(uname -r)")
	}

	if !waitForDevice(ctx, device, config.GetDeviceWaitTimeout()) {
		return fail(name, fmt.Sprintf("%s did not appear within %s", device, config.GetDeviceWaitTimeout()),
			fmt.Sprintf("load manually: sudo modprobe %s devices=1 video_nr=%d card_label=%s exclusive_caps=1",
				moduleName, config.GetVirtualVideoNr(), config.GetCardLabel()))
	}

	if u, err := user.Current(); err == nil {
		p.runner.Run(ctx, "sudo", "chown", fmt.Sprintf("%s:%s", u.Username, videoGroup), device)
	}
	p.runner.Run(ctx, "sudo", "chmod", "0660", device)

	return ok(name, device+" present")
}

func modprobeArgs(videoNr int, label string) []string {
	return []string{
		"modprobe", moduleName,
		"devices=1",
		fmt.Sprintf("video_nr=%d", videoNr),
		fmt.Sprintf("card_label=%s", label),
		"exclusive_caps=1",
	}
}

func deviceExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// waitForDevice polls for the device node until it appears or the timeout
// elapses.
func waitForDevice(ctx context.Context, path string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		if deviceExists(path) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func grepLines(out, substr string) []string {
	var matches []string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, substr) {
			matches = append(matches, strings.TrimSpace(line))
		}
	}
	return matches
}
