package provision

import (
	"context"
	"fmt"
	"strings"

	config "github.com/tupyy/camsetup/configuration"
)

const genericKernelDevel = "kernel-devel"

// installPackages installs the multimedia stack via dnf. Conflicts and
// unavailable packages are tolerated; the module build step catches a
// missing kernel-devel later.
func (p *Provisioner) installPackages(ctx context.Context) Result {
	const name = "install packages"

	if !p.runner.Exists("sudo") {
		return fail(name, "sudo not found", "install sudo and re-run")
	}

	kernel := p.kernelVersion(ctx)
	args := installArgs(kernel, config.GetSystemPackages())

	res := p.runner.Stream(ctx, "", "sudo", args...)
	if !res.Ok() {
		return warn(name, fmt.Sprintf("dnf exited with code %d", res.Code),
			"some packages may be missing; check the output above")
	}

	return ok(name, fmt.Sprintf("%d packages requested", len(config.GetSystemPackages())))
}

// installArgs builds the dnf argument list. The generic kernel-devel entry
// is replaced with one pinned to the running kernel so the module build
// always has matching headers.
func installArgs(kernelVersion string, packages []string) []string {
	args := []string{"dnf", "install", "-y", "--allowerasing", "--skip-broken", "--skip-unavailable"}

	pinned := genericKernelDevel
	if kernelVersion != "" {
		pinned = fmt.Sprintf("%s-%s", genericKernelDevel, kernelVersion)
	}

	seen := false
	for _, pkg := range packages {
		if pkg == genericKernelDevel {
			if !seen {
				args = append(args, pinned)
				seen = true
			}
			continue
		}
		args = append(args, pkg)
	}
	if !seen {
		args = append(args, pinned)
	}

	return args
}

func (p *Provisioner) kernelVersion(ctx context.Context) string {
	res := p.runner.Run(ctx, "uname", "-r")
	if !res.Ok() {
		return ""
	}
	return strings.TrimSpace(res.Output)
}
