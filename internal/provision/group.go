package provision

import (
	"context"
	"fmt"
	"os/user"
	"strings"
)

const videoGroup = "video"

// ensureVideoGroup checks membership in the video group and adds the user
// when absent. Returns the result and whether a relogin is required for the
// new membership to take effect.
func (p *Provisioner) ensureVideoGroup(ctx context.Context) (Result, bool) {
	const name = "video group membership"

	current, groups, err := p.userGroups(ctx)
	if err != nil {
		return warn(name, fmt.Sprintf("cannot determine group membership: %v", err),
			"check membership manually with: groups"), false
	}

	if isInGroups(groups, videoGroup) {
		return ok(name, fmt.Sprintf("user %q already in %q group", current, videoGroup)), false
	}

	res := p.runner.Run(ctx, "sudo", "usermod", "-aG", videoGroup, current)
	if !res.Ok() {
		return fail(name, fmt.Sprintf("usermod failed: %s", strings.TrimSpace(res.Output)),
			fmt.Sprintf("add manually: sudo usermod -aG %s %s", videoGroup, current)), false
	}

	return warn(name, fmt.Sprintf("user %q added to %q group", current, videoGroup),
		"log out and back in (or reboot) for the membership to take effect"), true
}

// checkVideoGroup is the read-only variant used by diagnose.
func (p *Provisioner) checkVideoGroup() (Result, bool) {
	const name = "video group membership"

	current, groups, err := lookupGroups()
	if err != nil {
		return warn(name, fmt.Sprintf("cannot determine group membership: %v", err), ""), false
	}

	if isInGroups(groups, videoGroup) {
		return ok(name, fmt.Sprintf("user %q in %q group", current, videoGroup)), false
	}

	return warn(name, fmt.Sprintf("user %q not in %q group", current, videoGroup),
		fmt.Sprintf("run: sudo usermod -aG %s %s", videoGroup, current)), true
}

// userGroups resolves the current user's group names, falling back to the
// groups command when the lookup fails (NSS misconfigurations).
func (p *Provisioner) userGroups(ctx context.Context) (string, []string, error) {
	current, groups, err := lookupGroups()
	if err == nil {
		return current, groups, nil
	}

	u, uerr := user.Current()
	if uerr != nil {
		return "", nil, uerr
	}

	res := p.runner.Run(ctx, "groups", u.Username)
	if !res.Ok() {
		return u.Username, nil, fmt.Errorf("groups command failed: %w", res.Err)
	}

	return u.Username, parseGroupsOutput(res.Output), nil
}

func lookupGroups() (string, []string, error) {
	u, err := user.Current()
	if err != nil {
		return "", nil, err
	}

	ids, err := u.GroupIds()
	if err != nil {
		return u.Username, nil, err
	}

	groups := make([]string, 0, len(ids))
	for _, id := range ids {
		g, err := user.LookupGroupId(id)
		if err != nil {
			continue
		}
		groups = append(groups, g.Name)
	}

	return u.Username, groups, nil
}

// parseGroupsOutput handles both "user : a b c" and "a b c" formats.
func parseGroupsOutput(out string) []string {
	out = strings.TrimSpace(out)
	if i := strings.Index(out, ":"); i >= 0 {
		out = out[i+1:]
	}
	return strings.Fields(out)
}

func isInGroups(groups []string, name string) bool {
	for _, g := range groups {
		if g == name {
			return true
		}
	}
	return false
}
