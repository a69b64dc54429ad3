// Package backend implements the Route Backend abstraction: the
// OS-facing seam behind which route installation actually happens.
package backend

import (
	"fmt"
	"net/netip"
	"os/exec"
	"strings"

	"github.com/leshy-dns/leshy/internal/route"
)

// Shell is a route.Backend that shells out to the platform `ip route`
// command, in the style of this codebase's other exec.Command-driven
// system integrations. It is the always-available fallback
// implementation; Netlink is preferred when available.
type Shell struct {
	// IPPath overrides the `ip` binary looked up on PATH; empty means "ip".
	IPPath string
}

var _ route.Backend = (*Shell)(nil)

func (s *Shell) ipPath() string {
	if s.IPPath != "" {
		return s.IPPath
	}
	return "ip"
}

// Install implements route.Backend.
func (s *Shell) Install(prefix netip.Prefix, target route.Target) error {
	args := append([]string{"route", "add", prefix.String()}, targetArgs(target)...)
	out, err := exec.Command(s.ipPath(), args...).CombinedOutput()
	if err == nil {
		return nil
	}
	if strings.Contains(string(out), "File exists") {
		return route.ErrAlreadyExists
	}
	return fmt.Errorf("%w: ip %s: %v: %s", route.ErrTransient, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
}

// Withdraw implements route.Backend.
func (s *Shell) Withdraw(prefix netip.Prefix, target route.Target) error {
	args := append([]string{"route", "del", prefix.String()}, targetArgs(target)...)
	out, err := exec.Command(s.ipPath(), args...).CombinedOutput()
	if err == nil {
		return nil
	}
	msg := strings.ToLower(string(out))
	if strings.Contains(msg, "no such process") || strings.Contains(msg, "cannot find device") {
		return route.ErrNotFound
	}
	return fmt.Errorf("%w: ip %s: %v: %s", route.ErrTransient, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
}

func targetArgs(target route.Target) []string {
	if target.Device != "" {
		return []string{"dev", target.Device}
	}
	if target.Gateway.IsValid() {
		return []string{"via", target.Gateway.String()}
	}
	return nil
}
