// Package doctor collects everything that can go wrong between the ssh
// config on disk and what ssh-profiles will write back: lint findings,
// registry inconsistencies, tunnel runtime state and local file security.
package doctor

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/treykane/ssh-profiles/internal/appconfig"
	"github.com/treykane/ssh-profiles/internal/config"
	"github.com/treykane/ssh-profiles/internal/model"
	"github.com/treykane/ssh-profiles/internal/registry"
	"github.com/treykane/ssh-profiles/internal/security"
	"github.com/treykane/ssh-profiles/internal/util"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type Report struct {
	Issues []Issue `json:"issues"`
}

// Count returns the number of issues at severity s.
func (r Report) Count(s Severity) int {
	n := 0
	for _, i := range r.Issues {
		if i.Severity == s {
			n++
		}
	}
	return n
}

// Input is what a diagnostic run looks at. Registry may be nil when only the
// file-level checks are wanted.
type Input struct {
	Config     appconfig.Config
	Registry   *registry.Registry
	ConfigPath string
	// ConfigText is the raw ssh config content, used for lint.
	ConfigText string
	Tunnels    []model.TunnelRuntime
	// SSHBinary, when set, is called to check that ssh is installed.
	SSHBinary func() error
}

// Run executes local diagnostics. The issues are sorted by severity (high
// first), then check, target and message.
func Run(in Input) Report {
	var issues []Issue

	if in.SSHBinary != nil {
		if err := in.SSHBinary(); err != nil {
			issues = append(issues, Issue{
				Severity:       SeverityHigh,
				Check:          "ssh-binary",
				Target:         "PATH",
				Message:        err.Error(),
				Recommendation: "install OpenSSH client and ensure `ssh` is on PATH",
			})
		}
	}

	issues = append(issues, lintIssues(in.ConfigPath, in.ConfigText)...)

	var hosts []model.Host
	if in.Registry != nil {
		hosts = in.Registry.Hosts()
		issues = append(issues, hostIssues(hosts)...)
		issues = append(issues, jumpIssues(in.Registry, hosts)...)
		issues = append(issues, forwardIssues(hosts)...)
		issues = append(issues, duplicateBindIssues(hosts)...)
	}
	issues = append(issues, runtimeIssues(in.Tunnels)...)

	for _, f := range security.RunLocalAudit(in.Config, hosts).Findings {
		issues = append(issues, Issue{
			Severity:       Severity(f.Severity),
			Check:          "security-audit",
			Target:         f.Target,
			Message:        f.Message,
			Recommendation: f.Recommendation,
		})
	}

	sort.Slice(issues, func(i, j int) bool {
		ri := severityRank(issues[i].Severity)
		rj := severityRank(issues[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if issues[i].Check != issues[j].Check {
			return issues[i].Check < issues[j].Check
		}
		if issues[i].Target != issues[j].Target {
			return issues[i].Target < issues[j].Target
		}
		return issues[i].Message < issues[j].Message
	})
	return Report{Issues: issues}
}

func lintIssues(path, content string) []Issue {
	if path == "" {
		path = "ssh config"
	}
	var issues []Issue
	for _, f := range config.Lint(content) {
		sev := SeverityLow
		if f.Severity == config.SeverityWarn {
			sev = SeverityMedium
		}
		target := path
		if f.Line > 0 {
			target = fmt.Sprintf("%s:%d", path, f.Line)
		}
		issues = append(issues, Issue{
			Severity:       sev,
			Check:          "config-lint",
			Target:         target,
			Message:        f.Message,
			Recommendation: "review `ssh-profiles diff` before saving",
		})
	}
	return issues
}

func hostIssues(hosts []model.Host) []Issue {
	var issues []Issue
	count := map[string]int{}
	for _, h := range hosts {
		if !h.IsComplete() {
			issues = append(issues, Issue{
				Severity:       SeverityMedium,
				Check:          "incomplete-host",
				Target:         h.ID.String(),
				Message:        "host has no alias and will not be written",
				Recommendation: "set an alias or remove the host",
			})
			continue
		}
		count[h.Alias]++
		if strings.TrimSpace(h.HostName) == "" {
			issues = append(issues, Issue{
				Severity:       SeverityLow,
				Check:          "missing-hostname",
				Target:         h.Alias,
				Message:        "HostName is empty; ssh will resolve the alias itself",
				Recommendation: "set a HostName with `host edit`",
			})
		}
	}
	for alias, n := range count {
		if n < 2 {
			continue
		}
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "duplicate-alias",
			Target:         alias,
			Message:        fmt.Sprintf("alias is defined by %d hosts; ssh only uses the first", n),
			Recommendation: "rename or remove the duplicates",
		})
	}
	return issues
}

func jumpIssues(reg *registry.Registry, hosts []model.Host) []Issue {
	var issues []Issue
	for _, h := range hosts {
		if len(h.JumpHosts) == 0 {
			continue
		}
		for _, j := range h.JumpHosts {
			if !j.IsValid() {
				issues = append(issues, Issue{
					Severity:       SeverityMedium,
					Check:          "invalid-jump",
					Target:         h.Alias,
					Message:        fmt.Sprintf("jump host %q cannot be rendered and is skipped", j.DisplayName()),
					Recommendation: "remove it with `jump rm`",
				})
			}
		}
		for _, hop := range reg.ResolveChain(h) {
			if hop.Dangling {
				issues = append(issues, Issue{
					Severity:       SeverityMedium,
					Check:          "dangling-jump",
					Target:         h.Alias,
					Message:        fmt.Sprintf("jump host %q no longer exists; the stored alias is used as-is", hop.Token),
					Recommendation: "re-add the jump host or remove it with `jump rm`",
				})
			}
		}
		if _, err := reg.ExpandChain(h); errors.Is(err, registry.ErrJumpCycle) {
			issues = append(issues, Issue{
				Severity:       SeverityHigh,
				Check:          "jump-cycle",
				Target:         h.Alias,
				Message:        err.Error(),
				Recommendation: "break the cycle with `jump rm`",
			})
		}
	}
	return issues
}

func forwardIssues(hosts []model.Host) []Issue {
	var issues []Issue
	for _, h := range hosts {
		for _, f := range h.PortForwards {
			if f.IsValid() {
				continue
			}
			issues = append(issues, Issue{
				Severity:       SeverityMedium,
				Check:          "invalid-forward",
				Target:         h.Alias,
				Message:        fmt.Sprintf("%s has a port outside 1-65535", f.ConfigString()),
				Recommendation: "fix or remove it with `forward rm`",
			})
		}
		for key, value := range h.Options {
			if !config.IsForwardKey(key) {
				continue
			}
			issues = append(issues, Issue{
				Severity:       SeverityMedium,
				Check:          "invalid-forward",
				Target:         h.Alias,
				Message:        fmt.Sprintf("%s %s could not be read as a forward and is kept as written", config.CanonicalForwardKey(key), value),
				Recommendation: "fix the ports or the host:port destination in the ssh config",
			})
		}
	}
	return issues
}

// duplicateBindIssues reports local listening addresses claimed by more than
// one forward. Remote forwards listen on the server and are not compared.
func duplicateBindIssues(hosts []model.Host) []Issue {
	seen := map[string][]string{}
	for _, h := range hosts {
		for _, fwd := range h.PortForwards {
			if fwd.Kind == model.ForwardRemote || !fwd.IsValid() {
				continue
			}
			key := util.JoinHostPort(util.NormalizeAddr(fwd.BindAddress, "127.0.0.1"), fwd.LocalPort)
			seen[key] = append(seen[key], h.Alias)
		}
	}
	var issues []Issue
	for bind, refs := range seen {
		if len(refs) < 2 {
			continue
		}
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "duplicate-local-bind",
			Target:         bind,
			Message:        fmt.Sprintf("local bind is configured %d times (%s)", len(refs), strings.Join(refs, ", ")),
			Recommendation: "use unique local ports per host/forward to avoid tunnel startup conflicts",
		})
	}
	return issues
}

func runtimeIssues(tunnels []model.TunnelRuntime) []Issue {
	var issues []Issue
	for _, rt := range tunnels {
		switch {
		case rt.State == model.TunnelUp && rt.PID == 0:
			issues = append(issues, Issue{
				Severity:       SeverityMedium,
				Check:          "runtime-stale",
				Target:         rt.ID,
				Message:        "runtime shows up state with missing PID",
				Recommendation: "restart the tunnel to refresh runtime state",
			})
		case rt.State == model.TunnelError:
			msg := "tunnel exited with an error"
			if rt.LastError != "" {
				msg += ": " + rt.LastError
			}
			issues = append(issues, Issue{
				Severity:       SeverityMedium,
				Check:          "runtime-error",
				Target:         rt.ID,
				Message:        msg,
				Recommendation: "check the forward with `ssh -v` and retry `tunnel up`",
			})
		}
	}
	return issues
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}
