package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/treykane/ssh-profiles/internal/appconfig"
	"github.com/treykane/ssh-profiles/internal/model"
	"github.com/treykane/ssh-profiles/internal/util"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Finding struct {
	Severity       Severity `json:"severity"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type AuditReport struct {
	Findings []Finding `json:"findings"`
}

func (r AuditReport) HasHigh() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// RunLocalAudit inspects the permissions of the ssh directory, the managed
// config file and its backup, the application files, and every identity file
// referenced by hosts.
func RunLocalAudit(cfg appconfig.Config, hosts []model.Host) AuditReport {
	var findings []Finding
	if !cfg.Security.RedactErrors {
		findings = append(findings, Finding{
			Severity:       SeverityLow,
			Target:         "config.yaml",
			Message:        "error messages are shown without path redaction",
			Recommendation: "set security.redact_errors to true",
		})
	}

	sshConfig := cfg.ResolvedSSHConfigPath()
	checkPathPerm(&findings, filepath.Dir(sshConfig), 0o700, false)
	checkPathPerm(&findings, sshConfig, 0o600, true)
	checkPathPerm(&findings, sshConfig+util.BackupSuffix, 0o600, true)

	if cfgDir, err := appconfig.ConfigDir(); err == nil {
		checkPathPerm(&findings, cfgDir, 0o700, false)
		checkPathPerm(&findings, filepath.Join(cfgDir, "config.yaml"), 0o600, true)
		checkPathPerm(&findings, filepath.Join(cfgDir, "runtime.json"), 0o600, true)
	}
	if meta, err := cfg.ResolvedMetadataPath(); err == nil {
		checkPathPerm(&findings, meta, 0o600, true)
	}

	seen := map[string]struct{}{}
	for _, h := range hosts {
		if strings.TrimSpace(h.IdentityFile) == "" {
			continue
		}
		identity := util.ExpandHome(h.IdentityFile)
		if _, ok := seen[identity]; ok {
			continue
		}
		seen[identity] = struct{}{}
		findings = append(findings, CheckIdentityFile(h.Alias, identity)...)
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Severity != findings[j].Severity {
			return severityRank(findings[i].Severity) > severityRank(findings[j].Severity)
		}
		if findings[i].Target != findings[j].Target {
			return findings[i].Target < findings[j].Target
		}
		return findings[i].Message < findings[j].Message
	})
	return AuditReport{Findings: findings}
}

// CheckIdentityFile reports a missing key, permissions ssh would refuse, and
// content that does not parse as a private key. Passphrase-protected keys
// are accepted.
func CheckIdentityFile(alias, path string) []Finding {
	var findings []Finding
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Finding{{
				Severity:       SeverityMedium,
				Target:         path,
				Message:        fmt.Sprintf("identity file for %s does not exist", alias),
				Recommendation: "fix the IdentityFile path or remove it",
			}}
		}
		return []Finding{{
			Severity:       SeverityLow,
			Target:         path,
			Message:        fmt.Sprintf("unable to inspect identity file: %v", err),
			Recommendation: "verify path and permissions manually",
		}}
	}
	if mode := st.Mode().Perm(); mode&0o077 != 0 {
		findings = append(findings, Finding{
			Severity:       SeverityHigh,
			Target:         path,
			Message:        fmt.Sprintf("identity file permissions are too open (%#o); ssh will ignore the key", mode),
			Recommendation: "chmod 600 " + path,
		})
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return findings
	}
	if _, err := ssh.ParsePrivateKey(b); err != nil {
		var missing *ssh.PassphraseMissingError
		if !errors.As(err, &missing) {
			findings = append(findings, Finding{
				Severity:       SeverityMedium,
				Target:         path,
				Message:        fmt.Sprintf("identity file for %s is not a usable private key: %v", alias, err),
				Recommendation: "point IdentityFile at the private key, not the .pub file",
			})
		}
	}
	return findings
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

func checkPathPerm(findings *[]Finding, path string, max os.FileMode, isFile bool) {
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		*findings = append(*findings, Finding{
			Severity:       SeverityLow,
			Target:         path,
			Message:        fmt.Sprintf("unable to inspect permissions: %v", err),
			Recommendation: "verify path and permissions manually",
		})
		return
	}
	mode := st.Mode().Perm()
	if mode > max {
		kind := "directory"
		if isFile {
			kind = "file"
		}
		*findings = append(*findings, Finding{
			Severity:       SeverityMedium,
			Target:         path,
			Message:        fmt.Sprintf("%s permissions are too broad (%#o)", kind, mode),
			Recommendation: fmt.Sprintf("restrict permissions to %#o or tighter", max),
		})
	}
}
