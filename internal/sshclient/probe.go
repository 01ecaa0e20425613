package sshclient

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/treykane/ssh-profiles/internal/model"
	"github.com/treykane/ssh-profiles/internal/util"
)

// Prober tests whether a host accepts a non-interactive connection.
type Prober interface {
	Probe(ctx context.Context, h model.Host) model.TestResult
}

// SSHProber runs "ssh -o BatchMode=yes ... -T <alias> exit".
type SSHProber struct {
	TimeoutSeconds int
}

// NewProber returns a prober with the given ConnectTimeout; values <= 0 use
// the default of 5 seconds.
func NewProber(timeoutSeconds int) *SSHProber {
	if timeoutSeconds <= 0 {
		timeoutSeconds = util.DefaultProbeTimeoutSeconds
	}
	return &SSHProber{TimeoutSeconds: timeoutSeconds}
}

// ProbeArgs returns the probe argv for alias.
func ProbeArgs(alias string, timeoutSeconds int) []string {
	return []string{
		"-o", "ConnectTimeout=" + strconv.Itoa(timeoutSeconds),
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=no",
		"-T",
		alias,
		"exit",
	}
}

// Probe blocks until ssh exits or the timeout (plus a grace period for
// authentication) passes.
func (p *SSHProber) Probe(ctx context.Context, h model.Host) model.TestResult {
	timeout := time.Duration(p.TimeoutSeconds)*time.Second + 5*time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "ssh", ProbeArgs(h.Alias, p.TimeoutSeconds)...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	latency := time.Since(start)
	if err == nil {
		return model.Success(latency)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.Failure(model.FailureConnectionTimeout, "")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return model.Failure(model.FailureUnknown, err.Error())
	}
	return ClassifyFailure(out.String())
}

var (
	badPermsRe    = regexp.MustCompile(`Permissions 0?[0-7]+ for '([^']+)' are too open`)
	loadKeyRe     = regexp.MustCompile(`Load key "([^"]+)": bad permissions`)
	missingKeyRe  = regexp.MustCompile(`Identity file (\S+) not accessible`)
	noSuchFileRe  = regexp.MustCompile(`(\S+): No such file or directory`)
	resolveHostRe = regexp.MustCompile(`Could not resolve hostname|Name or service not known|nodename nor servname provided|Temporary failure in name resolution`)
)

// ClassifyFailure maps ssh's output for a failed connection to a TestResult.
// Key-file problems are checked first: ssh reports them as warnings and then
// usually fails with "Permission denied" as well.
func ClassifyFailure(output string) model.TestResult {
	switch {
	case strings.Contains(output, "Bad permissions") || strings.Contains(output, "UNPROTECTED PRIVATE KEY FILE"):
		return model.Failure(model.FailureKeyFileWrongPerms, firstMatch(output, "unknown_path", badPermsRe, loadKeyRe))
	case missingKeyRe.MatchString(output):
		return model.Failure(model.FailureKeyFileNotFound, firstMatch(output, "unknown_path", missingKeyRe))
	case strings.Contains(output, "Permission denied") || strings.Contains(output, "publickey"):
		return model.Failure(model.FailurePermissionDenied, "")
	case strings.Contains(output, "Connection timed out") || strings.Contains(output, "Operation timed out"):
		return model.Failure(model.FailureConnectionTimeout, "")
	case resolveHostRe.MatchString(output):
		return model.Failure(model.FailureUnknownHost, "")
	case strings.Contains(output, "No such file") || strings.Contains(output, "not found"):
		return model.Failure(model.FailureKeyFileNotFound, firstMatch(output, "unknown_path", noSuchFileRe))
	default:
		return model.Failure(model.FailureUnknown, strings.TrimSpace(output))
	}
}

func firstMatch(s, fallback string, res ...*regexp.Regexp) string {
	for _, re := range res {
		if m := re.FindStringSubmatch(s); len(m) > 1 {
			return strings.TrimSuffix(m[1], ":")
		}
	}
	return fallback
}
