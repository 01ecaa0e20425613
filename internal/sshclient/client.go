// Package sshclient launches the system ssh binary for interactive sessions,
// background tunnels and connectivity probes.
//
// It does not implement the SSH protocol. Every command targets the host
// alias, so OpenSSH resolves HostName, User, IdentityFile, ProxyJump and the
// forwarding directives from the managed config file itself.
//
// All arguments are passed as argv to exec.Command, never through a shell, so
// aliases or forward specs containing shell metacharacters cannot inject
// commands.
package sshclient

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/creack/pty"

	"github.com/treykane/ssh-profiles/internal/model"
	"github.com/treykane/ssh-profiles/internal/util"
)

// TunnelProcess represents a running "ssh -N" process.
//
// The caller (internal/tunnel.Manager) owns its lifecycle: it waits on Cmd,
// drains Stderr and signals Cmd.Process to stop it.
type TunnelProcess struct {
	Cmd    *exec.Cmd
	Stderr io.ReadCloser
}

// Client creates ssh processes. It is stateless and safe for concurrent use.
type Client struct{}

func New() *Client { return &Client{} }

// EnsureSSHBinary checks that "ssh" is on PATH.
func EnsureSSHBinary() error {
	_, err := exec.LookPath("ssh")
	if err != nil {
		return fmt.Errorf("ssh binary not found in PATH")
	}
	return nil
}

// CommandArgs renders the full standalone command line for h, without the
// leading "ssh":
//
//	<alias> [-p <port>] [-L ...] [-R ...] [-D ...] [-J hop1,hop2]
//
// Only active, valid forwards are included. jump is the comma-joined chain
// (see registry.ProxyJumpValue); empty means no -J.
func CommandArgs(h model.Host, jump string) []string {
	args := []string{h.Alias}
	if h.Port != 0 && h.Port != util.DefaultSSHPort {
		args = append(args, "-p", strconv.Itoa(h.Port))
	}
	active := h.ActiveForwards()
	for _, kind := range []model.ForwardKind{model.ForwardLocal, model.ForwardRemote, model.ForwardDynamic} {
		for _, f := range active {
			if f.Kind == kind {
				args = append(args, f.SSHArgs()...)
			}
		}
	}
	if jump != "" {
		args = append(args, "-J", jump)
	}
	return args
}

// CommandLine joins CommandArgs into a copyable shell command.
func CommandLine(h model.Host, jump string) string {
	args := CommandArgs(h, jump)
	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, "ssh")
	for _, a := range args {
		quoted = append(quoted, shellQuote(a))
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`;&|<>()*?[]{}!#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ConnectArgs is the argv used to open a session: the alias plus -p when
// the port is not 22. Jumps and forwards come from the config file.
func ConnectArgs(h model.Host) []string {
	args := []string{h.Alias}
	if h.Port != 0 && h.Port != util.DefaultSSHPort {
		args = append(args, "-p", strconv.Itoa(h.Port))
	}
	return args
}

// ConnectCommand returns an unstarted interactive ssh command for h. Stdio is
// left for the caller to attach (RunInteractive, or tea.ExecProcess in the
// dashboard).
func (c *Client) ConnectCommand(h model.Host) *exec.Cmd {
	return exec.Command("ssh", ConnectArgs(h)...)
}

// RunInteractive runs an ssh session for h inside a pseudo-terminal wired to
// the current terminal, and blocks until it ends. Cancelling ctx kills the
// session.
func (c *Client) RunInteractive(ctx context.Context, h model.Host) error {
	cmd := c.ConnectCommand(h)

	f, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	defer f.Close()

	// Fails when stdin is not a terminal; the pty then stays at 80x24.
	_ = pty.InheritSize(os.Stdin, f)

	go func() {
		_, _ = io.Copy(f, os.Stdin)
	}()
	stop := context.AfterFunc(ctx, func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	})
	defer stop()

	_, _ = io.Copy(os.Stdout, f)
	return cmd.Wait()
}

// BuildTunnelArgs returns the argv for a background tunnel to alias:
//
//	-N -o ExitOnForwardFailure=yes -o BatchMode=yes <alias>
//
// The forwards themselves are the LocalForward/RemoteForward/DynamicForward
// lines of the host's config block.
func BuildTunnelArgs(alias string) []string {
	return []string{"-N", "-o", "ExitOnForwardFailure=yes", "-o", "BatchMode=yes", alias}
}

// StartTunnel starts a background "ssh -N" for h. Cancelling ctx kills the
// process. The caller must Wait on the returned Cmd and drain Stderr.
func (c *Client) StartTunnel(ctx context.Context, h model.Host) (*TunnelProcess, error) {
	cmd := exec.CommandContext(ctx, "ssh", BuildTunnelArgs(h.Alias)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = io.Discard
	cmd.Stdin = nil
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &TunnelProcess{Cmd: cmd, Stderr: stderr}, nil
}
