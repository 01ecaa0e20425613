// Package tunnel runs background "ssh -N" processes that carry a host's port
// forwards, tracks their state and persists it to runtime.json.
package tunnel

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/treykane/ssh-profiles/internal/appconfig"
	"github.com/treykane/ssh-profiles/internal/events"
	"github.com/treykane/ssh-profiles/internal/model"
	"github.com/treykane/ssh-profiles/internal/sshclient"
	"github.com/treykane/ssh-profiles/internal/util"
)

// ErrNoForwards is returned by Start for a host without active forwards.
var ErrNoForwards = errors.New("host has no active port forwards")

// Manager coordinates tunnel processes. Unlike the registry it is shared with
// process watchers, so its state is guarded by a mutex.
type Manager struct {
	mu      sync.Mutex
	client  TunnelStarter
	runtime map[string]model.TunnelRuntime
	cancel  map[string]context.CancelFunc
	notify  func(events.Change)
}

// TunnelStarter abstracts process creation for testing.
type TunnelStarter interface {
	StartTunnel(ctx context.Context, h model.Host) (*sshclient.TunnelProcess, error)
}

type Option func(*Manager)

// WithNotifier receives a change for every start, stop and failure.
func WithNotifier(fn func(events.Change)) Option {
	return func(m *Manager) { m.notify = fn }
}

func NewManager(client TunnelStarter, opts ...Option) *Manager {
	m := &Manager{
		client:  client,
		runtime: make(map[string]model.TunnelRuntime),
		cancel:  make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RuntimeID is the tunnel id for a host. There is at most one tunnel per alias.
func RuntimeID(alias string) string {
	return alias
}

func (m *Manager) emit(kind events.Kind, rt model.TunnelRuntime, detail string) {
	if m.notify == nil {
		return
	}
	m.notify(events.Change{Timestamp: time.Now().UTC(), Kind: kind, Alias: rt.HostAlias, Detail: detail})
}

// Start launches a tunnel for h's active forwards. A tunnel that is already
// up is returned unchanged.
func (m *Manager) Start(h model.Host) (model.TunnelRuntime, error) {
	forwards := h.ActiveForwards()
	if len(forwards) == 0 {
		return model.TunnelRuntime{}, fmt.Errorf("%s: %w", h.Alias, ErrNoForwards)
	}
	specs := make([]string, len(forwards))
	for i, f := range forwards {
		specs[i] = f.SSHArgument()
	}

	id := RuntimeID(h.Alias)
	m.mu.Lock()
	if rt, ok := m.runtime[id]; ok && rt.State == model.TunnelUp {
		m.mu.Unlock()
		return rt, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt := model.TunnelRuntime{
		ID:        id,
		HostAlias: h.Alias,
		Forwards:  specs,
		Local:     model.ProbeAddr(forwards),
		State:     model.TunnelStarting,
		StartedAt: time.Now(),
	}
	m.runtime[id] = rt
	m.cancel[id] = cancel
	m.mu.Unlock()

	proc, err := m.client.StartTunnel(ctx, h)
	if err != nil {
		cancel()
		m.mu.Lock()
		rt.State = model.TunnelError
		rt.LastError = err.Error()
		m.runtime[id] = rt
		delete(m.cancel, id)
		m.mu.Unlock()
		if persistErr := m.persist(); persistErr != nil {
			slog.Warn("failed to persist tunnel state after start error", "error", persistErr)
		}
		m.emit(events.TunnelFailed, rt, err.Error())
		return rt, err
	}

	m.mu.Lock()
	rt.PID = proc.Cmd.Process.Pid
	rt.State = model.TunnelUp
	m.runtime[id] = rt
	m.mu.Unlock()

	go m.watchProcess(id, proc)
	if err := m.persist(); err != nil {
		slog.Warn("failed to persist tunnel state after start", "error", err)
	}
	m.emit(events.TunnelStarted, rt, strings.Join(specs, " "))
	return m.Get(id)
}

// lastLine keeps the last non-empty line read from r.
func lastLine(r io.Reader) string {
	var last string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	return last
}

func (m *Manager) watchProcess(id string, proc *sshclient.TunnelProcess) {
	stderr := make(chan string, 1)
	go func() {
		if proc.Stderr == nil {
			stderr <- ""
			return
		}
		stderr <- lastLine(proc.Stderr)
	}()
	// Stderr must be fully read before Wait closes the pipe.
	msg := <-stderr
	err := proc.Cmd.Wait()

	m.mu.Lock()
	rt, ok := m.runtime[id]
	if !ok || rt.PID != proc.Cmd.Process.Pid {
		m.mu.Unlock()
		return
	}
	failed := false
	if rt.State != model.TunnelStopping && rt.State != model.TunnelDown {
		if err != nil {
			failed = true
			rt.State = model.TunnelError
			rt.LastError = util.DefaultString(msg, err.Error())
		} else {
			rt.State = model.TunnelDown
		}
		rt.PID = 0
		m.runtime[id] = rt
	}
	delete(m.cancel, id)
	m.mu.Unlock()
	if persistErr := m.persist(); persistErr != nil {
		slog.Warn("failed to persist tunnel state after process exit", "error", persistErr)
	}
	if failed {
		m.emit(events.TunnelFailed, rt, rt.LastError)
	}
}

// Stop terminates a tunnel by its id.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	rt, ok := m.runtime[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("tunnel not found: %s", id)
	}
	rt.State = model.TunnelStopping
	m.runtime[id] = rt
	cancel := m.cancel[id]
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	// A tunnel restored from runtime.json belongs to an earlier process and
	// has no cancel func; signal it directly.
	if rt.PID > 0 && processAlive(rt.PID) {
		if p, err := os.FindProcess(rt.PID); err == nil {
			_ = p.Signal(syscall.SIGTERM)
		}
	}

	m.mu.Lock()
	rt.State = model.TunnelDown
	rt.PID = 0
	m.runtime[id] = rt
	delete(m.cancel, id)
	m.mu.Unlock()

	if err := m.persist(); err != nil {
		slog.Warn("failed to persist tunnel state after stop", "error", err)
	}
	m.emit(events.TunnelStopped, rt, "")
	return nil
}

// StopByHost stops the tunnel for alias if it is running.
func (m *Manager) StopByHost(alias string) error {
	m.mu.Lock()
	rt, ok := m.runtime[RuntimeID(alias)]
	m.mu.Unlock()
	if !ok || rt.State == model.TunnelDown {
		return fmt.Errorf("no active tunnel for host %s", alias)
	}
	return m.Stop(rt.ID)
}

// StopAll stops all managed tunnels.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.runtime))
	for id, rt := range m.runtime {
		if rt.State != model.TunnelDown {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.Stop(id)
	}
}

// Get retrieves a tunnel's current runtime state by id.
func (m *Manager) Get(id string) (model.TunnelRuntime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.runtime[id]
	if !ok {
		return model.TunnelRuntime{}, fmt.Errorf("tunnel not found: %s", id)
	}
	if !rt.StartedAt.IsZero() && rt.State == model.TunnelUp {
		rt.UptimeSec = int64(time.Since(rt.StartedAt).Seconds())
	}
	return rt, nil
}

// Snapshot returns every tunnel sorted by alias, with uptime and the latency
// of a TCP dial to the local end of the first local or dynamic forward.
func (m *Manager) Snapshot() []model.TunnelRuntime {
	m.mu.Lock()
	out := make([]model.TunnelRuntime, 0, len(m.runtime))
	for _, rt := range m.runtime {
		if !rt.StartedAt.IsZero() && rt.State == model.TunnelUp {
			rt.UptimeSec = int64(time.Since(rt.StartedAt).Seconds())
		}
		out = append(out, rt)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].HostAlias < out[j].HostAlias })

	type probeResult struct {
		index     int
		latencyMS int64
		err       error
	}

	results := make(chan probeResult, len(out))
	expected := 0
	for i, rt := range out {
		if rt.State != model.TunnelUp || rt.Local == "" {
			continue
		}
		expected++
		go func(idx int, local string) {
			start := time.Now()
			conn, err := net.DialTimeout("tcp", local, util.TunnelProbeTimeout)
			if err != nil {
				results <- probeResult{index: idx, err: err}
				return
			}
			_ = conn.Close()
			results <- probeResult{index: idx, latencyMS: time.Since(start).Milliseconds()}
		}(i, rt.Local)
	}

	timeout := time.After(util.TunnelProbeTimeout + 100*time.Millisecond)
	for collected := 0; collected < expected; collected++ {
		select {
		case result := <-results:
			if result.err != nil {
				slog.Debug("tunnel probe failed", "local", out[result.index].Local, "error", result.err)
			} else {
				out[result.index].LatencyMS = result.latencyMS
			}
		case <-timeout:
			slog.Warn("tunnel probe timeout", "collected", collected, "expected", expected)
			return out
		}
	}
	return out
}

// LoadRuntime restores tunnel state from runtime.json. Tunnels whose process
// is gone are marked down.
func (m *Manager) LoadRuntime() error {
	path, err := appconfig.RuntimeFilePath()
	if err != nil {
		return err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var arr []model.TunnelRuntime
	if err := json.Unmarshal(b, &arr); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rt := range arr {
		if rt.PID <= 0 || !processAlive(rt.PID) {
			rt.State = model.TunnelDown
			rt.PID = 0
		}
		m.runtime[rt.ID] = rt
	}
	return nil
}

func (m *Manager) persist() error {
	path, err := appconfig.RuntimeFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	m.mu.Lock()
	arr := make([]model.TunnelRuntime, 0, len(m.runtime))
	for _, rt := range m.runtime {
		if !rt.StartedAt.IsZero() && rt.State == model.TunnelUp {
			rt.UptimeSec = int64(time.Since(rt.StartedAt).Seconds())
		}
		arr = append(arr, rt)
	}
	m.mu.Unlock()
	sort.Slice(arr, func(i, j int) bool { return arr[i].ID < arr[j].ID })
	b, err := json.MarshalIndent(arr, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
