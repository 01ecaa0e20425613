// Package cli provides the command-line interface for ssh-profiles.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/treykane/ssh-profiles/internal/appconfig"
	"github.com/treykane/ssh-profiles/internal/config"
	"github.com/treykane/ssh-profiles/internal/doctor"
	"github.com/treykane/ssh-profiles/internal/events"
	"github.com/treykane/ssh-profiles/internal/history"
	"github.com/treykane/ssh-profiles/internal/model"
	"github.com/treykane/ssh-profiles/internal/registry"
	"github.com/treykane/ssh-profiles/internal/security"
	"github.com/treykane/ssh-profiles/internal/sshclient"
	"github.com/treykane/ssh-profiles/internal/store"
	"github.com/treykane/ssh-profiles/internal/tunnel"
	"github.com/treykane/ssh-profiles/internal/ui"
	"github.com/treykane/ssh-profiles/internal/util"
)

// app carries what every command needs once flags are parsed.
type app struct {
	configPath string
	verbose    bool

	cfg     appconfig.Config
	logger  *slog.Logger
	store   *store.Store
	journal *events.Store
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "ssh-profiles",
		Short:         "Manage SSH client profiles stored in ~/.ssh/config",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ui.Run(ui.Options{
				Store:   a.store,
				Config:  a.cfg,
				Logger:  a.logger,
				Client:  sshclient.New(),
				Prober:  sshclient.NewProber(a.cfg.Probe.TimeoutSeconds),
				Tunnels: a.tunnels(),
				Attach:  a.attach,
			})
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to the ssh config file (default from config.yaml, ~/.ssh/config)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newListCmd(a),
		newShowCmd(a),
		newCommandCmd(a),
		newConnectCmd(a),
		newTestCmd(a),
		newHostCmd(a),
		newGroupCmd(a),
		newJumpCmd(a),
		newForwardCmd(a),
		newDiffCmd(a),
		newDoctorCmd(a),
		newEventsCmd(a),
		newTunnelCmd(a),
	)
	return root
}

// Execute runs the command tree and prints errors the way users should see
// them. It returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		redact := true
		if cfg, cfgErr := appconfig.Load(); cfgErr == nil {
			redact = cfg.Security.RedactErrors
		}
		slog.Debug("command failed", "error", security.DebugMessage(err))
		fmt.Fprintln(os.Stderr, "error:", security.UserMessage(err, redact))
		return 1
	}
	return 0
}

func (a *app) init(stderr io.Writer) error {
	cfg, err := appconfig.Load()
	if err != nil {
		return err
	}
	if a.configPath != "" {
		cfg.SSHConfigPath = a.configPath
	}
	a.cfg = cfg

	level := cfg.Level()
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	metaPath, err := cfg.ResolvedMetadataPath()
	if err != nil {
		return err
	}
	a.store = store.New(cfg.ResolvedSSHConfigPath(), store.WithMetadataPath(metaPath), store.WithLogger(a.logger))
	if cfg.Journal.Enabled {
		a.journal = events.NewStore()
	}
	return nil
}

// attach subscribes the journal to reg, when enabled.
func (a *app) attach(reg *registry.Registry) {
	if a.journal != nil {
		reg.Subscribe(a.journal.Subscriber(a.logger))
	}
}

// load reads the registry and attaches the journal.
func (a *app) load() *registry.Registry {
	reg := a.store.Load()
	a.attach(reg)
	return reg
}

func (a *app) save(reg *registry.Registry) error {
	return a.store.Save(reg)
}

func (a *app) tunnels() *tunnel.Manager {
	var opts []tunnel.Option
	if a.journal != nil {
		opts = append(opts, tunnel.WithNotifier(a.journal.Subscriber(a.logger)))
	}
	mgr := tunnel.NewManager(sshclient.New(), opts...)
	if err := mgr.LoadRuntime(); err != nil {
		a.logger.Warn("failed to load tunnel runtime", "error", err)
	}
	return mgr
}

func findHost(reg *registry.Registry, alias string) (model.Host, error) {
	h, ok := reg.HostByAlias(alias)
	if !ok {
		return model.Host{}, fmt.Errorf("%w: %s", registry.ErrHostNotFound, alias)
	}
	return h, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newListCmd(a *app) *cobra.Command {
	var (
		search    string
		group     string
		favorites bool
		recent    bool
		jsonOut   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List hosts from the ssh config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			hosts := reg.Hosts()
			if search != "" {
				hosts = reg.Filter(search)
			}
			if group != "" {
				g, ok := reg.GroupByName(group)
				if !ok {
					return fmt.Errorf("%w: %s", registry.ErrGroupNotFound, group)
				}
				hosts = keep(hosts, func(h model.Host) bool { return h.GroupID == g.ID })
			}
			if favorites {
				hosts = keep(hosts, func(h model.Host) bool { return h.Favorite })
			}
			if recent {
				lastUsed, err := history.LastUsed()
				if err != nil {
					a.logger.Warn("failed to read history", "error", err)
				}
				hosts = history.SortHostsRecent(hosts, lastUsed)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if hosts == nil {
					hosts = []model.Host{}
				}
				return writeJSON(out, hosts)
			}
			fmt.Fprintf(out, "%-24s %-24s %-6s %-16s %-14s %-4s %s\n", "ALIAS", "HOSTNAME", "PORT", "USER", "GROUP", "FWD", "TAGS")
			for _, h := range hosts {
				alias := h.Alias
				if h.Favorite {
					alias = "*" + alias
				}
				groupName := "-"
				if g, ok := reg.Group(h.GroupID); ok {
					groupName = g.Name
				}
				fmt.Fprintf(out, "%-24s %-24s %-6d %-16s %-14s %-4d %s\n",
					alias, util.EmptyDash(h.HostName), h.Port, util.EmptyDash(h.User), groupName,
					len(h.ActiveForwards()), util.EmptyDash(strings.Join(h.Tags, ",")))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "filter by substring, or glob when it contains * ? [ {")
	cmd.Flags().StringVar(&group, "group", "", "only hosts in this group")
	cmd.Flags().BoolVar(&favorites, "favorites", false, "only favorite hosts")
	cmd.Flags().BoolVar(&recent, "recent", false, "sort by most recently connected")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func keep(hosts []model.Host, pred func(model.Host) bool) []model.Host {
	var out []model.Host
	for _, h := range hosts {
		if pred(h) {
			out = append(out, h)
		}
	}
	return out
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <alias>",
		Short: "Print the config block a host is saved as",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			h, err := findHost(reg, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, config.FormatHostBlock(h, reg.Directives(h)...))
			if g, ok := reg.Group(h.GroupID); ok {
				fmt.Fprintf(out, "# group: %s\n", g.Name)
			}
			if len(h.Tags) > 0 {
				fmt.Fprintf(out, "# tags: %s\n", strings.Join(h.Tags, ", "))
			}
			if h.Favorite {
				fmt.Fprintln(out, "# favorite")
			}
			for _, f := range h.PortForwards {
				if !f.Active {
					fmt.Fprintf(out, "# inactive: %s\n", f.ConfigString())
				}
			}
			return nil
		},
	}
}

func newCommandCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "command <alias>",
		Short: "Print the equivalent standalone ssh command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			h, err := findHost(reg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sshclient.CommandLine(h, reg.ProxyJumpValue(h)))
			return nil
		},
	}
}

func newConnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connect <alias>",
		Short: "Open an interactive ssh session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sshclient.EnsureSSHBinary(); err != nil {
				return err
			}
			reg := a.load()
			h, err := findHost(reg, args[0])
			if err != nil {
				return err
			}
			if err := history.Touch(h.Alias); err != nil {
				a.logger.Warn("failed to record history", "alias", h.Alias, "error", err)
			}
			ctx, cancel := signalContext()
			defer cancel()
			return sshclient.New().RunInteractive(ctx, h)
		},
	}
}

func newTestCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "test <alias>",
		Short: "Check that a host accepts a non-interactive login",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sshclient.EnsureSSHBinary(); err != nil {
				return err
			}
			reg := a.load()
			h, err := findHost(reg, args[0])
			if err != nil {
				return err
			}
			if err := reg.BeginTest(h.ID); err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			res := sshclient.NewProber(a.cfg.Probe.TimeoutSeconds).Probe(ctx, h)
			if err := reg.RecordTest(h.ID, res); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, struct {
					Alias string `json:"alias"`
					model.TestResult
				}{h.Alias, res})
			}
			status := "PASS"
			if !res.OK {
				status = "FAIL"
			}
			fmt.Fprintf(out, "[%s] %s: %s\n", status, h.Alias, res.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newDiffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Show what saving would change in the ssh config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			d, err := a.store.Diff(reg)
			if err != nil {
				return err
			}
			if d == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "no changes")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), d)
			return nil
		},
	}
}

func newDoctorCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the ssh config, tunnels and file permissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			text, err := os.ReadFile(a.store.Path())
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			report := doctor.Run(doctor.Input{
				Config:     a.cfg,
				Registry:   reg,
				ConfigPath: a.store.Path(),
				ConfigText: string(text),
				Tunnels:    a.tunnels().Snapshot(),
				SSHBinary:  sshclient.EnsureSSHBinary,
			})
			out := cmd.OutOrStdout()
			if jsonOut {
				if report.Issues == nil {
					report.Issues = []doctor.Issue{}
				}
				return writeJSON(out, report)
			}
			if len(report.Issues) == 0 {
				fmt.Fprintln(out, "no issues found")
				return nil
			}
			for _, issue := range report.Issues {
				fmt.Fprintf(out, "[%s] %s %s: %s\n", strings.ToUpper(string(issue.Severity)), issue.Check, issue.Target, issue.Message)
				if issue.Recommendation != "" {
					fmt.Fprintf(out, "    fix: %s\n", issue.Recommendation)
				}
			}
			fmt.Fprintf(out, "%d high, %d medium, %d low\n",
				report.Count(doctor.SeverityHigh), report.Count(doctor.SeverityMedium), report.Count(doctor.SeverityLow))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newEventsCmd(a *app) *cobra.Command {
	var (
		host    string
		kind    string
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the change journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := events.NewStore().Read(events.Query{Alias: host, Kind: events.Kind(kind), Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				if changes == nil {
					changes = []events.Change{}
				}
				return writeJSON(out, changes)
			}
			for _, c := range changes {
				fmt.Fprintf(out, "%s  %-16s %-20s %s\n", c.Timestamp.Local().Format("2006-01-02 15:04:05"), c.Kind, util.EmptyDash(c.Alias), c.Detail)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "only changes for this alias")
	cmd.Flags().StringVar(&kind, "kind", "", "only changes of this kind (e.g. host_added)")
	cmd.Flags().IntVar(&limit, "limit", 50, "show at most this many recent changes (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}
