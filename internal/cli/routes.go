package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/treykane/ssh-profiles/internal/config"
	"github.com/treykane/ssh-profiles/internal/model"
	"github.com/treykane/ssh-profiles/internal/registry"
	"github.com/treykane/ssh-profiles/internal/sshclient"
	"github.com/treykane/ssh-profiles/internal/tunnel"
	"github.com/treykane/ssh-profiles/internal/util"
)

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("index %q is not a number", s)
	}
	return i, nil
}

func newJumpCmd(a *app) *cobra.Command {
	root := &cobra.Command{Use: "jump", Short: "Manage a host's ProxyJump chain"}

	var expand, jsonOut bool
	list := &cobra.Command{
		Use:   "list <alias>",
		Short: "Show the jump chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			h, err := findHost(reg, args[0])
			if err != nil {
				return err
			}
			var hops []registry.Hop
			if expand {
				if hops, err = reg.ExpandChain(h); err != nil {
					return err
				}
			} else {
				hops = reg.ResolveChain(h)
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				if hops == nil {
					hops = []registry.Hop{}
				}
				return writeJSON(out, hops)
			}
			if len(hops) == 0 {
				fmt.Fprintf(out, "%s connects directly\n", h.Alias)
				return nil
			}
			for i, hop := range hops {
				fmt.Fprintf(out, "%d  %s\n", i, hop)
			}
			fmt.Fprintf(out, "-> %s\n", h.Alias)
			return nil
		},
	}
	list.Flags().BoolVar(&expand, "expand", false, "include the jump hosts of referenced hosts")
	list.Flags().BoolVar(&jsonOut, "json", false, "output JSON")

	add := &cobra.Command{
		Use:   "add <alias> <jump>",
		Short: "Append a hop: an existing alias, or [user@]host[:port]",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			h, err := findHost(reg, args[0])
			if err != nil {
				return err
			}
			hops := reg.ParseProxyJump(args[1])
			if len(hops) == 0 {
				return registry.ErrInvalidJump
			}
			for _, j := range hops {
				if err := reg.AddJumpHost(h.ID, j); err != nil {
					return err
				}
			}
			updated, _ := reg.Host(h.ID)
			if _, err := reg.ExpandChain(updated); err != nil {
				return err
			}
			return a.save(reg)
		},
	}

	rm := &cobra.Command{
		Use:   "rm <alias> <index>",
		Short: "Remove a hop by its index in `jump list`",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			h, err := findHost(reg, args[0])
			if err != nil {
				return err
			}
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			if err := reg.RemoveJumpHost(h.ID, idx); err != nil {
				return err
			}
			return a.save(reg)
		},
	}

	root.AddCommand(list, add, rm)
	return root
}

// forwardDirective maps the kind argument of "forward add" to a directive
// name the decoder understands.
func forwardDirective(kind string) (string, error) {
	switch strings.ToLower(kind) {
	case "l", "local":
		return model.ForwardLocal.Directive(), nil
	case "r", "remote":
		return model.ForwardRemote.Directive(), nil
	case "d", "dynamic", "socks":
		return model.ForwardDynamic.Directive(), nil
	}
	if config.IsForwardKey(kind) {
		return config.CanonicalForwardKey(kind), nil
	}
	return "", fmt.Errorf("unknown forward kind %q (use local, remote or dynamic)", kind)
}

// parseForwardArgs builds a rule from "<kind> <[bind:]port> [host:port]".
func parseForwardArgs(args []string) (model.PortForward, error) {
	directive, err := forwardDirective(args[0])
	if err != nil {
		return model.PortForward{}, err
	}
	line := directive + " " + strings.Join(args[1:], " ")
	fwd, ok := config.ParsePortForward(line)
	if !ok {
		return model.PortForward{}, fmt.Errorf("%w: %s", registry.ErrInvalidForward, line)
	}
	return fwd, nil
}

func newForwardCmd(a *app) *cobra.Command {
	root := &cobra.Command{Use: "forward", Short: "Manage a host's port forwards"}

	var jsonOut bool
	list := &cobra.Command{
		Use:   "list <alias>",
		Short: "List forwards with their indexes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			h, err := findHost(reg, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				fwds := h.PortForwards
				if fwds == nil {
					fwds = []model.PortForward{}
				}
				return writeJSON(out, fwds)
			}
			fmt.Fprintf(out, "%-4s %-8s %-7s %-34s %s\n", "IDX", "KIND", "ACTIVE", "ARGUMENT", "DESCRIPTION")
			for i, f := range h.PortForwards {
				active := "yes"
				if !f.Active {
					active = "no"
				}
				fmt.Fprintf(out, "%-4d %-8s %-7s %-34s %s\n", i, f.Kind, active, f.SSHArgument(), util.EmptyDash(f.DisplayDescription()))
			}
			return nil
		},
	}
	list.Flags().BoolVar(&jsonOut, "json", false, "output JSON")

	var (
		description string
		inactive    bool
	)
	add := &cobra.Command{
		Use:   "add <alias> <local|remote|dynamic> <[bind:]port> [host:port]",
		Short: "Add a forward, e.g. `forward add db local 5432 localhost:5432`",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			fwd, err := parseForwardArgs(args[1:])
			if err != nil {
				return err
			}
			fwd.Description = description
			fwd.Active = !inactive
			reg := a.load()
			h, err := findHost(reg, args[0])
			if err != nil {
				return err
			}
			if err := reg.AddPortForward(h.ID, fwd); err != nil {
				return err
			}
			return a.save(reg)
		},
	}
	add.Flags().StringVarP(&description, "description", "d", "", "label shown in lists")
	add.Flags().BoolVar(&inactive, "inactive", false, "store the forward without enabling it")

	rm := &cobra.Command{
		Use:   "rm <alias> <index>",
		Short: "Remove a forward",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			h, err := findHost(reg, args[0])
			if err != nil {
				return err
			}
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			if err := reg.RemovePortForward(h.ID, idx); err != nil {
				return err
			}
			return a.save(reg)
		},
	}

	toggle := &cobra.Command{
		Use:   "toggle <alias> <index>",
		Short: "Enable or disable a forward without deleting it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			h, err := findHost(reg, args[0])
			if err != nil {
				return err
			}
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			if idx < 0 || idx >= len(h.PortForwards) {
				return fmt.Errorf("%w: forward %d", registry.ErrIndexOutOfRange, idx)
			}
			active := !h.PortForwards[idx].Active
			if err := reg.SetForwardActive(h.ID, idx, active); err != nil {
				return err
			}
			if err := a.save(reg); err != nil {
				return err
			}
			state := "enabled"
			if !active {
				state = "disabled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", state, h.PortForwards[idx].SSHArgument())
			return nil
		},
	}

	root.AddCommand(list, add, rm, toggle)
	return root
}

func newTunnelCmd(a *app) *cobra.Command {
	root := &cobra.Command{Use: "tunnel", Short: "Run a host's forwards as a background ssh process"}

	var group string
	up := &cobra.Command{
		Use:   "up <alias> | --group <name>",
		Short: "Start the tunnel for a host's active forwards, or for every host in a group",
		Args: func(cmd *cobra.Command, args []string) error {
			if group != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sshclient.EnsureSSHBinary(); err != nil {
				return err
			}
			reg := a.load()
			mgr := a.tunnels()
			out := cmd.OutOrStdout()
			if group == "" {
				h, err := findHost(reg, args[0])
				if err != nil {
					return err
				}
				rt, err := mgr.Start(h)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "started %s pid=%d %s\n", rt.ID, rt.PID, strings.Join(rt.Forwards, " "))
				return nil
			}

			g, ok := reg.GroupByName(group)
			if !ok {
				return fmt.Errorf("%w: %s", registry.ErrGroupNotFound, group)
			}
			started, skipped, failed := 0, 0, 0
			for _, h := range reg.HostsInGroup(g.ID) {
				rt, err := mgr.Start(h)
				switch {
				case errors.Is(err, tunnel.ErrNoForwards):
					skipped++
				case err != nil:
					failed++
					fmt.Fprintf(out, "failed %s: %v\n", h.Alias, err)
				default:
					started++
					fmt.Fprintf(out, "started %s pid=%d %s\n", rt.ID, rt.PID, strings.Join(rt.Forwards, " "))
				}
			}
			fmt.Fprintf(out, "group %s summary: %d started, %d without forwards, %d failed\n", g.Name, started, skipped, failed)
			return nil
		},
	}
	up.Flags().StringVarP(&group, "group", "g", "", "start every host in this group")

	down := &cobra.Command{
		Use:   "down <alias>",
		Short: "Stop a host's tunnel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.tunnels().StopByHost(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped tunnel for host %s\n", args[0])
			return nil
		},
	}

	var jsonOut bool
	status := &cobra.Command{
		Use:   "status",
		Short: "Show tunnel status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sn := a.tunnels().Snapshot()
			out := cmd.OutOrStdout()
			if jsonOut {
				if sn == nil {
					sn = []model.TunnelRuntime{}
				}
				return writeJSON(out, sn)
			}
			fmt.Fprintf(out, "%-20s %-22s %-10s %-8s %-10s %s\n", "HOST", "LOCAL", "STATE", "PID", "LAT(ms)", "FORWARDS")
			for _, rt := range sn {
				fmt.Fprintf(out, "%-20s %-22s %-10s %-8d %-10d %s\n", rt.HostAlias, util.EmptyDash(rt.Local), rt.State, rt.PID, rt.LatencyMS, strings.Join(rt.Forwards, " "))
				if rt.LastError != "" {
					fmt.Fprintf(out, "    last error: %s\n", rt.LastError)
				}
			}
			return nil
		},
	}
	status.Flags().BoolVar(&jsonOut, "json", false, "output JSON")

	root.AddCommand(up, down, status)
	return root
}
