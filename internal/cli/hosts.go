package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/treykane/ssh-profiles/internal/config"
	"github.com/treykane/ssh-profiles/internal/history"
	"github.com/treykane/ssh-profiles/internal/model"
	"github.com/treykane/ssh-profiles/internal/registry"
	"github.com/treykane/ssh-profiles/internal/util"
)

// hostFlags are shared by "host add" and "host edit".
type hostFlags struct {
	hostName string
	user     string
	port     int
	identity string
	group    string
	tags     []string
	options  []string
	unset    []string
}

func (f *hostFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.hostName, "hostname", "", "HostName (address or DNS name)")
	cmd.Flags().StringVarP(&f.user, "user", "u", "", "login user")
	cmd.Flags().IntVarP(&f.port, "port", "p", util.DefaultSSHPort, "ssh port")
	cmd.Flags().StringVarP(&f.identity, "identity", "i", "", "IdentityFile path")
	cmd.Flags().StringVarP(&f.group, "group", "g", "", "group name (empty to ungroup)")
	cmd.Flags().StringSliceVarP(&f.tags, "tag", "t", nil, "tag (repeatable)")
	cmd.Flags().StringArrayVarP(&f.options, "option", "o", nil, "extra directive as key=value (repeatable)")
}

// apply copies the flags the user set onto h.
func (f *hostFlags) apply(cmd *cobra.Command, reg *registry.Registry, h *model.Host) error {
	changed := cmd.Flags().Changed
	if changed("hostname") {
		h.HostName = strings.TrimSpace(f.hostName)
	}
	if changed("user") {
		h.User = strings.TrimSpace(f.user)
	}
	if changed("port") {
		if err := util.ValidatePort(f.port); err != nil {
			return err
		}
		h.Port = f.port
	}
	if changed("identity") {
		h.IdentityFile = strings.TrimSpace(f.identity)
	}
	if changed("group") {
		h.GroupID = uuid.Nil
		if name := strings.TrimSpace(f.group); name != "" {
			g, ok := reg.GroupByName(name)
			if !ok {
				return fmt.Errorf("%w: %s", registry.ErrGroupNotFound, name)
			}
			h.GroupID = g.ID
		}
	}
	if changed("tag") {
		h.Tags = nil
		for _, t := range f.tags {
			h.AddTag(t)
		}
	}
	if h.Options == nil {
		h.Options = map[string]string{}
	}
	for _, kv := range f.options {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if !ok || key == "" {
			return fmt.Errorf("option %q must be key=value", kv)
		}
		switch key {
		case "host", "hostname", "user", "port", "identityfile":
			return fmt.Errorf("option %q has its own flag", key)
		}
		if config.IsForwardKey(key) {
			return fmt.Errorf("use `forward add` for %s", key)
		}
		h.Options[key] = strings.TrimSpace(value)
	}
	for _, key := range f.unset {
		delete(h.Options, strings.ToLower(strings.TrimSpace(key)))
	}
	return nil
}

func newHostCmd(a *app) *cobra.Command {
	root := &cobra.Command{Use: "host", Short: "Add, edit and remove hosts"}

	var addFlags hostFlags
	add := &cobra.Command{
		Use:   "add <alias>",
		Short: "Add a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alias := strings.TrimSpace(args[0])
			if err := config.ValidateAlias(alias); err != nil {
				return err
			}
			reg := a.load()
			if _, exists := reg.HostByAlias(alias); exists {
				return fmt.Errorf("host %s already exists", alias)
			}
			h := model.NewHost(alias)
			if err := addFlags.apply(cmd, reg, &h); err != nil {
				return err
			}
			if _, err := reg.AddHost(h); err != nil {
				return err
			}
			if err := a.save(reg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", alias)
			return nil
		},
	}
	addFlags.register(add)

	var (
		editFlags hostFlags
		rename    string
	)
	edit := &cobra.Command{
		Use:   "edit <alias>",
		Short: "Change a host's fields; only the flags given are applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			h, err := findHost(reg, args[0])
			if err != nil {
				return err
			}
			oldAlias := h.Alias
			if cmd.Flags().Changed("alias") {
				rename = strings.TrimSpace(rename)
				if err := config.ValidateAlias(rename); err != nil {
					return err
				}
				if other, exists := reg.HostByAlias(rename); exists && other.ID != h.ID {
					return fmt.Errorf("host %s already exists", rename)
				}
				h.Alias = rename
			}
			if err := editFlags.apply(cmd, reg, &h); err != nil {
				return err
			}
			if err := reg.UpdateHost(h); err != nil {
				return err
			}
			if err := a.save(reg); err != nil {
				return err
			}
			if oldAlias != h.Alias {
				if err := history.Rename(oldAlias, h.Alias); err != nil {
					a.logger.Warn("failed to update history", "alias", h.Alias, "error", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", h.Alias)
			return nil
		},
	}
	editFlags.register(edit)
	edit.Flags().StringVar(&rename, "alias", "", "rename the host")
	edit.Flags().StringSliceVar(&editFlags.unset, "unset-option", nil, "remove an extra directive by key (repeatable)")

	rm := &cobra.Command{
		Use:   "rm <alias>",
		Short: "Remove a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			h, err := findHost(reg, args[0])
			if err != nil {
				return err
			}
			if err := reg.RemoveHost(h.ID); err != nil {
				return err
			}
			if err := a.save(reg); err != nil {
				return err
			}
			if err := history.Forget(h.Alias); err != nil {
				a.logger.Warn("failed to update history", "alias", h.Alias, "error", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", h.Alias)
			return nil
		},
	}

	var off bool
	fav := &cobra.Command{
		Use:   "fav <alias>",
		Short: "Mark a host as favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			h, err := findHost(reg, args[0])
			if err != nil {
				return err
			}
			if err := reg.SetFavorite(h.ID, !off); err != nil {
				return err
			}
			return a.save(reg)
		},
	}
	fav.Flags().BoolVar(&off, "off", false, "clear the favorite mark")

	tag := &cobra.Command{
		Use:   "tag <alias> [tag...]",
		Short: "Replace a host's tags (no tags clears them)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			h, err := findHost(reg, args[0])
			if err != nil {
				return err
			}
			if err := reg.SetTags(h.ID, args[1:]); err != nil {
				return err
			}
			return a.save(reg)
		},
	}

	root.AddCommand(add, edit, rm, fav, tag)
	return root
}

func newGroupCmd(a *app) *cobra.Command {
	root := &cobra.Command{Use: "group", Short: "Manage host groups"}

	var jsonOut bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List groups with their host counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			groups := reg.Groups()
			out := cmd.OutOrStdout()
			if jsonOut {
				if groups == nil {
					groups = []model.Group{}
				}
				return writeJSON(out, groups)
			}
			fmt.Fprintf(out, "%-20s %-8s %-14s %s\n", "NAME", "COLOR", "ICON", "HOSTS")
			for _, g := range groups {
				fmt.Fprintf(out, "%-20s %-8s %-14s %d\n", g.Name, g.Color, util.EmptyDash(g.Icon), len(reg.HostsInGroup(g.ID)))
			}
			fmt.Fprintf(out, "%-20s %-8s %-14s %d\n", "(ungrouped)", "-", "-", len(reg.Ungrouped()))
			return nil
		},
	}
	list.Flags().BoolVar(&jsonOut, "json", false, "output JSON")

	var color, icon string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			if _, exists := reg.GroupByName(args[0]); exists {
				return fmt.Errorf("group %s already exists", args[0])
			}
			g := model.NewGroup(strings.TrimSpace(args[0]))
			if color != "" {
				g.Color = model.GroupColor(color)
			}
			if icon != "" {
				g.Icon = icon
			}
			g.SortOrder = len(reg.Groups())
			if _, err := reg.AddGroup(g); err != nil {
				return err
			}
			return a.save(reg)
		},
	}
	add.Flags().StringVar(&color, "color", "", "red, orange, yellow, green, blue, purple, pink or gray")
	add.Flags().StringVar(&icon, "icon", "", "icon name")

	rm := &cobra.Command{
		Use:   "rm <name>",
		Short: "Remove a group; its hosts become ungrouped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			g, ok := reg.GroupByName(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", registry.ErrGroupNotFound, args[0])
			}
			if err := reg.RemoveGroup(g.ID); err != nil {
				return err
			}
			return a.save(reg)
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Add the starter groups that do not exist yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.load()
			base := len(reg.Groups())
			added := 0
			for _, g := range model.DefaultGroups() {
				if _, exists := reg.GroupByName(g.Name); exists {
					continue
				}
				g.SortOrder = base + added
				if _, err := reg.AddGroup(g); err != nil {
					return err
				}
				added++
			}
			if added == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "all starter groups exist")
				return nil
			}
			if err := a.save(reg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d groups\n", added)
			return nil
		},
	}

	root.AddCommand(list, add, rm, initCmd)
	return root
}
