package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/treykane/ssh-profiles/internal/model"
	"github.com/treykane/ssh-profiles/internal/util"
)

// Format renders hosts as ssh_config text in the given order. Hosts without an
// alias are skipped.
func Format(hosts []model.Host) string {
	return FormatWith(hosts, nil)
}

// FormatWith is Format with extra directive lines per host. They are written
// after IdentityFile and before the opaque options.
func FormatWith(hosts []model.Host, directives func(model.Host) []string) string {
	var b strings.Builder
	for _, h := range hosts {
		if !h.IsComplete() {
			continue
		}
		writeBlock(&b, h, directives)
		b.WriteString("\n")
	}
	return b.String()
}

// FormatHostBlock renders a single host block without the trailing separator.
func FormatHostBlock(h model.Host, extra ...string) string {
	var b strings.Builder
	writeBlock(&b, h, func(model.Host) []string { return extra })
	return b.String()
}

func writeBlock(b *strings.Builder, h model.Host, directives func(model.Host) []string) {
	fmt.Fprintf(b, "Host %s\n", h.Alias)
	// HostName is written even when empty; doctor reports such hosts.
	fmt.Fprintf(b, "  HostName %s\n", h.HostName)
	if h.User != "" {
		fmt.Fprintf(b, "  User %s\n", h.User)
	}
	if h.Port != 0 && h.Port != util.DefaultSSHPort {
		fmt.Fprintf(b, "  Port %d\n", h.Port)
	}
	if h.IdentityFile != "" {
		fmt.Fprintf(b, "  IdentityFile %s\n", h.IdentityFile)
	}
	if directives != nil {
		for _, line := range directives(h) {
			fmt.Fprintf(b, "  %s\n", line)
		}
	}
	keys := make([]string, 0, len(h.Options))
	for k := range h.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "  %s %s\n", TitleCase(k), h.Options[k])
	}
}

// ValidateAlias checks whether a proposed alias can be written as a single
// Host target.
func ValidateAlias(alias string) error {
	if strings.TrimSpace(alias) == "" {
		return fmt.Errorf("alias cannot be empty")
	}
	if strings.ContainsAny(alias, " \t*?!,") {
		return fmt.Errorf("alias cannot contain spaces, commas or wildcard characters")
	}
	return nil
}
