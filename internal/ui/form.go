package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/treykane/ssh-profiles/internal/config"
	"github.com/treykane/ssh-profiles/internal/model"
	"github.com/treykane/ssh-profiles/internal/util"
)

// formMode distinguishes between the mode-select, quick-add, and full-config screens.
type formMode int

const (
	formModeSelect formMode = iota
	formModeQuick
	formModeFull
)

// Field indices for the full form.
const (
	fieldAlias = iota
	fieldHostname
	fieldUser
	fieldPort
	fieldIdentityFile
	fieldProxyJump
	fieldGroup
	fieldCount
)

// formResult is returned when the user completes the form.
type formResult struct {
	host    model.Host
	jump    string
	group   string
	connect bool // open a session right after saving
}

// hostForm holds all state for the "new host" form.
type hostForm struct {
	mode    formMode
	modeSel int // 0 = quick, 1 = full (for mode selection screen)

	// Quick add
	quickInput textinput.Model

	// Full form
	fields   []textinput.Model
	focusIdx int

	connectAfter bool

	// Validation error
	errMsg string
}

// newForm creates an initialized form starting at mode selection.
func newForm() *hostForm {
	f := &hostForm{
		mode:         formModeSelect,
		connectAfter: true,
	}

	qi := textinput.New()
	qi.Placeholder = "user@hostname:port or just hostname"
	qi.CharLimit = 256
	qi.Width = 50
	f.quickInput = qi

	placeholders := []string{
		"my-server (required)",
		"192.168.1.1 or example.com",
		"deploy (optional)",
		"22 (default)",
		"~/.ssh/id_ed25519 (optional)",
		"bastion or user@jump:2222 (optional)",
		"Production (optional)",
	}
	limits := []int{64, 256, 64, 6, 256, 256, 64}

	f.fields = make([]textinput.Model, fieldCount)
	for i := range f.fields {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		ti.CharLimit = limits[i]
		ti.Width = 40
		f.fields[i] = ti
	}

	return f
}

// update processes a key message and returns a formResult if the form is complete.
func (f *hostForm) update(msg tea.KeyMsg) (*formResult, tea.Cmd) {
	switch f.mode {
	case formModeSelect:
		return f.updateModeSelect(msg)
	case formModeQuick:
		return f.updateQuick(msg)
	case formModeFull:
		return f.updateFull(msg)
	}
	return nil, nil
}

func (f *hostForm) updateModeSelect(msg tea.KeyMsg) (*formResult, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if f.modeSel < 1 {
			f.modeSel++
		}
	case "k", "up":
		if f.modeSel > 0 {
			f.modeSel--
		}
	case "enter":
		if f.modeSel == 0 {
			f.mode = formModeQuick
			f.quickInput.Focus()
			return nil, f.quickInput.Cursor.BlinkCmd()
		}
		f.mode = formModeFull
		f.focusIdx = 0
		f.fields[0].Focus()
		return nil, f.fields[0].Cursor.BlinkCmd()
	}
	return nil, nil
}

func (f *hostForm) updateQuick(msg tea.KeyMsg) (*formResult, tea.Cmd) {
	switch msg.String() {
	case "enter":
		host, err := parseQuickConnect(f.quickInput.Value())
		if err != nil {
			f.errMsg = err.Error()
			return nil, nil
		}
		return &formResult{host: host, connect: true}, nil
	default:
		var cmd tea.Cmd
		f.quickInput, cmd = f.quickInput.Update(msg)
		f.errMsg = ""
		return nil, cmd
	}
}

func (f *hostForm) updateFull(msg tea.KeyMsg) (*formResult, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab":
		f.fields[f.focusIdx].Blur()
		if msg.String() == "tab" {
			f.focusIdx = (f.focusIdx + 1) % fieldCount
		} else {
			f.focusIdx = (f.focusIdx - 1 + fieldCount) % fieldCount
		}
		f.fields[f.focusIdx].Focus()
		return nil, f.fields[f.focusIdx].Cursor.BlinkCmd()
	case "ctrl+s":
		f.connectAfter = !f.connectAfter
		return nil, nil
	case "enter":
		res, err := f.build()
		if err != nil {
			f.errMsg = err.Error()
			return nil, nil
		}
		return res, nil
	default:
		var cmd tea.Cmd
		f.fields[f.focusIdx], cmd = f.fields[f.focusIdx].Update(msg)
		f.errMsg = ""
		return nil, cmd
	}
}

func (f *hostForm) build() (*formResult, error) {
	alias := strings.TrimSpace(f.fields[fieldAlias].Value())
	portStr := strings.TrimSpace(f.fields[fieldPort].Value())

	if err := config.ValidateAlias(alias); err != nil {
		return nil, err
	}

	h := model.NewHost(alias)
	h.HostName = strings.TrimSpace(f.fields[fieldHostname].Value())
	h.User = strings.TrimSpace(f.fields[fieldUser].Value())
	h.IdentityFile = strings.TrimSpace(f.fields[fieldIdentityFile].Value())
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil || !util.PortInRange(p) {
			return nil, fmt.Errorf("port must be 1-65535")
		}
		h.Port = p
	}
	return &formResult{
		host:    h,
		jump:    strings.TrimSpace(f.fields[fieldProxyJump].Value()),
		group:   strings.TrimSpace(f.fields[fieldGroup].Value()),
		connect: f.connectAfter,
	}, nil
}

// view renders the form panel.
func (f *hostForm) view(renderPanel func(string, string, int, lipgloss.Color) string, width int) string {
	accent := lipgloss.Color("214")
	switch f.mode {
	case formModeSelect:
		return renderPanel("New Host", f.modeSelectView(), width, accent)
	case formModeQuick:
		return renderPanel("Quick Add", f.quickView(), width, accent)
	case formModeFull:
		return renderPanel("New Host - Full Config", f.fullView(), width, accent)
	}
	return ""
}

func (f *hostForm) modeSelectView() string {
	var b strings.Builder
	b.WriteString("Choose how to add the host:\n\n")

	options := []struct {
		label string
		desc  string
	}{
		{"Quick Add", "Enter user@host:port, save it and connect"},
		{"Full Config", "Set alias, key, jump host and group"},
	}

	for i, opt := range options {
		cursor := "  "
		if i == f.modeSel {
			cursor = "> "
		}
		b.WriteString(fmt.Sprintf("%s[%s]  %s\n", cursor, opt.label, opt.desc))
	}

	b.WriteString("\nj/k to select, Enter to confirm, Esc to cancel")
	return b.String()
}

func (f *hostForm) quickView() string {
	var b strings.Builder
	b.WriteString("Destination:\n\n")
	b.WriteString("  " + f.quickInput.View() + "\n\n")
	b.WriteString("Formats: hostname | user@hostname | hostname:port | user@host:port\n")
	b.WriteString("The hostname becomes the alias.\n")

	if f.errMsg != "" {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		b.WriteString("\n" + errStyle.Render("Error: "+f.errMsg) + "\n")
	}

	b.WriteString("\nEnter to save and connect, Esc to cancel")
	return b.String()
}

func (f *hostForm) fullView() string {
	labels := []string{"Alias:", "Hostname:", "User:", "Port:", "IdentityFile:", "ProxyJump:", "Group:"}

	var b strings.Builder
	for i, label := range labels {
		cursor := "  "
		if i == f.focusIdx {
			cursor = "> "
		}
		b.WriteString(fmt.Sprintf("%s%-14s %s\n", cursor, label, f.fields[i].View()))
	}

	b.WriteString("\n")
	marker := " "
	if f.connectAfter {
		marker = "x"
	}
	b.WriteString(fmt.Sprintf("  [%s] Connect after saving\n", marker))

	if f.errMsg != "" {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		b.WriteString("\n" + errStyle.Render("Error: "+f.errMsg) + "\n")
	}

	b.WriteString("\nTab/Shift-Tab navigate | Ctrl+S toggle connect | Enter save | Esc cancel")
	return b.String()
}

// parseQuickConnect parses a quick-add string into a Host whose alias is the
// hostname. Supported formats: hostname, user@hostname, hostname:port,
// user@hostname:port and [ipv6]:port.
func parseQuickConnect(input string) (model.Host, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return model.Host{}, fmt.Errorf("destination cannot be empty")
	}

	user := ""
	if atIdx := strings.Index(input, "@"); atIdx > 0 {
		user = input[:atIdx]
		input = input[atIdx+1:]
	}

	port := util.DefaultSSHPort
	if host, p, ok := util.SplitHostPort(input); ok && host != "" && util.PortInRange(p) {
		input, port = host, p
	}
	if input == "" {
		return model.Host{}, fmt.Errorf("hostname cannot be empty")
	}

	h := model.NewHost(input)
	h.HostName = input
	h.User = user
	h.Port = port
	return h, nil
}
