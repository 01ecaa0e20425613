package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kevinburke/ssh_config"
)

type Severity string

const (
	SeverityInfo Severity = "info"
	SeverityWarn Severity = "warn"
)

// Finding describes something in a config file that will not survive a
// load/save cycle unchanged.
type Finding struct {
	Line     int      `json:"line,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func (f Finding) String() string {
	if f.Line > 0 {
		return fmt.Sprintf("line %d: %s", f.Line, f.Message)
	}
	return f.Message
}

// multiValueKeys may legitimately repeat inside a block.
var multiValueKeys = map[string]bool{
	"localforward":    true,
	"remoteforward":   true,
	"dynamicforward":  true,
	"sendenv":         true,
	"setenv":          true,
	"certificatefile": true,
}

// Lint compares content against what Parse keeps. The file is also decoded
// with kevinburke/ssh_config so comments and include directives, which the
// tokenizer never sees, can be reported.
func Lint(content string) []Finding {
	var findings []Finding

	res := Parse(content)
	for _, tok := range res.Skipped {
		findings = append(findings, Finding{
			Line:     tok.Line,
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("global directive %s appears before the first Host line and will be dropped on save", tok.Key),
		})
	}

	inBlock := false
	for _, tok := range Tokenize(content) {
		switch strings.ToLower(tok.Key) {
		case "host":
			inBlock = true
			if len(strings.Fields(tok.Value)) > 1 {
				findings = append(findings, Finding{
					Line:     tok.Line,
					Severity: SeverityInfo,
					Message:  fmt.Sprintf("Host %q has several patterns; it is managed as one profile with that literal alias", tok.Value),
				})
			} else if strings.ContainsAny(tok.Value, "*?!") {
				findings = append(findings, Finding{
					Line:     tok.Line,
					Severity: SeverityInfo,
					Message:  fmt.Sprintf("Host %q is a pattern; it is managed as a literal profile", tok.Value),
				})
			}
		case "match":
			findings = append(findings, Finding{
				Line:     tok.Line,
				Severity: SeverityWarn,
				Message:  "Match blocks are not supported; their directives are merged into the preceding Host block on save",
			})
		case "port":
			if inBlock && strings.TrimSpace(tok.Value) == "22" {
				findings = append(findings, Finding{
					Line:     tok.Line,
					Severity: SeverityInfo,
					Message:  "explicit Port 22 is the default and will be omitted on save",
				})
			}
		}
	}

	cfg, err := ssh_config.Decode(strings.NewReader(content))
	if err != nil {
		findings = append(findings, Finding{Severity: SeverityWarn, Message: fmt.Sprintf("ssh_config decoder: %v", err)})
		sortFindings(findings)
		return findings
	}

	comments := 0
	for _, h := range cfg.Hosts {
		if h.EOLComment != "" {
			comments++
		}
		seen := map[string]int{}
		for _, node := range h.Nodes {
			switch n := node.(type) {
			case *ssh_config.Empty:
				if n.Comment != "" {
					comments++
				}
			case *ssh_config.Include:
				findings = append(findings, Finding{
					Line:     n.Pos().Line,
					Severity: SeverityWarn,
					Message:  "Include is kept as an opaque option of its block; included hosts are not managed",
				})
			case *ssh_config.KV:
				if n.Comment != "" {
					comments++
				}
				key := strings.ToLower(n.Key)
				if key == "host" || multiValueKeys[key] {
					continue
				}
				if first, dup := seen[key]; dup {
					findings = append(findings, Finding{
						Line:     n.Pos().Line,
						Severity: SeverityWarn,
						Message:  fmt.Sprintf("%s repeats line %d; OpenSSH uses the first value but only the last one is kept", n.Key, first),
					})
					continue
				}
				seen[key] = n.Pos().Line
			}
		}
	}
	if comments > 0 {
		findings = append(findings, Finding{
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("%d comment(s) will be removed on save", comments),
		})
	}
	sortFindings(findings)
	return findings
}

func sortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		li, lj := findings[i].Line, findings[j].Line
		if (li == 0) != (lj == 0) {
			return lj == 0
		}
		return li < lj
	})
}
