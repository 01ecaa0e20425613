package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/treykane/ssh-profiles/internal/model"
)

type ParseResult struct {
	Hosts []model.Host
	// Skipped holds directives that appeared before the first Host line.
	// They are not modeled and are dropped on the next save.
	Skipped []Token
}

// ParseFile reads and parses path. A missing file yields an empty result.
func ParseFile(path string) (ParseResult, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ParseResult{}, nil
		}
		return ParseResult{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(string(b)), nil
}

// Parse turns config text into hosts in file order. It never fails: lines it
// cannot use are skipped and bad ports become 22.
func Parse(content string) ParseResult {
	var (
		res     ParseResult
		current *model.Host
	)
	flush := func() {
		if current != nil {
			res.Hosts = append(res.Hosts, *current)
		}
	}

	for _, tok := range Tokenize(content) {
		key := strings.ToLower(tok.Key)
		if key == "host" {
			flush()
			h := model.NewHost(tok.Value)
			current = &h
			continue
		}
		if current == nil {
			res.Skipped = append(res.Skipped, tok)
			continue
		}
		switch key {
		case "hostname":
			current.HostName = tok.Value
		case "user":
			current.User = tok.Value
		case "port":
			current.Port = ParsePort(tok.Value)
		case "identityfile":
			current.IdentityFile = tok.Value
		case "localforward", "remoteforward", "dynamicforward":
			if fwd, ok := ParsePortForward(tok.Key + " " + tok.Value); ok {
				current.PortForwards = append(current.PortForwards, fwd)
				continue
			}
			current.Options[key] = tok.Value
		default:
			current.Options[key] = tok.Value
		}
	}
	flush()
	return res
}
