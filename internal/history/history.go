// Package history remembers when each host alias was last connected to, for
// the "recent" ordering of list and the dashboard.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/treykane/ssh-profiles/internal/appconfig"
	"github.com/treykane/ssh-profiles/internal/model"
)

type store struct {
	LastUsed map[string]int64 `json:"last_used"`
	Count    map[string]int   `json:"count,omitempty"`
}

// Touch records a connection to alias.
func Touch(alias string) error {
	st, err := load()
	if err != nil {
		return err
	}
	st.LastUsed[alias] = time.Now().Unix()
	st.Count[alias]++
	return save(st)
}

// Rename moves the history of oldAlias to newAlias after a host is renamed.
func Rename(oldAlias, newAlias string) error {
	if oldAlias == newAlias {
		return nil
	}
	st, err := load()
	if err != nil {
		return err
	}
	if ts, ok := st.LastUsed[oldAlias]; ok {
		st.LastUsed[newAlias] = ts
		delete(st.LastUsed, oldAlias)
	}
	if n, ok := st.Count[oldAlias]; ok {
		st.Count[newAlias] = n
		delete(st.Count, oldAlias)
	}
	return save(st)
}

// Forget drops alias from the history.
func Forget(alias string) error {
	st, err := load()
	if err != nil {
		return err
	}
	delete(st.LastUsed, alias)
	delete(st.Count, alias)
	return save(st)
}

// LastUsed returns last connection timestamps by alias.
func LastUsed() (map[string]int64, error) {
	st, err := load()
	if err != nil {
		return nil, err
	}
	return st.LastUsed, nil
}

// SortHostsRecent returns a new slice sorted by recent activity (desc), then
// by registry order.
func SortHostsRecent(hosts []model.Host, lastUsed map[string]int64) []model.Host {
	out := append([]model.Host(nil), hosts...)
	sort.SliceStable(out, func(i, j int) bool {
		return lastUsed[out[i].Alias] > lastUsed[out[j].Alias]
	})
	return out
}

func filePath() (string, error) {
	return appconfig.HistoryFilePath()
}

func load() (store, error) {
	empty := store{LastUsed: map[string]int64{}, Count: map[string]int{}}
	path, err := filePath()
	if err != nil {
		return store{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return store{}, err
	}
	var st store
	if err := json.Unmarshal(b, &st); err != nil {
		return empty, nil
	}
	if st.LastUsed == nil {
		st.LastUsed = map[string]int64{}
	}
	if st.Count == nil {
		st.Count = map[string]int{}
	}
	return st, nil
}

func save(st store) error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
