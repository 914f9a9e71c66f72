package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Connection is one saved warehouse connection. Credentials are not
// stored here; they come from the environment at connect time.
type Connection struct {
	Name      string `json:"name"`
	Account   string `json:"account"`
	Username  string `json:"username"`
	Warehouse string `json:"warehouse,omitempty"`
	Database  string `json:"database,omitempty"`
	Schema    string `json:"schema,omitempty"`
}

func connectionsPath() string { return filepath.Join(DBDir(), "connections.json") }
func schemasPath() string     { return filepath.Join(DBDir(), "schemas.json") }

// LoadConnections reads the saved connection catalog, empty when none
// has been written yet.
func LoadConnections() ([]Connection, error) {
	var out []Connection
	err := ReadJSONFile(connectionsPath(), &out)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return out, err
}

// SaveConnections replaces the connection catalog.
func SaveConnections(list []Connection) error {
	return WriteJSONFile(connectionsPath(), list)
}

// LoadSchemas reads the cached warehouse schema catalog as raw JSON.
func LoadSchemas() (map[string]any, error) {
	out := map[string]any{}
	err := ReadJSONFile(schemasPath(), &out)
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	return out, err
}

// SaveSchemas replaces the cached schema catalog.
func SaveSchemas(schemas map[string]any) error {
	return WriteJSONFile(schemasPath(), schemas)
}

// Rule is one user-authored markdown rule file.
type Rule struct {
	Name    string
	Content string
}

// LoadRules reads every markdown file under the rules directory,
// sorted by name. A missing directory means no rules.
func LoadRules() ([]Rule, error) {
	entries, err := os.ReadDir(RulesDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Rule
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(RulesDir(), e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, Rule{
			Name:    strings.TrimSuffix(e.Name(), ".md"),
			Content: string(data),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
