package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"sheetflow/internal/errs"
	"sheetflow/internal/manager"
)

// LoadCodeOptionsFile reads code-emission options from a YAML file, as
// supplied to the CLI. A missing path returns the defaults.
func LoadCodeOptionsFile(path string) (manager.CodeOptions, error) {
	if path == "" {
		return manager.DefaultCodeOptions(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return manager.CodeOptions{}, errs.IO("code_options_unreadable",
			"cannot read code options file %s", path).WithCause(err)
	}
	opts := manager.DefaultCodeOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return manager.CodeOptions{}, errs.IO("bad_code_options",
			"cannot parse code options file %s", path).WithCause(err)
	}
	return opts, nil
}
