package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

const templateHeader = `# counterd configuration
# store.kind: memory | file
# engine.overflow_policy: wrap | strict
`

// Template renders DefaultConfig as TOML.
func Template() (string, error) {
	body, err := toml.Marshal(DefaultConfig())
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return templateHeader + "\n" + string(body), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
