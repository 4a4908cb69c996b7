// Package config handles loading, saving, and resolving the RebaseKeeper
// settings file and the flat project list.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

const (
	// LocalConfigFilename is the per-directory RebaseKeeper config file.
	LocalConfigFilename = ".rebasekeeper.yaml"
	// ConfigAPIVersion is the current config schema apiVersion.
	ConfigAPIVersion = "skaphos.io/rebasekeeper/v1beta1"
	// ConfigKind is the current config schema kind.
	ConfigKind = "RebaseKeeperConfig"
)

// Settings is the machine-level RebaseKeeper configuration.
type Settings struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	// ProjectsRoot is the directory non-absolute project-list entries are
	// resolved against.
	ProjectsRoot string `yaml:"projects_root"`
	// ProjectList is the path to the newline-separated repository list.
	ProjectList string `yaml:"project_list"`
	// Ledger is the path to the branch-tracking ledger file.
	Ledger string `yaml:"ledger"`
	// RemoteName is the remote used for fetch/push/delete operations.
	RemoteName string `yaml:"remote_name"`
	// TimeoutSeconds bounds each per-repository git operation.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// FeatureBranchPatterns are doublestar globs recognizing feature
	// branches that have no unique commits yet.
	FeatureBranchPatterns []string `yaml:"feature_branch_patterns,omitempty"`
}

// DefaultSettings returns Settings with sensible defaults applied.
func DefaultSettings() Settings {
	return Settings{
		APIVersion:     ConfigAPIVersion,
		Kind:           ConfigKind,
		ProjectList:    "project-list.txt",
		Ledger:         "to-rebase.txt",
		RemoteName:     "origin",
		TimeoutSeconds: 120,
	}
}

// ConfigPath resolves the settings file path from override/env/defaults.
func ConfigPath(override string) (string, error) {
	if override != "" {
		if isConfigFilePath(override) {
			return override, nil
		}
		return filepath.Join(override, "config.yaml"), nil
	}

	if env := os.Getenv("REBASEKEEPER_CONFIG"); env != "" {
		if isConfigFilePath(env) {
			return env, nil
		}
		return filepath.Join(env, "config.yaml"), nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "rebasekeeper", "config.yaml"), nil
}

// ResolveConfigPath resolves config for runtime commands.
// Order: explicit override, REBASEKEEPER_CONFIG, nearest local dotfile in
// cwd/parents, then the global platform config path.
func ResolveConfigPath(override, cwd string) (string, error) {
	if override != "" || os.Getenv("REBASEKEEPER_CONFIG") != "" {
		return ConfigPath(override)
	}

	if strings.TrimSpace(cwd) == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}

	localPath, err := FindNearestConfigPath(cwd)
	if err != nil {
		return "", err
	}
	if localPath != "" {
		return localPath, nil
	}

	return ConfigPath("")
}

// FindNearestConfigPath searches cwd and each parent directory for
// .rebasekeeper.yaml. It returns an empty string when none is found.
func FindNearestConfigPath(cwd string) (string, error) {
	dir := cwd
	for {
		candidate := filepath.Join(dir, LocalConfigFilename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if err != nil && !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load reads the settings file from the given path.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultSettings()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applySettingsGVK(&cfg)
	if err := validateSettingsGVK(&cfg); err != nil {
		return nil, err
	}

	defaults := DefaultSettings()
	if strings.TrimSpace(cfg.ProjectList) == "" {
		cfg.ProjectList = defaults.ProjectList
	}
	if strings.TrimSpace(cfg.Ledger) == "" {
		cfg.Ledger = defaults.Ledger
	}
	if strings.TrimSpace(cfg.RemoteName) == "" {
		cfg.RemoteName = defaults.RemoteName
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = defaults.TimeoutSeconds
	}

	return &cfg, nil
}

// Save writes the settings to the given path.
func Save(cfg *Settings, path string) error {
	if cfg == nil {
		return errors.New("settings are nil")
	}
	applySettingsGVK(cfg)
	if err := validateSettingsGVK(cfg); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ResolvePath resolves a settings-relative path against the directory
// containing the settings file. Absolute paths are returned unchanged.
func ResolvePath(configPath, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	if filepath.IsAbs(value) || strings.TrimSpace(configPath) == "" {
		return filepath.Clean(value)
	}
	return filepath.Clean(filepath.Join(filepath.Dir(configPath), value))
}

func isConfigFilePath(path string) bool {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, "config.yaml") || strings.HasSuffix(lower, "config.yml") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func applySettingsGVK(cfg *Settings) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = ConfigAPIVersion
	}
	if strings.TrimSpace(cfg.Kind) == "" {
		cfg.Kind = ConfigKind
	}
}

func validateSettingsGVK(cfg *Settings) error {
	if cfg == nil {
		return errors.New("settings are nil")
	}
	if cfg.APIVersion != ConfigAPIVersion {
		return fmt.Errorf("unsupported config apiVersion %q (expected %q)", cfg.APIVersion, ConfigAPIVersion)
	}
	if cfg.Kind != ConfigKind {
		return fmt.Errorf("unsupported config kind %q (expected %q)", cfg.Kind, ConfigKind)
	}
	return nil
}
