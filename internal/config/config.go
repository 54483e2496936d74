// Package config loads the workflow's TOML configuration file, following
// the search order from spec.md §6: an environment-variable-specified
// path, then /etc/<app>/config.toml, then a per-user config directory
// (populated with a default file if no source exists).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	appName    = "passari-workflow"
	envVarName = "PASSARI_CONFIG"
)

type LoggingConfig struct {
	Level int `toml:"level"`
}

type DBConfig struct {
	User     string `toml:"user"`
	Password string `toml:"password"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Name     string `toml:"name"`
}

type RedisConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
}

type PackageConfig struct {
	PackageDir         string `toml:"package_dir"`
	ArchiveDir         string `toml:"archive_dir"`
	PreservationDelay  int64  `toml:"preservation_delay"`
	UpdateDelay        int64  `toml:"update_delay"`
}

type DPRESConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	User           string `toml:"user"`
	KeyPath        string `toml:"key_path"`
	KnownHostsPath string `toml:"known_hosts_path"`

	// ContractID and RESTInsecureSkipVerify serve dip-tool's ad-hoc
	// search/download REST calls against DPRES's HTTPS API
	// (/api/2.0/urn:uuid:<contract_id>/...); the sync_processed_sips
	// reconciler never uses them, only SFTP.
	ContractID             string `toml:"contract_id"`
	RESTInsecureSkipVerify bool   `toml:"rest_insecure_skip_verify"`
}

// ToolsConfig names the external binaries that perform the actual
// MuseumPlus download, SIP construction and DPRES transfer work
// (spec.md §1 places these collaborators out of scope for this repo).
// Each is invoked as a subprocess with a JSON request on stdin and a
// JSON response on stdout, the same request/response envelope for all
// four, so operators can point them at whatever implements the
// MuseumPlus/DPRES wire protocols for their deployment.
type ToolsConfig struct {
	DownloaderPath string `toml:"downloader_path"`
	SIPBuilderPath string `toml:"sip_builder_path"`
	UploaderPath   string `toml:"uploader_path"`
	ConfirmPath    string `toml:"confirm_path"`

	// CMSObjectsPath and CMSAttachmentsPath are the subprocess adapters
	// for the CMS paged record source (external.CMSClient), the same
	// JSON-on-stdin/JSON-on-stdout bridge as the other four.
	CMSObjectsPath     string `toml:"cms_objects_path"`
	CMSAttachmentsPath string `toml:"cms_attachments_path"`
}

type Config struct {
	Logging LoggingConfig `toml:"logging"`
	DB      DBConfig      `toml:"db"`
	Redis   RedisConfig   `toml:"redis"`
	Package PackageConfig `toml:"package"`
	DPRES   DPRESConfig   `toml:"dpres"`
	Tools   ToolsConfig   `toml:"tools"`
}

// PreservationDelay and UpdateDelay as time.Duration, for callers that
// want to pass them directly into the eligibility predicate.
func (c Config) PreservationDelay() time.Duration {
	return time.Duration(c.Package.PreservationDelay) * time.Second
}

func (c Config) UpdateDelay() time.Duration {
	return time.Duration(c.Package.UpdateDelay) * time.Second
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name,
	)
}

func (c DPRESConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: 1},
		DB: DBConfig{
			User: "passari", Host: "localhost", Port: 5432, Name: "passari",
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Package: PackageConfig{
			PackageDir:        "/var/lib/passari-workflow/packages",
			ArchiveDir:        "/var/lib/passari-workflow/archive",
			PreservationDelay: 30 * 24 * 3600,
			UpdateDelay:       30 * 24 * 3600,
		},
		DPRES: DPRESConfig{Port: 22, KnownHostsPath: "/var/lib/passari-workflow/known_hosts"},
		Tools: ToolsConfig{
			DownloaderPath:     "passari-download-object",
			SIPBuilderPath:     "passari-create-sip",
			UploaderPath:       "passari-submit-sip",
			ConfirmPath:        "passari-confirm-sip",
			CMSObjectsPath:     "passari-cms-objects",
			CMSAttachmentsPath: "passari-cms-attachments",
		},
	}
}

// searchPaths returns the candidate config file locations in priority
// order, mirroring spec.md §6 exactly.
func searchPaths() ([]string, error) {
	paths := []string{}
	if p := os.Getenv(envVarName); p != "" {
		paths = append(paths, p)
	}
	paths = append(paths, filepath.Join("/etc", appName, "config.toml"))
	userDir, err := os.UserConfigDir()
	if err == nil {
		paths = append(paths, filepath.Join(userDir, appName, "config.toml"))
	}
	return paths, nil
}

// Load searches the well-known locations for a config file, parses the
// first one found, and returns it. If none exist, it writes a default
// config to the per-user location and returns the defaults.
func Load() (Config, string, error) {
	paths, err := searchPaths()
	if err != nil {
		return Config{}, "", err
	}
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Config{}, "", fmt.Errorf("read config %s: %w", p, err)
		}
		cfg := defaultConfig()
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return Config{}, "", fmt.Errorf("parse config %s: %w", p, err)
		}
		return cfg, p, nil
	}

	// Nothing found: populate the per-user location with a default.
	userDir, err := os.UserConfigDir()
	if err != nil {
		return defaultConfig(), "", nil
	}
	dir := filepath.Join(userDir, appName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return defaultConfig(), "", fmt.Errorf("create config dir %s: %w", dir, err)
	}
	defaultPath := filepath.Join(dir, "config.toml")
	cfg := defaultConfig()
	b, err := toml.Marshal(cfg)
	if err != nil {
		return defaultConfig(), "", fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(defaultPath, b, 0o644); err != nil {
		return defaultConfig(), "", fmt.Errorf("write default config %s: %w", defaultPath, err)
	}
	return cfg, defaultPath, nil
}
