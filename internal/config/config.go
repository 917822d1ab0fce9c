// Package config loads and persists rowserver's configuration. The file
// format and bootstrap-if-missing behavior follow the teacher's
// internal/config/config.go; environment-variable overrides are layered
// on top via viper.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Table describes the delimited-text schema: N_COLS and (optional)
// field labels. Non-goal preserved: labels are cosmetic only, never
// validated against cell content.
type Table struct {
	ColumnLabels []string `json:"column_labels"`
	FieldSep     string   `json:"field_sep"`
}

func (t Table) NumCols() int {
	if len(t.ColumnLabels) == 0 {
		return 2
	}
	return len(t.ColumnLabels)
}

// FieldSepByte returns the configured single-byte field separator,
// defaulting to ';' (0x3B), the reference value.
func (t Table) FieldSepByte() byte {
	if t.FieldSep == "" {
		return ';'
	}
	return t.FieldSep[0]
}

type Server struct {
	Addr string `json:"addr"`
}

type Index struct {
	Path        string `json:"path"`
	Granularity int    `json:"granularity"`
}

type Config struct {
	FilePath string `json:"file_path"`
	Server   Server `json:"server"`
	Index    Index  `json:"index"`
	Table    Table  `json:"table"`
}

// Default returns the zero-configuration starting point, matching the
// reference's field labels and granularity default of 1000.
func Default() Config {
	return Config{
		FilePath: "/data/weather.csv",
		Server:   Server{Addr: ":8080"},
		Index: Index{
			Path:        "/data/weather.csv.idx",
			Granularity: 1000,
		},
		Table: Table{
			ColumnLabels: []string{"City", "Temperature"},
			FieldSep:     ";",
		},
	}
}

// EnsureConfigFile writes a default config.json to path if nothing is
// there yet, so the service can boot without a hand-authored config.
// Mirrors the teacher's internal/config/bootstrap.go first-run UX.
func EnsureConfigFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return Save(path, Default())
}

// Load reads path (JSON), falling back to Default() for any field left
// unset, then applies ROWSERVER_*-prefixed environment overrides via
// viper. An empty path returns Default() untouched.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	v := viper.New()
	v.SetEnvPrefix("ROWSERVER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if s := v.GetString("FILEPATH"); s != "" {
		cfg.FilePath = s
	}
	if s := v.GetString("PORT"); s != "" {
		cfg.Server.Addr = ":" + strings.TrimPrefix(s, ":")
	}
	if s := v.GetString("INDEXPATH"); s != "" {
		cfg.Index.Path = s
	}
	if n := v.GetInt("INDEXGRANULARITY"); n > 0 {
		cfg.Index.Granularity = n
	}

	if cfg.Index.Granularity < 1 {
		cfg.Index.Granularity = 1000
	}
	if cfg.Table.FieldSep == "" {
		cfg.Table.FieldSep = ";"
	}
	if len(cfg.Table.ColumnLabels) == 0 {
		cfg.Table.ColumnLabels = []string{"City", "Temperature"}
	}

	return cfg, nil
}

// Save persists cfg to path as indented JSON.
func Save(path string, cfg Config) error {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// Validate rejects a config that could not possibly boot: missing
// data-file path or non-positive granularity.
func (c Config) Validate() error {
	if strings.TrimSpace(c.FilePath) == "" {
		return fmt.Errorf("config: file_path is required")
	}
	if c.Index.Granularity < 1 {
		return fmt.Errorf("config: index.granularity must be >= 1")
	}
	if c.Table.NumCols() < 1 {
		return fmt.Errorf("config: table must have at least one column")
	}
	return nil
}
