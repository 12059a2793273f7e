package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/xerrors"
)

// FromFile loads the syncer config from a toml file, then applies
// METASYNC_* environment overrides. A missing file yields the defaults.
func FromFile(path string) (*SyncerCfg, error) {
	cfg := DefaultSyncerCfg()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, xerrors.Errorf("decode config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, xerrors.Errorf("stat config %s: %w", path, err)
	}

	if err := envconfig.Process("METASYNC", cfg); err != nil {
		return nil, xerrors.Errorf("apply env overrides: %w", err)
	}

	return cfg, nil
}
