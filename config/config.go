package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/bwfs/bwfs/common"
	"github.com/bwfs/bwfs/disk"
)

const (
	envVarPrefix = "BWFS"
	appName      = "bwfs"
)

type Config struct {
	Layout      disk.Layout `envconfig:"BWFS_LAYOUT"       yaml:"layout"`
	TotalBlocks uint64      `envconfig:"BWFS_TOTAL_BLOCKS" yaml:"totalBlocks"`
	Debug       uint64      `envconfig:"BWFS_DEBUG"        yaml:"debug"`
	FSName      string      `envconfig:"BWFS_FS_NAME"      yaml:"fsName"`
	ReadOnly    bool        `envconfig:"BWFS_READ_ONLY"    yaml:"readOnly"`
	AllowOther  bool        `envconfig:"BWFS_ALLOW_OTHER"  yaml:"allowOther"`
}

func Default() Config {
	return Config{
		Layout:      disk.LayoutDir,
		TotalBlocks: common.DefaultBlocks,
		FSName:      appName,
	}
}

// LoadConfig starts from Default, applies the YAML file named by
// BWFS_CONFIG_FILE (or ~/.config/bwfs.yaml if it exists), then the
// environment.
func LoadConfig() (*Config, error) {
	configFile := os.Getenv(envVarPrefix + "_CONFIG_FILE")
	explicit := configFile != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err == nil {
			configFile = filepath.Join(home, ".config", appName+".yaml")
		}
	}

	c := Default()
	if configFile != "" {
		data, err := ioutil.ReadFile(configFile)
		if err != nil {
			if explicit || !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.UnmarshalStrict(data, &c); err != nil {
			return nil, fmt.Errorf("unmarshaling config file: %w", err)
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if err := c.Layout.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if c.TotalBlocks <= common.DataStart || c.TotalBlocks > common.MaxBlocks {
		return fmt.Errorf("validating config: totalBlocks %d not in %d..%d",
			c.TotalBlocks, common.DataStart+1, common.MaxBlocks)
	}
	if c.FSName == "" {
		return fmt.Errorf("validating config: missing required field `fsName`")
	}
	return nil
}
