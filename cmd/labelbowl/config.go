package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Noofbiz/labelbowl/platform"
)

// bucketConfig points at a dataset exported to an S3 compatible bucket.
type bucketConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Name      string `yaml:"name"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
}

// config is the YAML configuration. Flags set on the command line take
// precedence over it.
type config struct {
	Platform  platform.Config `yaml:"platform"`
	Bucket    bucketConfig    `yaml:"bucket"`
	Dataset   string          `yaml:"dataset"`
	DataPath  string          `yaml:"data_path"`
	Type      string          `yaml:"type"`
	BatchSize int             `yaml:"batch_size"`
	Workers   int             `yaml:"workers"`
	Seed      *int64          `yaml:"seed"`
	NoShuffle bool            `yaml:"no_shuffle"`
	Balance   bool            `yaml:"balance"`
	Overwrite bool            `yaml:"overwrite"`
	Out       string          `yaml:"out"`
	Visualize int             `yaml:"visualize"`
	Demo      bool            `yaml:"demo"`
}

func defaultConfig() config {
	return config{
		Type:      "box",
		Out:       "output",
		Visualize: 3,
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

// applyEnv fills bucket credentials from the environment when the config
// leaves them empty.
func (c *config) applyEnv() {
	if c.Bucket.AccessKey == "" {
		c.Bucket.AccessKey = os.Getenv("MINIO_ACCESS_KEY")
	}
	if c.Bucket.SecretKey == "" {
		c.Bucket.SecretKey = os.Getenv("MINIO_SECRET_KEY")
	}
	if c.Platform.Token == "" {
		c.Platform.Token = os.Getenv("LABELBOWL_TOKEN")
	}
}
