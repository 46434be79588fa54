package mediasync

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config carries the full driver configuration. The factory hands the whole
// value to the selected backend; each backend reads only its own section.
type Config struct {
	Driver      string            `yaml:"driver"`
	Local       LocalConfig       `yaml:"local"`
	Minio       MinioConfig       `yaml:"minio"`
	GoogleDrive GoogleDriveConfig `yaml:"google_drive"`
	Azure       AzureConfig       `yaml:"azure"`
}

// LocalConfig configures the local filesystem backend.
type LocalConfig struct {
	Dest string `yaml:"dest"`
}

// MinioConfig configures the S3-compatible object storage backend.
type MinioConfig struct {
	Endpoint      string `yaml:"endpoint"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Secure        bool   `yaml:"secure"`
	Region        string `yaml:"region"`
	Bucket        string `yaml:"bucket"`
	BucketSubpath string `yaml:"bucket_subpath"`
}

// GoogleDriveConfig configures the Google Drive backend.
type GoogleDriveConfig struct {
	ServiceAccountFile string     `yaml:"service_account_file"`
	Folder             string     `yaml:"folder"`
	ShareWith          StringList `yaml:"share_with"`
}

// AzureConfig configures the Azure Blob Storage backend.
type AzureConfig struct {
	ConnectionString string `yaml:"connection_string"`
	Container        string `yaml:"container"`
}

// StringList decodes from either a single YAML scalar or a sequence of
// scalars, so `share_with: user@example.com` and a list of addresses are
// both accepted.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var ss []string
		if err := value.Decode(&ss); err != nil {
			return err
		}
		*l = StringList(ss)
		return nil
	}

	return fmt.Errorf("must be a string or a list of strings")
}

// LoadConfig loads the driver configuration from a file.
// It checks against provided file extensions and
// returns an error if the filetype is unsupported.
func LoadConfig(path string) (Config, error) {
	ext := filepath.Ext(path)

	switch ext {
	case ".yml":
		fallthrough
	case ".yaml":
		return loadConfigYAML(path)
	default:
		return Config{}, fmt.Errorf("unknown file extension for driver configuration '%s'", ext)
	}
}

func loadConfigYAML(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	return LoadConfigReader(f)
}

// LoadConfigReader loads the driver configuration from the YAML in r.
func LoadConfigReader(r io.Reader) (Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
