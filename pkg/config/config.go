package config

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path"

	"gopkg.in/yaml.v2"

	"github.com/pgdbg/pgdbg/pkg/alias"
	"github.com/pgdbg/pgdbg/pkg/tagged"
)

const (
	configDir   string = ".pgdbg"
	configFile  string = "config.yml"
	historyFile string = ".pgdbg_history"
)

// Scripts lists the starlark hook files loaded into each walker.
type Scripts struct {
	Expr []string `yaml:"expr"`
	Plan []string `yaml:"plan"`
}

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Commands aliases.
	Aliases map[string][]string `yaml:"aliases"`

	// DebugInfoDirectories is the list of build-id directories searched
	// for the separate debug info file of a stripped postgres executable.
	DebugInfoDirectories []string `yaml:"debug-info-directories"`

	// ListTags overrides the node tags of the four List payload kinds,
	// they change across PostgreSQL major versions.
	ListTags *tagged.Tags `yaml:"list-tags,omitempty"`

	// DisplayFields extends the fields shown for expression nodes. A type
	// mapped to an empty list is not described at all.
	DisplayFields map[string][]string `yaml:"display-fields,omitempty"`

	// MaxAliasLen is the maximum length of generated alias names.
	MaxAliasLen int `yaml:"max-alias-len,omitempty"`

	// Scripts are loaded, in order, when a walker is created.
	Scripts Scripts `yaml:"scripts"`

	// Alias color (3/4 bit color codes as defined
	// here: https://en.wikipedia.org/wiki/ANSI_escape_code#Colors), 0
	// disables colors.
	Color *int `yaml:"color,omitempty"`
}

// Tags returns the configured list tags, or the default ones.
func (c *Config) Tags() tagged.Tags {
	if c.ListTags == nil {
		return tagged.DefaultTags
	}
	return *c.ListTags
}

// AliasLen returns the configured maximum alias length, or the default
// one.
func (c *Config) AliasLen() int {
	if c.MaxAliasLen <= 0 {
		return alias.DefaultMaxLen
	}
	return c.MaxAliasLen
}

// AliasColor returns the color code used for aliases, 32 (green) if
// unset.
func (c *Config) AliasColor() int {
	if c.Color == nil {
		return 32
	}
	return *c.Color
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Printf("Could not create config directory: %v.", err)
		return &Config{}
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.", err)
		return &Config{}
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			fmt.Printf("Error creating default config file: %v", err)
			return &Config{}
		}
	}
	defer func() {
		err := f.Close()
		if err != nil {
			fmt.Printf("Closing config file failed: %v.", err)
		}
	}()

	c, err := decode(f)
	if err != nil {
		fmt.Printf("Unable to decode config file: %v.", err)
		return &Config{}
	}
	return c
}

// LoadConfigFrom reads the configuration at path. Unlike LoadConfig it
// does not create a default file and reports errors.
func LoadConfigFrom(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("unable to decode %s: %v", path, err)
	}
	return c, nil
}

func decode(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return f, nil
}

func writeDefaultConfig(w io.Writer) error {
	_, err := io.WriteString(w,
		`# Configuration file for pgdbg.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Uncomment the following line and set your preferred ANSI foreground color
# for aliases (if unset, default is 32, green; 0 disables colors).
# See https://en.wikipedia.org/wiki/ANSI_escape_code#3/4_bit
# color: 32

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]

# Node tags of the List payload kinds. The defaults match PostgreSQL 13 to 16.
# list-tags: {ptr: 1, int: 451, oid: 452, xid: 453}

# Extra fields printed for expression nodes, in addition to the built in ones.
# A field written as "name:value" is only printed when it has that value.
display-fields:
  # RelabelType: ["resulttype"]

# Maximum length of generated alias names (a..z, aa..zz).
# max-alias-len: 2

# Starlark files defining show_, walk_ and cast_ hooks.
scripts:
  expr: []
  plan: []

# List of directories to use when searching for separate debug info files.
debug-info-directories: ["/usr/lib/debug/.build-id"]
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	if dir := os.Getenv("PGDBG_CONFIG_DIR"); dir != "" {
		return path.Join(dir, file), nil
	}
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}

// HistoryFilePath returns the path of the REPL history file.
func HistoryFilePath() (string, error) {
	return GetConfigFilePath(historyFile)
}
