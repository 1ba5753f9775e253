package instance

import (
	"os"
	"path/filepath"
)

const (
	// ConfigFile is the per-instance configuration file name inside the instance directory.
	ConfigFile = "nuko.toml"
	// ServerJar is the worker binary expected inside the instance directory.
	ServerJar = "server.jar"
	// ServerIcon is where a creation-time icon is copied.
	ServerIcon = "server-icon.png"

	DefaultMinMemory = "2G"
	DefaultMaxMemory = "4G"
	DefaultJava      = "java"
)

// JavaConfig holds the launch parameters of an instance.
type JavaConfig struct {
	MinMemory      string   `toml:"min_memory" json:"min_memory"`
	MaxMemory      string   `toml:"max_memory" json:"max_memory"`
	JavaPath       string   `toml:"java_path,omitempty" json:"java_path,omitempty"`
	AdditionalArgs []string `toml:"additional_args" json:"additional_args"`
}

type MetadataConfig struct {
	CreatedAt       string `toml:"created_at" json:"created_at"`
	LastPlayed      string `toml:"last_played,omitempty" json:"last_played,omitempty"`
	PlayTimeMinutes uint64 `toml:"play_time_minutes" json:"play_time_minutes"`
}

// Config is the on-disk nuko.toml document.
type Config struct {
	ID            string         `toml:"id" json:"id"`
	Name          string         `toml:"name" json:"name"`
	Software      string         `toml:"software" json:"software"`
	Version       string         `toml:"version" json:"version"`
	Loader        string         `toml:"loader,omitempty" json:"loader,omitempty"`
	CustomJarPath string         `toml:"custom_jar_path,omitempty" json:"custom_jar_path,omitempty"`
	Java          JavaConfig     `toml:"java" json:"java"`
	Metadata      MetadataConfig `toml:"metadata" json:"metadata"`
}

// Instance is a resolved instance: its identity, working directory and configuration.
type Instance struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Dir    string `json:"dir"`
	Config Config `json:"config"`
}

// LaunchArgs builds the worker command line:
//
//	<java_path|java> [-Xms<min>] [-Xmx<max>] <additional args...> -jar server.jar nogui
func LaunchArgs(c Config) (string, []string) {
	exe := c.Java.JavaPath
	if exe == "" {
		exe = DefaultJava
	}
	args := make([]string, 0, len(c.Java.AdditionalArgs)+5)
	if c.Java.MinMemory != "" {
		args = append(args, "-Xms"+c.Java.MinMemory)
	}
	if c.Java.MaxMemory != "" {
		args = append(args, "-Xmx"+c.Java.MaxMemory)
	}
	args = append(args, c.Java.AdditionalArgs...)
	args = append(args, "-jar", ServerJar, "nogui")
	return exe, args
}

// DefaultDataDir returns $XDG_DATA_HOME/nuko, falling back to ~/.local/share/nuko.
func DefaultDataDir() (string, error) {
	if x := os.Getenv("XDG_DATA_HOME"); x != "" {
		return filepath.Join(x, "nuko"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "nuko"), nil
}

// DataDir returns the absolute data root, creating it if absent.
// An empty root selects DefaultDataDir.
func DataDir(root string) (string, error) {
	if root == "" {
		d, err := DefaultDataDir()
		if err != nil {
			return "", err
		}
		root = d
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return "", err
	}
	return abs, nil
}
