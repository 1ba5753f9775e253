package instance

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("instance not found")
	ErrExists      = errors.New("instance already exists")
	ErrInvalidName = errors.New("invalid instance name")
)

// Store reads and writes per-instance configuration under <root>/instances/<name>.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore resolves the data root (creating it if needed) and returns a Store over it.
func NewStore(root string, logger *slog.Logger) (*Store, error) {
	abs, err := DataDir(root)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: abs, logger: logger}, nil
}

// Root returns the data root.
func (s *Store) Root() string { return s.root }

// InstancesDir returns <root>/instances.
func (s *Store) InstancesDir() string { return filepath.Join(s.root, "instances") }

// Dir returns the working directory of the instance with the given name.
func (s *Store) Dir(name string) string { return filepath.Join(s.InstancesDir(), name) }

// Resolve finds the instance whose nuko.toml declares id.
func (s *Store) Resolve(id string) (Instance, error) {
	if strings.TrimSpace(id) == "" {
		return Instance{}, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	all, err := s.List()
	if err != nil {
		return Instance{}, err
	}
	for _, inst := range all {
		if inst.ID == id {
			return inst, nil
		}
	}
	return Instance{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List returns every parseable instance sorted by name. Entries whose
// configuration cannot be read are skipped.
func (s *Store) List() ([]Instance, error) {
	entries, err := os.ReadDir(s.InstancesDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Instance{}, nil
		}
		return nil, fmt.Errorf("read instances dir: %w", err)
	}
	out := make([]Instance, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(s.InstancesDir(), e.Name())
		cfg, err := readConfig(dir)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn("skipping instance with unreadable config", "dir", dir, "error", err)
			}
			continue
		}
		out = append(out, Instance{ID: cfg.ID, Name: cfg.Name, Dir: dir, Config: cfg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateRequest describes a new instance. Empty launch fields take defaults.
type CreateRequest struct {
	Name           string   `json:"name"`
	Software       string   `json:"software"`
	Version        string   `json:"version"`
	Loader         string   `json:"loader,omitempty"`
	CustomJarPath  string   `json:"custom_jar_path,omitempty"`
	IconPath       string   `json:"icon_path,omitempty"`
	JavaPath       string   `json:"java_path,omitempty"`
	MinMemory      string   `json:"min_memory,omitempty"`
	MaxMemory      string   `json:"max_memory,omitempty"`
	AdditionalArgs []string `json:"additional_args,omitempty"`
}

// Create lays out a new instance directory with nuko.toml and eula.txt.
// If CustomJarPath is set it is copied to server.jar; otherwise the jar is
// expected to be provided by an installer. IconPath, if set, is copied to
// server-icon.png. On failure the directory is removed again.
func (s *Store) Create(req CreateRequest) (_ Instance, err error) {
	if !isSafeName(req.Name) {
		return Instance{}, fmt.Errorf("%w: %q", ErrInvalidName, req.Name)
	}
	dir := s.Dir(req.Name)
	if _, err := os.Stat(dir); err == nil {
		return Instance{}, fmt.Errorf("%w: %s", ErrExists, req.Name)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Instance{}, fmt.Errorf("create instance dir: %w", err)
	}
	defer func() {
		if err != nil {
			if rerr := os.RemoveAll(dir); rerr != nil {
				s.logger.Warn("remove partial instance", "dir", dir, "error", rerr)
			}
		}
	}()
	cfg := Config{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Software:      req.Software,
		Version:       req.Version,
		Loader:        req.Loader,
		CustomJarPath: req.CustomJarPath,
		Java: JavaConfig{
			MinMemory:      valOr(req.MinMemory, DefaultMinMemory),
			MaxMemory:      valOr(req.MaxMemory, DefaultMaxMemory),
			JavaPath:       req.JavaPath,
			AdditionalArgs: append([]string{}, req.AdditionalArgs...),
		},
		Metadata: MetadataConfig{CreatedAt: time.Now().UTC().Format(time.RFC3339)},
	}
	if err := writeConfig(dir, cfg); err != nil {
		return Instance{}, err
	}
	if req.CustomJarPath != "" {
		if err := copyFile(req.CustomJarPath, filepath.Join(dir, ServerJar)); err != nil {
			return Instance{}, fmt.Errorf("copy custom jar: %w", err)
		}
	}
	if req.IconPath != "" {
		if err := copyFile(req.IconPath, filepath.Join(dir, ServerIcon)); err != nil {
			return Instance{}, fmt.Errorf("copy icon: %w", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "eula.txt"), []byte("eula=true"), 0o600); err != nil {
		return Instance{}, fmt.Errorf("write eula.txt: %w", err)
	}
	return Instance{ID: cfg.ID, Name: cfg.Name, Dir: dir, Config: cfg}, nil
}

func readConfig(dir string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(filepath.Join(dir, ConfigFile), &cfg); err != nil {
		return Config{}, err
	}
	if cfg.ID == "" {
		return Config{}, errors.New("missing id")
	}
	return cfg, nil
}

func writeConfig(dir string, cfg Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode %s: %w", ConfigFile, err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", ConfigFile, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	// #nosec G304 path supplied by the instance creator
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// isSafeName allows letters, digits, space, '.', '_' and '-'; no separators or "..".
func isSafeName(name string) bool {
	if strings.TrimSpace(name) == "" || name == "." || strings.Contains(name, "..") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == ' ', r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

func valOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
