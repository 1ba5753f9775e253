package instance

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "data"), nil)
	require.NoError(t, err)
	return s
}

func TestLaunchArgs(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantExe string
		want    []string
	}{
		{
			name:    "defaults",
			cfg:     Config{Java: JavaConfig{MinMemory: "2G", MaxMemory: "4G"}},
			wantExe: "java",
			want:    []string{"-Xms2G", "-Xmx4G", "-jar", "server.jar", "nogui"},
		},
		{
			name: "override and extra args",
			cfg: Config{Java: JavaConfig{
				JavaPath:       "/opt/jdk21/bin/java",
				MaxMemory:      "8G",
				AdditionalArgs: []string{"-XX:+UseG1GC", "-Dfile.encoding=UTF-8"},
			}},
			wantExe: "/opt/jdk21/bin/java",
			want:    []string{"-Xmx8G", "-XX:+UseG1GC", "-Dfile.encoding=UTF-8", "-jar", "server.jar", "nogui"},
		},
		{
			name:    "no memory flags",
			cfg:     Config{},
			wantExe: "java",
			want:    []string{"-jar", "server.jar", "nogui"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exe, args := LaunchArgs(tt.cfg)
			assert.Equal(t, tt.wantExe, exe)
			assert.Equal(t, tt.want, args)
		})
	}
}

func TestCreateAndResolve(t *testing.T) {
	s := newTestStore(t)

	inst, err := s.Create(CreateRequest{Name: "survival", Software: "paper", Version: "1.21.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, inst.ID)
	assert.Equal(t, filepath.Join(s.Root(), "instances", "survival"), inst.Dir)
	assert.Equal(t, DefaultMinMemory, inst.Config.Java.MinMemory)
	assert.Equal(t, DefaultMaxMemory, inst.Config.Java.MaxMemory)

	eula, err := os.ReadFile(filepath.Join(inst.Dir, "eula.txt"))
	require.NoError(t, err)
	assert.Equal(t, "eula=true", string(eula))

	got, err := s.Resolve(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "survival", got.Name)
	assert.Equal(t, "paper", got.Config.Software)
	assert.Equal(t, inst.Dir, got.Dir)
}

func TestResolveNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Resolve("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Resolve("")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRejectsDuplicatesAndUnsafeNames(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(CreateRequest{Name: "lobby"})
	require.NoError(t, err)

	_, err = s.Create(CreateRequest{Name: "lobby"})
	assert.ErrorIs(t, err, ErrExists)

	for _, name := range []string{"", "..", "../etc", "a/b", "x\\y"} {
		_, err := s.Create(CreateRequest{Name: name})
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestCreateCopiesCustomJarAndIcon(t *testing.T) {
	s := newTestStore(t)
	src := t.TempDir()
	jar := filepath.Join(src, "custom.jar")
	require.NoError(t, os.WriteFile(jar, []byte("jar-bytes"), 0o600))
	icon := filepath.Join(src, "icon.png")
	require.NoError(t, os.WriteFile(icon, []byte("png-bytes"), 0o600))

	inst, err := s.Create(CreateRequest{Name: "modded", CustomJarPath: jar, IconPath: icon})
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(inst.Dir, ServerJar))
	require.NoError(t, err)
	assert.Equal(t, "jar-bytes", string(b))
	b, err = os.ReadFile(filepath.Join(inst.Dir, ServerIcon))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(b))

	plain, err := s.Create(CreateRequest{Name: "plain"})
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(plain.Dir, ServerIcon))
}

func TestFailedCreateLeavesNothingBehind(t *testing.T) {
	tests := []struct {
		name string
		req  CreateRequest
	}{
		{name: "missing jar", req: CreateRequest{Name: "survival", CustomJarPath: "/no/such/server.jar"}},
		{name: "missing icon", req: CreateRequest{Name: "survival", IconPath: "/no/such/icon.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			_, err := s.Create(tt.req)
			require.Error(t, err)
			assert.NoDirExists(t, s.Dir("survival"))

			list, err := s.List()
			require.NoError(t, err)
			assert.Empty(t, list)

			inst, err := s.Create(CreateRequest{Name: "survival"})
			require.NoError(t, err, "retry after a failed create")
			assert.Equal(t, "survival", inst.Name)
		})
	}
}

func TestListSkipsBrokenEntries(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(CreateRequest{Name: "b-world"})
	require.NoError(t, err)
	_, err = s.Create(CreateRequest{Name: "a-world"})
	require.NoError(t, err)

	broken := s.Dir("broken")
	require.NoError(t, os.MkdirAll(broken, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(broken, ConfigFile), []byte("not = [toml"), 0o600))
	require.NoError(t, os.MkdirAll(s.Dir("empty"), 0o750))

	all, err := s.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a-world", all[0].Name)
	assert.Equal(t, "b-world", all[1].Name)
}

func TestListWithoutInstancesDir(t *testing.T) {
	s := newTestStore(t)
	all, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestWatchNotifiesOnCreate(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(ready)
		done <- s.Watch(ctx, func() { calls.Add(1) })
	}()
	<-ready

	require.Eventually(t, func() bool {
		// keep creating until the watcher is attached
		_, _ = s.Create(CreateRequest{Name: "w" + time.Now().Format("150405.000000")})
		return calls.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}
