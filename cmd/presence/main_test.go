package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MiaMao0615/AR-Accompanied/internal/clock"
	"github.com/MiaMao0615/AR-Accompanied/internal/config"
	"github.com/MiaMao0615/AR-Accompanied/internal/database"
	"github.com/MiaMao0615/AR-Accompanied/internal/dispatcher"
	"github.com/MiaMao0615/AR-Accompanied/internal/influx"
	gormstorage "github.com/MiaMao0615/AR-Accompanied/internal/storage/gorm"
	"github.com/MiaMao0615/AR-Accompanied/internal/storage/memory"
	sqlitestorage "github.com/MiaMao0615/AR-Accompanied/internal/storage/sqlite"
	wsstorage "github.com/MiaMao0615/AR-Accompanied/internal/storage/websocket"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

func loadConfig(t *testing.T, body string) string {
	t.Helper()
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(body), 0644))
	require.NoError(t, config.Load(dir))
	return dir
}

func testEnv() storageEnv {
	return storageEnv{
		Tag:       "test",
		Logger:    Logger,
		LogWriter: &bytes.Buffer{},
		LogLevel:  "error",
		Start:     time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
	}
}

func TestHttpToWS(t *testing.T) {
	tests := []struct{ in, want string }{
		{"http://localhost:5000", "ws://localhost:5000"},
		{"https://viewer.example/", "wss://viewer.example"},
		{"ws://already", "ws://already"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpToWS(tt.in), tt.in)
	}
}

func TestSiteFromConfig(t *testing.T) {
	assert.Nil(t, siteFromConfig(config.SiteConfig{}))
	assert.NotNil(t, siteFromConfig(config.SiteConfig{Latitude: 48.1, Longitude: 11.5}))
}

func TestCreateStorageBackend(t *testing.T) {
	loadConfig(t, `{}`)
	env := testEnv()

	b, err := createStorageBackend(config.StorageConfig{Type: "memory"}, env)
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)

	b, err = createStorageBackend(config.StorageConfig{Type: "SQLite", SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "p.db")}}, env)
	require.NoError(t, err)
	assert.IsType(t, &sqlitestorage.Backend{}, b)

	b, err = createStorageBackend(config.StorageConfig{Type: "websocket"}, env)
	require.NoError(t, err)
	assert.IsType(t, &wsstorage.Backend{}, b)

	b, err = createStorageBackend(config.StorageConfig{Type: "influx", Memory: config.MemoryConfig{OutputDir: t.TempDir()}}, env)
	require.NoError(t, err)
	assert.IsType(t, &influx.Backend{}, b)

	_, err = createStorageBackend(config.StorageConfig{Type: "cassette"}, env)
	assert.Error(t, err)
}

func TestCreateTelemetry(t *testing.T) {
	loadConfig(t, `{}`)
	env := testEnv()

	mem := memory.New(config.MemoryConfig{}, "t")
	assert.Nil(t, createTelemetry(config.StorageConfig{}, mem, env), "influx disabled by default")

	ib := influx.NewBackend(influx.NewManager(config.InfluxConfig{}, zerolog.Nop(), ""))
	assert.Same(t, ib, createTelemetry(config.StorageConfig{}, ib, env))

	viper.Set("influx.enabled", true)
	assert.NotNil(t, createTelemetry(config.StorageConfig{Memory: config.MemoryConfig{OutputDir: t.TempDir()}}, mem, env))
}

func TestFormatResult(t *testing.T) {
	assert.Equal(t, "ok", formatResult(nil))
	assert.Equal(t, "queued", formatResult("queued"))
	assert.Equal(t, "TRACKED", formatResult(core.TierTracked))

	out := formatResult(core.Status{Tick: 3, AnchorID: "A"})
	var st core.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, uint64(3), st.Tick)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func TestReadCommands(t *testing.T) {
	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	t.Cleanup(d.Close)

	var seen [][]string
	require.NoError(t, d.Register(":ECHO:", func(e dispatcher.Event) (any, error) {
		seen = append(seen, e.Args)
		return strings.Join(e.Args, ","), nil
	}))
	require.NoError(t, d.Register(":FAIL:", func(e dispatcher.Event) (any, error) {
		return nil, errors.New("nope")
	}))

	in := strings.NewReader("# comment\n\n:echo:|a| \"b\" \n:FAIL:\n:MISSING:\n")
	var out bytes.Buffer
	require.NoError(t, readCommands(context.Background(), in, d, &out))

	assert.Equal(t, [][]string{{"a", "b"}}, seen)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, ":ECHO:|a,b", lines[0])
	assert.Equal(t, ":FAIL:|error|nope", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], ":MISSING:|error|"))
}

func TestReadCommands_Cancelled(t *testing.T) {
	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	t.Cleanup(d.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = readCommands(ctx, strings.NewReader(":STATUS:\n"), d, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

const sessionConfig = `{
	"logsDir": %q,
	"clock": {"fixedHour": 9},
	"schedule": [{"id": "A", "startTime": "08:00", "endTime": "12:00"}],
	"anchors": [{"name": "poster", "pairs": [
		{"spotId": "A", "start": {"position": [0, 0, 0]}, "target": {"position": [1, 0, 0]}}
	]}],
	"character": {"fallback": {"position": [0, 0, -5]}},
	"engine": {"sampleInterval": "50ms"},
	"storage": {"type": "memory", "memory": {"outputDir": %q, "compressOutput": false}}
}`

func TestEngineDependencies(t *testing.T) {
	tmp := t.TempDir()
	loadConfig(t, fmt.Sprintf(sessionConfig, tmp, tmp))

	deps, err := engineDependencies(clock.Real(), Logger)
	require.NoError(t, err)
	require.Len(t, deps.Anchors, 1)
	assert.Equal(t, "poster", deps.Anchors[0].Name)
	require.NotNil(t, deps.Fallback)
	pose, ok := deps.Fallback.WorldPose()
	require.True(t, ok)
	assert.Equal(t, core.Vec3{Z: -5}, pose.Position)
	assert.Equal(t, 9.0, deps.Hours.CurrentHour())
	id, ok := deps.Schedule.Resolve(9)
	require.True(t, ok)
	assert.Equal(t, "A", id)
	assert.Equal(t, 50*time.Millisecond, deps.SampleInterval)
}

func TestRunSession_Memory(t *testing.T) {
	outDir := t.TempDir()
	loadConfig(t, fmt.Sprintf(sessionConfig, t.TempDir(), outDir))

	input := filepath.Join(t.TempDir(), "script.txt")
	require.NoError(t, os.WriteFile(input, []byte(":TRACKING:STATUS:|poster|TRACKED\n:STATUS:\n"), 0644))

	statusFile := filepath.Join(t.TempDir(), "status.txt")
	err := runSession(context.Background(), options{
		logLevel:    "error",
		input:       input,
		linger:      1500 * time.Millisecond,
		sessionName: "script",
		statusFile:  statusFile,
	})
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(outDir, "script_*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	var export memory.SessionExport
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Equal(t, "script", export.SessionName)
	assert.NotEmpty(t, export.Tracking, "the tracked anchor is journaled")
	assert.NotEmpty(t, export.Transitions)

	status, err := os.ReadFile(statusFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(status), "09:00 - "), string(status))
	assert.False(t, SessionContext.Active())
}

func writeDump(t *testing.T, path, name string) {
	t.Helper()
	db, err := database.GetSqliteDB(path)
	require.NoError(t, err)
	b := gormstorage.New(gormstorage.Dependencies{DB: db, DBLogger: zerolog.Nop()})
	require.NoError(t, b.Init())

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, b.StartSession(&core.Session{Name: name, StartTime: start}))
	require.NoError(t, b.RecordTrackingChange(&core.TrackingChange{Time: start, AnchorID: "poster", SpotID: "A", Tracked: true}))
	require.NoError(t, b.EndSession())
	require.NoError(t, b.Close())

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestExportSessions(t *testing.T) {
	dumps := t.TempDir()
	out := t.TempDir()
	loadConfig(t, fmt.Sprintf(`{"storage": {"memory": {"outputDir": %q, "compressOutput": false}}}`, out))

	writeDump(t, filepath.Join(dumps, "first.db"), "first")
	writeDump(t, filepath.Join(dumps, "second.db"), "second")
	require.NoError(t, os.WriteFile(filepath.Join(dumps, "notes.txt"), []byte("x"), 0644))

	t.Run("single file", func(t *testing.T) {
		paths, err := exportSessions([]string{filepath.Join(dumps, "first.db")})
		require.NoError(t, err)
		require.Len(t, paths, 1)
		base := filepath.Base(paths[0])
		assert.True(t, strings.HasPrefix(base, "first_"), base)
		assert.True(t, strings.HasSuffix(base, ".json"), base)
	})

	t.Run("directory", func(t *testing.T) {
		paths, err := exportSessions([]string{dumps})
		require.NoError(t, err)
		assert.Len(t, paths, 2)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := exportSessions(nil)
		assert.Error(t, err)
		_, err = exportSessions([]string{filepath.Join(dumps, "missing.db")})
		assert.Error(t, err)
		_, err = exportSessions([]string{filepath.Join(dumps, "first.db"), "abc"})
		assert.Error(t, err)
	})
}
