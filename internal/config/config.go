package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/MiaMao0615/AR-Accompanied/internal/anchor"
	"github.com/MiaMao0615/AR-Accompanied/internal/schedule"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

// FileName is the configuration file looked up in the config dir.
const FileName = "presence.cfg.json"

// EngineConfig holds the loop timing.
type EngineConfig struct {
	TickRate         time.Duration
	ScheduleInterval time.Duration
	SampleInterval   time.Duration
	InboxSize        int
}

// TrackingConfig holds the debounce settings.
type TrackingConfig struct {
	LossGrace              time.Duration
	TreatLimitedAsTracked  bool
	TreatExtendedAsTracked bool
}

// MotionConfig holds the motion defaults used when a schedule record leaves a field unset.
type MotionConfig struct {
	Profile            core.MotionProfile
	Timeout            time.Duration
	FollowCopyRotation bool
	FollowCopyScale    bool
}

// CharacterConfig holds the spawn settings.
type CharacterConfig struct {
	Scale    core.Vec3
	Fallback core.Pose
}

// ClockConfig selects the hour source.
type ClockConfig struct {
	OffsetHours float64
	// FixedHour pins the hour when >= 0.
	FixedHour float64
	Location  *time.Location
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds the sqlite backend settings.
type SQLiteConfig struct {
	Path         string
	DumpInterval time.Duration
}

// WebsocketConfig holds the live stream settings.
type WebsocketConfig struct {
	URL          string
	Secret       string
	WriteTimeout time.Duration
}

// StorageConfig selects and configures the session journal backend.
type StorageConfig struct {
	Type      string
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	Websocket WebsocketConfig
}

// DBConfig holds the postgres connection settings.
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// InfluxConfig holds the InfluxDB telemetry settings.
type InfluxConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Protocol string
	Token    string
	Org      string
	Bucket   string
}

// OTelConfig holds the OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// GraylogConfig holds the GELF sink settings.
type GraylogConfig struct {
	Enabled bool
	Address string
}

// APIConfig holds the upload endpoint settings.
type APIConfig struct {
	ServerURL string
	APIKey    string
}

// SiteConfig geo-references the local frame.
type SiteConfig struct {
	Latitude  float64
	Longitude float64
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./presencelogs")
	viper.SetDefault("session.name", "presence")
	viper.SetDefault("session.tag", "demo")

	viper.SetDefault("engine.tickRate", "16ms")
	viper.SetDefault("engine.scheduleInterval", "1s")
	viper.SetDefault("engine.sampleInterval", "250ms")
	viper.SetDefault("engine.inboxSize", 4096)

	viper.SetDefault("tracking.lossGrace", "3s")
	viper.SetDefault("tracking.treatLimitedAsTracked", false)
	viper.SetDefault("tracking.treatExtendedAsTracked", false)

	viper.SetDefault("motion.moveSpeed", 2.0)
	viper.SetDefault("motion.arriveThreshold", 0.06)
	viper.SetDefault("motion.rotateSpeed", 10.0)
	viper.SetDefault("motion.smoothStop", true)
	viper.SetDefault("motion.moveState", "drawfwalk")
	viper.SetDefault("motion.arriveState", "run")
	viper.SetDefault("motion.timeout", "30s")
	viper.SetDefault("motion.followCopyRotation", true)
	viper.SetDefault("motion.followCopyScale", true)

	viper.SetDefault("character.scale", []float64{0.5, 0.5, 0.5})

	viper.SetDefault("clock.offsetHours", 0.0)
	viper.SetDefault("clock.fixedHour", -1.0)
	viper.SetDefault("clock.timezone", "Local")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "./recordings/presence.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api/v1/stream")
	viper.SetDefault("storage.websocket.secret", "")
	viper.SetDefault("storage.websocket.writeTimeout", "5s")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "presence")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "presence-metrics")
	viper.SetDefault("influx.bucket", "presence")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "presence")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("site.latitude", 0.0)
	viper.SetDefault("site.longitude", 0.0)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetEngineConfig returns the loop timing.
func GetEngineConfig() EngineConfig {
	return EngineConfig{
		TickRate:         viper.GetDuration("engine.tickRate"),
		ScheduleInterval: viper.GetDuration("engine.scheduleInterval"),
		SampleInterval:   viper.GetDuration("engine.sampleInterval"),
		InboxSize:        viper.GetInt("engine.inboxSize"),
	}
}

// GetTrackingConfig returns the debounce settings.
func GetTrackingConfig() TrackingConfig {
	return TrackingConfig{
		LossGrace:              viper.GetDuration("tracking.lossGrace"),
		TreatLimitedAsTracked:  viper.GetBool("tracking.treatLimitedAsTracked"),
		TreatExtendedAsTracked: viper.GetBool("tracking.treatExtendedAsTracked"),
	}
}

// DebounceOptions converts the tracking settings for the anchor package.
func (c TrackingConfig) DebounceOptions() anchor.DebounceOptions {
	return anchor.DebounceOptions{
		LossGrace:              c.LossGrace,
		TreatLimitedAsTracked:  c.TreatLimitedAsTracked,
		TreatExtendedAsTracked: c.TreatExtendedAsTracked,
	}
}

// GetMotionConfig returns the motion defaults.
func GetMotionConfig() MotionConfig {
	return MotionConfig{
		Profile: core.MotionProfile{
			MoveSpeed:       viper.GetFloat64("motion.moveSpeed"),
			ArriveThreshold: viper.GetFloat64("motion.arriveThreshold"),
			RotateSpeed:     viper.GetFloat64("motion.rotateSpeed"),
			SmoothStop:      viper.GetBool("motion.smoothStop"),
			MoveState:       viper.GetString("motion.moveState"),
			ArriveState:     viper.GetString("motion.arriveState"),
		},
		Timeout:            viper.GetDuration("motion.timeout"),
		FollowCopyRotation: viper.GetBool("motion.followCopyRotation"),
		FollowCopyScale:    viper.GetBool("motion.followCopyScale"),
	}
}

// GetCharacterConfig returns the spawn settings. An absent fallback
// leaves the zero pose, which callers treat as "no fallback declared".
func GetCharacterConfig() (CharacterConfig, error) {
	var cfg CharacterConfig
	if err := unmarshalKey("character.scale", &cfg.Scale); err != nil {
		return cfg, fmt.Errorf("character.scale: %w", err)
	}
	if viper.IsSet("character.fallback") {
		if err := unmarshalKey("character.fallback", &cfg.Fallback); err != nil {
			return cfg, fmt.Errorf("character.fallback: %w", err)
		}
		cfg.Fallback = cfg.Fallback.Sanitized()
	}
	return cfg, nil
}

// HasFallback reports whether a fallback pose is configured.
func HasFallback() bool {
	return viper.IsSet("character.fallback")
}

// GetClockConfig returns the hour source settings.
func GetClockConfig() (ClockConfig, error) {
	cfg := ClockConfig{
		OffsetHours: viper.GetFloat64("clock.offsetHours"),
		FixedHour:   viper.GetFloat64("clock.fixedHour"),
		Location:    time.Local,
	}
	if tz := viper.GetString("clock.timezone"); tz != "" && tz != "Local" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return cfg, fmt.Errorf("clock.timezone: %w", err)
		}
		cfg.Location = loc
	}
	return cfg, nil
}

// GetScheduleRecords returns the raw schedule records. Validation happens
// in schedule.NewTable, which drops unparsable records.
func GetScheduleRecords() ([]schedule.Record, error) {
	var out []schedule.Record
	if err := unmarshalKey("schedule", &out); err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}
	return out, nil
}

// GetAnchorConfigs returns the anchors in declaration order.
func GetAnchorConfigs() ([]anchor.Config, error) {
	var out []anchor.Config
	if err := unmarshalKey("anchors", &out); err != nil {
		return nil, fmt.Errorf("anchors: %w", err)
	}
	for i := range out {
		for j := range out[i].Pairs {
			out[i].Pairs[j].Start = out[i].Pairs[j].Start.Sanitized()
			out[i].Pairs[j].Target = out[i].Pairs[j].Target.Sanitized()
		}
	}
	return out, nil
}

// GetStorageConfig returns the journal backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Websocket: WebsocketConfig{
			URL:          viper.GetString("storage.websocket.url"),
			Secret:       viper.GetString("storage.websocket.secret"),
			WriteTimeout: viper.GetDuration("storage.websocket.writeTimeout"),
		},
	}
}

// GetDBConfig returns the postgres settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetGraylogConfig returns the GELF sink settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetAPIConfig returns the upload endpoint settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
	}
}

// GetSiteConfig returns the site geo-reference.
func GetSiteConfig() SiteConfig {
	return SiteConfig{
		Latitude:  viper.GetFloat64("site.latitude"),
		Longitude: viper.GetFloat64("site.longitude"),
	}
}

func unmarshalKey(key string, out any) error {
	return viper.UnmarshalKey(key, out, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		vectorHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)))
}

var (
	vec3Type = reflect.TypeOf(core.Vec3{})
	quatType = reflect.TypeOf(core.Quat{})
)

// vectorHook accepts [x,y,z] for vectors and [x,y,z,w] for quaternions
// in addition to the object form.
func vectorHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != vec3Type && to != quatType {
			return data, nil
		}
		if from.Kind() != reflect.Slice {
			return data, nil
		}
		v := reflect.ValueOf(data)
		f := make([]float64, v.Len())
		for i := range f {
			n, ok := toFloat(v.Index(i).Interface())
			if !ok {
				return nil, fmt.Errorf("element %d of %v is not a number", i, data)
			}
			f[i] = n
		}
		switch {
		case to == vec3Type && len(f) == 3:
			return core.Vec3{X: f[0], Y: f[1], Z: f[2]}, nil
		case to == quatType && len(f) == 4:
			return core.Quat{X: f[0], Y: f[1], Z: f[2], W: f[3]}, nil
		default:
			return nil, fmt.Errorf("%v has %d elements, want %d", data, len(f), map[reflect.Type]int{vec3Type: 3, quatType: 4}[to])
		}
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
