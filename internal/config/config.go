package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// ErrConfiguration is wrapped by every error returned from LoadFromEnv.
var ErrConfiguration = errors.New("configuration error")

const (
	SinkMQTT   = "mqtt"
	SinkInflux = "influx"
	SinkKafka  = "kafka"
	SinkSQLite = "sqlite"
)

type LogFile struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	LogFile  LogFile

	BLEAdapter string
	// Sensors maps lowercase hardware addresses to location labels.
	Sensors        map[string]string
	DiscoveryTime  time.Duration
	SampleInterval time.Duration
	Measurement    string
	Sinks          []string
	BridgeSinks    []string

	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	KafkaBrokers []string
	KafkaTopic   string

	SQLitePath         string
	SQLiteLogQueries   bool
	SQLiteMaxOpenConns int

	HTTPAddr string
}

func LoadFromEnv() (Config, error) {
	envFile := getenv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: load %s: %w", ErrConfiguration, envFile, err)
	}

	appEnv := getenv("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("%w: invalid APP_ENV %q (allowed: dev, prod)", ErrConfiguration, appEnv)
	}

	level, err := parseLogLevel(getenv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	logFile := LogFile{Path: getenv("LOG_FILE", "")}
	if logFile.MaxSizeMB, err = getInt("LOG_FILE_MAX_SIZE_MB", 10); err != nil {
		return Config{}, err
	}
	if logFile.MaxBackups, err = getInt("LOG_FILE_MAX_BACKUPS", 3); err != nil {
		return Config{}, err
	}
	if logFile.MaxAgeDays, err = getInt("LOG_FILE_MAX_AGE_DAYS", 28); err != nil {
		return Config{}, err
	}

	sensors, err := loadSensors(getenv("SENSORS", ""), getenv("SENSORS_FILE", ""))
	if err != nil {
		return Config{}, err
	}

	discoveryTime, err := getPositiveDuration("DISCOVERY_TIME", "4s")
	if err != nil {
		return Config{}, err
	}
	sampleInterval, err := getPositiveDuration("SAMPLE_INTERVAL", "30s")
	if err != nil {
		return Config{}, err
	}
	if sampleInterval < discoveryTime {
		slog.Warn("SAMPLE_INTERVAL shorter than DISCOVERY_TIME; cycles will run back to back",
			"sample_interval", sampleInterval, "discovery_time", discoveryTime)
	}

	sinks, err := parseSinks("SINKS", getenv("SINKS", SinkMQTT))
	if err != nil {
		return Config{}, err
	}
	bridgeSinks, err := parseSinks("BRIDGE_SINKS", getenv("BRIDGE_SINKS", SinkInflux))
	if err != nil {
		return Config{}, err
	}
	for _, s := range bridgeSinks {
		if s == SinkMQTT {
			return Config{}, fmt.Errorf("%w: BRIDGE_SINKS must not contain %q", ErrConfiguration, SinkMQTT)
		}
	}

	mqttPortStr := getenv("MQTT_PORT", "1883")
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil || mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("%w: invalid MQTT_PORT %q", ErrConfiguration, mqttPortStr)
	}
	mqttBroker := getenv("MQTT_BROKER", "localhost")
	if strings.ContainsAny(mqttBroker, "/ ") {
		return Config{}, fmt.Errorf("%w: invalid MQTT_BROKER %q (host name expected)", ErrConfiguration, mqttBroker)
	}

	sqliteLogQueries, err := getBool("SQLITE_LOG_QUERIES", false)
	if err != nil {
		return Config{}, err
	}
	sqliteMaxOpenConns, err := getInt("SQLITE_MAX_OPEN_CONNS", 1)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:         appEnv,
		LogLevel:       level,
		LogFile:        logFile,
		BLEAdapter:     getenv("BLE_ADAPTER", "hci0"),
		Sensors:        sensors,
		DiscoveryTime:  discoveryTime,
		SampleInterval: sampleInterval,
		Measurement:    getenv("MEASUREMENT", "temperature"),
		Sinks:          sinks,
		BridgeSinks:    bridgeSinks,

		MQTTBroker:      mqttBroker,
		MQTTPort:        mqttPort,
		MQTTClientID:    getenv("MQTT_CLIENT_ID", "thermobeacon-"+uuid.NewString()[:8]),
		MQTTUsername:    getenv("MQTT_USERNAME", ""),
		MQTTPassword:    os.Getenv("MQTT_PASSWORD"),
		MQTTTopicPrefix: getenv("MQTT_TOPIC_PREFIX", ""),

		InfluxURL:    getenv("INFLUXDB_URL", ""),
		InfluxToken:  getenv("INFLUXDB_TOKEN", ""),
		InfluxOrg:    getenv("INFLUXDB_ORG", ""),
		InfluxBucket: getenv("INFLUXDB_BUCKET", ""),

		KafkaBrokers: splitList(getenv("KAFKA_BROKERS", "")),
		KafkaTopic:   getenv("KAFKA_TOPIC", "thermobeacon"),

		SQLitePath:         getenv("SQLITE_PATH", "data/thermobeacon.db"),
		SQLiteLogQueries:   sqliteLogQueries,
		SQLiteMaxOpenConns: sqliteMaxOpenConns,

		HTTPAddr: getenv("HTTP_ADDR", ""),
	}

	if err := cfg.validateEndpoints(cfg.Sinks); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateBridge checks the endpoints of the sinks the bridge forwards to.
func (c Config) ValidateBridge() error {
	return c.validateEndpoints(c.BridgeSinks)
}

func (c Config) validateEndpoints(sinks []string) error {
	uses := func(name string) bool {
		for _, s := range sinks {
			if s == name {
				return true
			}
		}
		return false
	}
	if uses(SinkInflux) {
		if c.InfluxURL == "" || c.InfluxToken == "" || c.InfluxOrg == "" || c.InfluxBucket == "" {
			return fmt.Errorf("%w: influx sink requires INFLUXDB_URL, INFLUXDB_TOKEN, INFLUXDB_ORG and INFLUXDB_BUCKET", ErrConfiguration)
		}
		u, err := url.Parse(c.InfluxURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: invalid INFLUXDB_URL %q", ErrConfiguration, c.InfluxURL)
		}
	}
	if uses(SinkKafka) && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("%w: kafka sink requires KAFKA_BROKERS", ErrConfiguration)
	}
	if uses(SinkSQLite) && c.SQLitePath == "" {
		return fmt.Errorf("%w: sqlite sink requires SQLITE_PATH", ErrConfiguration)
	}
	return nil
}

func parseSinks(key, s string) ([]string, error) {
	names := splitList(strings.ToLower(s))
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %s must name at least one sink", ErrConfiguration, key)
	}
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		switch n {
		case SinkMQTT, SinkInflux, SinkKafka, SinkSQLite:
		default:
			return nil, fmt.Errorf("%w: invalid %s entry %q (allowed: mqtt, influx, kafka, sqlite)", ErrConfiguration, key, n)
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", ErrConfiguration, s)
	}
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getInt(key string, def int) (int, error) {
	s := getenv(key, "")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q: %w", ErrConfiguration, key, s, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	s := getenv(key, "")
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: invalid %s %q: %w", ErrConfiguration, key, s, err)
	}
	return b, nil
}

func getPositiveDuration(key, def string) (time.Duration, error) {
	s := getenv(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q: %w", ErrConfiguration, key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %v", ErrConfiguration, key, d)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
