package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // DISPLAY_TIMEZONE on hosts without zoneinfo

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/cap-alert-service/internal/adapter/store"
	"github.com/couchcryptid/cap-alert-service/internal/domain"
	"github.com/couchcryptid/cap-alert-service/internal/pipeline"
	"github.com/couchcryptid/cap-alert-service/internal/render"
)

// DefaultFeed is the MetService CAP feed.
const DefaultFeed = "https://alerts.metservice.com/cap/rss"

// Config holds all service settings, populated from environment variables
// and optionally a YAML file named by CONFIG_FILE. Environment variables
// take precedence over the file.
type Config struct {
	Feeds         []string
	MinSeverity   domain.Severity
	BoundariesDir string
	OutlinesDir   string

	CacheDB        string
	CacheKnownSize int

	MapMaxWidth  int
	MapMaxHeight int
	OutputFormat render.Format
	OutputImage  string
	Location     *time.Location

	FetchTimeout   time.Duration
	FetchUserAgent string
	IngestPolicy   pipeline.Policy
	PollInterval   time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka publishing is enabled when KafkaBrokers is non-empty.
	KafkaBrokers []string
	KafkaTopic   string
}

// fileConfig mirrors the environment keys in lower case.
type fileConfig struct {
	CapFeeds        []string `yaml:"cap_feeds"`
	MinSeverity     string   `yaml:"min_severity"`
	BoundariesDir   string   `yaml:"boundaries_dir"`
	OutlinesDir     string   `yaml:"outlines_dir"`
	CacheDB         string   `yaml:"cache_db"`
	CacheKnownSize  string   `yaml:"cache_known_size"`
	MapMaxWidth     string   `yaml:"map_max_width"`
	MapMaxHeight    string   `yaml:"map_max_height"`
	OutputFormat    string   `yaml:"output_format"`
	OutputImage     string   `yaml:"output_image"`
	DisplayTimezone string   `yaml:"display_timezone"`
	FetchTimeout    string   `yaml:"fetch_timeout"`
	FetchUserAgent  string   `yaml:"fetch_user_agent"`
	IngestPolicy    string   `yaml:"ingest_policy"`
	PollInterval    string   `yaml:"poll_interval"`
	HTTPAddr        string   `yaml:"http_addr"`
	LogLevel        string   `yaml:"log_level"`
	LogFormat       string   `yaml:"log_format"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	KafkaBrokers    []string `yaml:"kafka_brokers"`
	KafkaTopic      string   `yaml:"kafka_topic"`
}

// Load reads configuration, applying defaults where unset.
func Load() (*Config, error) {
	file, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	get := func(key, fileVal, def string) string {
		if fileVal != "" {
			def = fileVal
		}
		return sharedcfg.EnvOrDefault(key, def)
	}

	shutdownTimeout, err := parseShutdownTimeout(file.ShutdownTimeout)
	if err != nil {
		return nil, err
	}

	minSeverity, err := domain.ParseSeverity(get("MIN_SEVERITY", file.MinSeverity, "minor"))
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_SEVERITY: %w", err)
	}
	format, err := render.ParseFormat(get("OUTPUT_FORMAT", file.OutputFormat, "text"))
	if err != nil {
		return nil, fmt.Errorf("invalid OUTPUT_FORMAT: %w", err)
	}
	policy, err := pipeline.ParsePolicy(get("INGEST_POLICY", file.IngestPolicy, "fail-fast"))
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_POLICY: %w", err)
	}
	loc, err := time.LoadLocation(get("DISPLAY_TIMEZONE", file.DisplayTimezone, "Pacific/Auckland"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPLAY_TIMEZONE: %w", err)
	}

	fetchTimeout, err := parsePositiveDuration("FETCH_TIMEOUT", get("FETCH_TIMEOUT", file.FetchTimeout, "30s"))
	if err != nil {
		return nil, err
	}
	pollInterval, err := time.ParseDuration(get("POLL_INTERVAL", file.PollInterval, "0s"))
	if err != nil || pollInterval < 0 {
		return nil, errors.New("invalid POLL_INTERVAL")
	}

	width, err := parsePositiveInt("MAP_MAX_WIDTH", get("MAP_MAX_WIDTH", file.MapMaxWidth, "1024"))
	if err != nil {
		return nil, err
	}
	height, err := parsePositiveInt("MAP_MAX_HEIGHT", get("MAP_MAX_HEIGHT", file.MapMaxHeight, "1024"))
	if err != nil {
		return nil, err
	}
	// Zero turns the in-memory set off; every claim goes to the database.
	knownSize, err := parseNonNegativeInt("CACHE_KNOWN_SIZE",
		get("CACHE_KNOWN_SIZE", file.CacheKnownSize, strconv.Itoa(store.DefaultKnownSize)))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Feeds:          splitList(get("CAP_FEEDS", strings.Join(file.CapFeeds, ","), DefaultFeed)),
		MinSeverity:    minSeverity,
		BoundariesDir:  get("BOUNDARIES_DIR", file.BoundariesDir, "."),
		OutlinesDir:    get("OUTLINES_DIR", file.OutlinesDir, ""),
		CacheDB:        get("CACHE_DB", file.CacheDB, "_cache/cache.db"),
		CacheKnownSize: knownSize,
		MapMaxWidth:    width,
		MapMaxHeight:   height,
		OutputFormat:   format,
		OutputImage:    get("OUTPUT_IMAGE", file.OutputImage, ""),
		Location:       loc,

		FetchTimeout:   fetchTimeout,
		FetchUserAgent: get("FETCH_USER_AGENT", file.FetchUserAgent, "cap-alert-service/1.0"),
		IngestPolicy:   policy,
		PollInterval:   pollInterval,

		HTTPAddr:        get("HTTP_ADDR", file.HTTPAddr, ":8080"),
		LogLevel:        get("LOG_LEVEL", file.LogLevel, "info"),
		LogFormat:       get("LOG_FORMAT", file.LogFormat, "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaTopic: get("KAFKA_TOPIC", file.KafkaTopic, "cap-alerts"),
	}
	if brokers := get("KAFKA_BROKERS", strings.Join(file.KafkaBrokers, ","), ""); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if len(cfg.Feeds) == 0 {
		return nil, errors.New("CAP_FEEDS is required")
	}
	if cfg.CacheDB == "" {
		return nil, errors.New("CACHE_DB is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read CONFIG_FILE: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse CONFIG_FILE %s: %w", path, err)
	}
	return fc, nil
}

func parseShutdownTimeout(fileVal string) (time.Duration, error) {
	if os.Getenv("SHUTDOWN_TIMEOUT") == "" && fileVal != "" {
		return parsePositiveDuration("SHUTDOWN_TIMEOUT", fileVal)
	}
	return sharedcfg.ParseShutdownTimeout()
}

func parsePositiveDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parsePositiveInt(key, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parseNonNegativeInt(key, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
