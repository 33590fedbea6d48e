package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-driven setting. It is loaded once in main
// and passed by pointer into the components that need it.
type Config struct {
	Host            string
	Port            int
	MaxFileSize     int64
	UploadDir       string
	ConvertedDir    string
	TempDir         string
	AllowedExts     []string // empty means "everything the catalog accepts"
	FFmpegPath      string
	FFProbePath     string
	MaxConversions  int
	ConvertTimeout  time.Duration
	CleanupInterval time.Duration
	Retention       time.Duration
	WatchDir        string
	WatchTargets    map[string]string // category -> default output extension
	DBPath          string
	LogLevel        string
}

// Load reads configuration from the environment. Malformed values are a
// startup failure, not a silent fallback.
func Load() (*Config, error) {
	cfg := &Config{
		Host:         getEnv("HOST", "0.0.0.0"),
		UploadDir:    getEnv("UPLOAD_FOLDER", "uploads"),
		ConvertedDir: getEnv("CONVERTED_FOLDER", "converted"),
		TempDir:      getEnv("TEMP_FOLDER", "temp"),
		FFmpegPath:   getEnv("FFMPEG_PATH", "ffmpeg"),
		FFProbePath:  getEnv("FFPROBE_PATH", "ffprobe"),
		WatchDir:     os.Getenv("WATCH_DIR"),
		DBPath:       getEnv("DB_PATH", "data/history.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		AllowedExts:  splitAndTrim(os.Getenv("ALLOWED_EXTENSIONS")),
	}

	var err error
	if cfg.Port, err = getEnvInt("PORT", 8000); err != nil {
		return nil, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("config: PORT out of range: %d", cfg.Port)
	}
	if cfg.MaxFileSize, err = getEnvSize("MAX_FILE_SIZE", 500<<20); err != nil {
		return nil, err
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("config: MAX_FILE_SIZE must be positive")
	}
	if cfg.MaxConversions, err = getEnvInt("MAX_CONVERSIONS", runtime.NumCPU()); err != nil {
		return nil, err
	}
	if cfg.MaxConversions <= 0 {
		return nil, fmt.Errorf("config: MAX_CONVERSIONS must be positive")
	}
	if cfg.ConvertTimeout, err = getEnvDuration("CONVERT_TIMEOUT", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CleanupInterval, err = getEnvDuration("CLEANUP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.Retention, err = getEnvDuration("RETENTION", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.WatchTargets, err = parseWatchTargets(getEnv("WATCH_TARGETS", "audio=mp3,video=mp4,image=webp")); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) HTTPAddr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// parseWatchTargets parses "audio=mp3,video=mp4" into a category map.
func parseWatchTargets(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range splitAndTrim(s) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("config: WATCH_TARGETS entry %q is not category=ext", pair)
		}
		out[strings.TrimSpace(k)] = strings.ToLower(strings.TrimSpace(v))
	}
	return out, nil
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer", key, v)
	}
	return i, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a duration", key, v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", key)
	}
	return d, nil
}

// getEnvSize parses a byte size that may carry a KB/MB/GB suffix, e.g.
// "500MB", "2GB" or a plain byte count.
func getEnvSize(key string, def int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v := raw
	mult := int64(1)
	switch upper := strings.ToUpper(v); {
	case strings.HasSuffix(upper, "GB"):
		mult = 1 << 30
		v = v[:len(v)-2]
	case strings.HasSuffix(upper, "MB"):
		mult = 1 << 20
		v = v[:len(v)-2]
	case strings.HasSuffix(upper, "KB"):
		mult = 1 << 10
		v = v[:len(v)-2]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("config: %s=%q is not a size", key, raw)
	}
	return n * mult, nil
}
