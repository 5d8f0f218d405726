package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Report drivers.
const (
	ReportsLocal = "local"
	ReportsMinio = "minio"
)

type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		RateLimit      struct {
			Capacity        int     `yaml:"capacity"`
			RefillPerSecond float64 `yaml:"refillPerSecond"`
		} `yaml:"rateLimit"`
	} `yaml:"server"`

	Backend struct {
		BaseURL string        `yaml:"baseURL"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"backend"`

	Cache struct {
		DetailTTL time.Duration `yaml:"detailTTL"`
	} `yaml:"cache"`

	Storage struct {
		// Session holds short-lived detail snapshots.
		Session StorageConfig `yaml:"session"`
		// Local holds the auth token and profile across restarts.
		Local StorageConfig `yaml:"local"`
	} `yaml:"storage"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Reports struct {
		Driver string `yaml:"driver"`
		Dir    string `yaml:"dir"`
		Minio  struct {
			Endpoint   string `yaml:"endpoint"`
			AccessKey  string `yaml:"accessKey"`
			SecretKey  string `yaml:"secretKey"`
			BucketName string `yaml:"bucketName"`
			Region     string `yaml:"region"`
			UseSSL     bool   `yaml:"useSSL"`
		} `yaml:"minio"`
	} `yaml:"reports"`

	Extract struct {
		TesseractPath string `yaml:"tesseractPath"`
		Language      string `yaml:"language"`
	} `yaml:"extract"`

	Guest struct {
		TextLimit int `yaml:"textLimit"`
	} `yaml:"guest"`
}

// StorageConfig selects a key/value backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	// Path is the JSON file for the file driver.
	Path string `yaml:"path"`
	// MaxBytes caps the memory driver; 0 means unlimited.
	MaxBytes int `yaml:"maxBytes"`
	// Scope separates rows of several clients sharing one SQL table.
	Scope string `yaml:"scope"`
}

// Load baca file config.yaml, isi default, lalu terapkan override env.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// LoadOptional is Load for the CLI: a missing file means all defaults, and
// a non-empty backendURL wins over file and env.
func LoadOptional(path, backendURL string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return parse(data, func(c *Config) {
		if backendURL != "" {
			c.Backend.BaseURL = backendURL
		}
	})
}

// Parse decodes YAML config, applies defaults and environment overrides
// and validates the result.
func Parse(data []byte) (*Config, error) {
	return parse(data, nil)
}

func parse(data []byte, override func(*Config)) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if override != nil {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	if c.Server.RateLimit.Capacity == 0 {
		c.Server.RateLimit.Capacity = 60
	}
	if c.Server.RateLimit.RefillPerSecond == 0 {
		c.Server.RateLimit.RefillPerSecond = 1
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 60 * time.Second
	}
	if c.Cache.DetailTTL == 0 {
		c.Cache.DetailTTL = 5 * time.Minute
	}
	if c.Storage.Session.Driver == "" {
		c.Storage.Session.Driver = DriverMemory
	}
	if c.Storage.Local.Driver == "" {
		c.Storage.Local.Driver = DriverFile
	}
	if c.Storage.Local.Driver == DriverFile && c.Storage.Local.Path == "" {
		c.Storage.Local.Path = "trustai-local.json"
	}
	if c.Storage.Session.Driver == DriverFile && c.Storage.Session.Path == "" {
		c.Storage.Session.Path = "trustai-session.json"
	}
	if c.Storage.Session.Scope == "" {
		c.Storage.Session.Scope = "session"
	}
	if c.Storage.Local.Scope == "" {
		c.Storage.Local.Scope = "local"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Reports.Driver == "" {
		c.Reports.Driver = ReportsLocal
	}
	if c.Reports.Driver == ReportsLocal && c.Reports.Dir == "" {
		c.Reports.Dir = "reports"
	}
	if c.Extract.TesseractPath == "" {
		c.Extract.TesseractPath = "tesseract"
	}
	if c.Extract.Language == "" {
		c.Extract.Language = "eng"
	}
	if c.Guest.TextLimit == 0 {
		c.Guest.TextLimit = 5000
	}
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("TRUSTAI_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := getenv("TRUSTAI_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TRUSTAI_PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate rejects configs the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend.baseURL is required"))
	} else if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.baseURL %q is not an absolute URL", c.Backend.BaseURL))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	for name, s := range map[string]StorageConfig{"session": c.Storage.Session, "local": c.Storage.Local} {
		switch s.Driver {
		case DriverMemory, DriverFile, DriverMySQL, DriverPostgres:
		default:
			errs = append(errs, fmt.Errorf("storage.%s.driver %q unknown", name, s.Driver))
		}
	}
	switch c.Reports.Driver {
	case ReportsLocal:
	case ReportsMinio:
		if c.Reports.Minio.Endpoint == "" || c.Reports.Minio.BucketName == "" {
			errs = append(errs, errors.New("reports.minio needs endpoint and bucketName"))
		}
	default:
		errs = append(errs, fmt.Errorf("reports.driver %q unknown", c.Reports.Driver))
	}
	return errors.Join(errs...)
}

// UsesDriver reports whether either storage scope is configured with d.
func (c *Config) UsesDriver(d string) bool {
	return c.Storage.Session.Driver == d || c.Storage.Local.Driver == d
}

// BackendURL is the base URL without a trailing slash.
func (c *Config) BackendURL() string {
	return strings.TrimRight(c.Backend.BaseURL, "/")
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
