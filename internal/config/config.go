package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AppPort string

	// 全站 Basic Auth（/health 除外），两者都配置时启用
	BasicAuthUser string
	BasicAuthPass string

	// file | sqlite | postgres | mysql | mongo
	StoreDriver     string
	PostsFile       string
	SQLitePath      string
	PostgresDSN     string
	MySQLDSN        string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	RedisAddr       string

	UploadsDir string

	LogLevel  string
	LogFormat string

	ProxyHTTP  string
	ProxyHTTPS string

	// cmd/browser-scraper 地址，为空时不抓原文正文
	BrowserScraperURL string

	SettingsFile string
	Settings     Settings
}

// Settings 来自可选的 settings.yaml，缺省值与线上脚本的常量保持一致
type Settings struct {
	Ingest IngestSettings `yaml:"ingest"`
	Upload UploadSettings `yaml:"upload"`
}

type IngestSettings struct {
	Feeds              []string `yaml:"feeds"`
	LookbackDays       int      `yaml:"lookback_days"`
	IntervalHours      int      `yaml:"interval_hours"`
	CronSpec           string   `yaml:"cron"`
	Concurrency        int      `yaml:"concurrency"`
	FeedTimeoutSeconds int      `yaml:"feed_timeout_seconds"`
	Retry              int      `yaml:"retry"`
	// 启动后延迟 15 秒先跑一轮
	RunOnStart bool `yaml:"run_on_start"`

	InsuranceKeywords []string `yaml:"insurance_keywords"`
	FinanceKeywords   []string `yaml:"finance_keywords"`
	InsuranceCategory string   `yaml:"insurance_category"`
	FinanceCategory   string   `yaml:"finance_category"`
	DefaultCategory   string   `yaml:"default_category"`

	Authors               []string `yaml:"authors"`
	ExcerptLength         int      `yaml:"excerpt_length"`
	MetaDescriptionLength int      `yaml:"meta_description_length"`
	ImageURLTemplates     []string `yaml:"image_url_templates"`
	// 为 true 时先尝试抓取原文的 og:image，失败再回退占位图
	OpenGraphImages bool `yaml:"open_graph_images"`
	// 摘要少于该字符数时通过 browser-scraper 补全正文
	MinContentChars int `yaml:"min_content_chars"`
}

type UploadSettings struct {
	MaxFiles    int `yaml:"max_files"`
	MaxFileMB   int `yaml:"max_file_mb"`
	MaxWidth    int `yaml:"max_width"`
	JPEGQuality int `yaml:"jpeg_quality"`
}

var DefaultFeeds = []string{
	// Finance
	"https://www.ft.com/rss/home",
	"https://fortune.com/feed/fortune-feed.xml",
	"https://seekingalpha.com/feed.xml",
	"https://www.fool.com/a/feeds/partner/google/stock-news-analysis.xml",
	"https://www.nasdaq.com/feed/rssoutbound",
	"https://finance.yahoo.com/rss",
	"https://www.cnbc.com/id/100003114/device/rss/rss.html",
	"https://www.investing.com/rss/news.rss",
	// Insurance
	"https://insurancebusinessmag.com/us/rss",
	"https://insurancejournal.com/feed",
	"https://allstatenewsroom.com/news/feed",
	"https://insuranceblog.accenture.com/feed",
	"http://rss.cnn.com/rss/money_pf_insurance.rss",
	"https://www.propertycasualty360.com/feed",
	"https://news.ambest.com/feed",
	"https://www.insurancenewsnet.com/rss",
}

var (
	DefaultFinanceKeywords   = []string{"stock", "market", "investment", "crypto", "finance", "bank", "money", "forex", "economy"}
	DefaultInsuranceKeywords = []string{"insurance", "policy", "coverage", "premium", "claims", "life insurance", "auto insurance"}
	DefaultAuthors           = []string{"Sarah Lawson", "David Okoro", "Emma Reed", "Michael Tran"}
	DefaultImageTemplates    = []string{
		"https://source.unsplash.com/800x600/?%s",
		"https://source.unsplash.com/800x600/?%s,finance",
	}
)

func Load() *Config {
	cfg := &Config{
		AppPort:           getEnv("APP_PORT", "5000"),
		BasicAuthUser:     os.Getenv("APP_BASIC_USER"),
		BasicAuthPass:     os.Getenv("APP_BASIC_PASS"),
		StoreDriver:       getEnv("STORE_DRIVER", "file"),
		PostsFile:         getEnv("POSTS_FILE", "data/posts.json"),
		SQLitePath:        getEnv("SQLITE_PATH", "data/posts.db"),
		PostgresDSN:       getEnv("POSTGRES_DSN", "host=localhost user=finsurehub password=finsurehub dbname=finsurehub port=5432 sslmode=disable TimeZone=UTC"),
		MySQLDSN:          getEnv("MYSQL_DSN", "finsurehub:finsurehub@tcp(localhost:3306)/finsurehub?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true"),
		MongoURI:          getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:     getEnv("MONGODB_DATABASE", "finsurehub"),
		MongoCollection:   getEnv("MONGODB_COLLECTION", "articles"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		UploadsDir:        getEnv("UPLOADS_DIR", "public/uploads"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "pretty"),
		ProxyHTTP:         os.Getenv("HTTP_PROXY_URL"),
		ProxyHTTPS:        os.Getenv("HTTPS_PROXY_URL"),
		BrowserScraperURL: os.Getenv("BROWSER_SCRAPER_URL"),
		SettingsFile:      getEnv("SETTINGS_FILE", "settings.yaml"),
	}

	s, err := LoadSettings(cfg.SettingsFile)
	if err != nil {
		log.Printf("warn: load settings %s: %v, using defaults", cfg.SettingsFile, err)
		s = &Settings{}
	}
	cfg.Settings = *s

	cfg.Settings.Ingest.LookbackDays = getEnvInt("INGEST_LOOKBACK_DAYS", cfg.Settings.Ingest.LookbackDays)
	cfg.Settings.Ingest.IntervalHours = getEnvInt("INGEST_INTERVAL_HOURS", cfg.Settings.Ingest.IntervalHours)
	cfg.Settings.Ingest.CronSpec = getEnv("INGEST_CRON", cfg.Settings.Ingest.CronSpec)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config loaded: port=%s store=%s feeds=%d cron=%q lookback=%dd",
		cfg.AppPort, cfg.StoreDriver, len(cfg.Settings.Ingest.Feeds), cfg.Settings.Ingest.CronSpec, cfg.Settings.Ingest.LookbackDays)
	return cfg
}

// LoadSettings 读取 YAML；文件不存在视为全部使用默认值
func LoadSettings(path string) (*Settings, error) {
	var s Settings
	if path == "" {
		return &s, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("unmarshal settings %s: %w", path, err)
	}
	return &s, nil
}

// Validate 校验并填充默认值
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "file", "sqlite", "postgres", "mysql", "mongo":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %q", c.StoreDriver)
	}
	return c.Settings.Validate()
}

func (s *Settings) Validate() error {
	in := &s.Ingest
	if in.LookbackDays < 0 || in.IntervalHours < 0 || in.Concurrency < 0 || in.FeedTimeoutSeconds < 0 || in.Retry < 0 {
		return errors.New("ingest settings must be >= 0")
	}
	if in.ExcerptLength < 0 || in.MetaDescriptionLength < 0 || in.MinContentChars < 0 {
		return errors.New("excerpt/meta lengths must be >= 0")
	}
	if len(in.Feeds) == 0 {
		in.Feeds = DefaultFeeds
	}
	if in.LookbackDays == 0 {
		in.LookbackDays = 7
	}
	if in.IntervalHours == 0 {
		in.IntervalHours = 6
	}
	if in.CronSpec == "" {
		in.CronSpec = cronForInterval(in.IntervalHours)
	}
	if in.Concurrency == 0 {
		in.Concurrency = 4
	}
	if in.FeedTimeoutSeconds == 0 {
		in.FeedTimeoutSeconds = 20
	}
	if len(in.InsuranceKeywords) == 0 {
		in.InsuranceKeywords = DefaultInsuranceKeywords
	}
	if len(in.FinanceKeywords) == 0 {
		in.FinanceKeywords = DefaultFinanceKeywords
	}
	if in.InsuranceCategory == "" {
		in.InsuranceCategory = "Insurance"
	}
	if in.FinanceCategory == "" {
		in.FinanceCategory = "Finance"
	}
	if in.DefaultCategory == "" {
		in.DefaultCategory = "General"
	}
	if len(in.Authors) == 0 {
		in.Authors = DefaultAuthors
	}
	if in.ExcerptLength == 0 {
		in.ExcerptLength = 150
	}
	if in.MetaDescriptionLength == 0 {
		in.MetaDescriptionLength = 160
	}
	if in.MinContentChars == 0 {
		in.MinContentChars = 200
	}
	if len(in.ImageURLTemplates) == 0 {
		in.ImageURLTemplates = DefaultImageTemplates
	}

	up := &s.Upload
	if up.MaxFiles < 0 || up.MaxFileMB < 0 || up.MaxWidth < 0 || up.JPEGQuality < 0 || up.JPEGQuality > 100 {
		return errors.New("upload settings out of range")
	}
	if up.MaxFiles == 0 {
		up.MaxFiles = 20
	}
	if up.MaxFileMB == 0 {
		up.MaxFileMB = 10
	}
	if up.MaxWidth == 0 {
		up.MaxWidth = 1200
	}
	if up.JPEGQuality == 0 {
		up.JPEGQuality = 80
	}
	return nil
}

// FeedTimeout 单个订阅源的抓取超时
func (in IngestSettings) FeedTimeout() time.Duration {
	return time.Duration(in.FeedTimeoutSeconds) * time.Second
}

// cronForInterval 能整除 24 的按整点对齐（与原来的 "0 */6 * * *" 一致），否则用 @every
func cronForInterval(hours int) string {
	if hours > 0 && hours < 24 && 24%hours == 0 {
		return fmt.Sprintf("0 */%d * * *", hours)
	}
	return fmt.Sprintf("@every %dh", hours)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("warn: %s=%q is not an integer, keep %d", key, v, def)
		return def
	}
	return n
}
