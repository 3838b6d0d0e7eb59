package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment keys. They double as viper keys so cobra flags can be bound to them.
const (
	KeySeedURL            = "SEED_URL"
	KeyAllowedOrigin      = "ALLOWED_ORIGIN"
	KeyCrawlMaxDepth      = "CRAWL_MAX_DEPTH"
	KeyCrawlMaxPages      = "CRAWL_MAX_PAGES"
	KeyCrawlDemoPages     = "CRAWL_DEMO_PAGES"
	KeyCrawlDelay         = "CRAWL_DELAY"
	KeyFetchTimeout       = "FETCH_TIMEOUT"
	KeyCrawlUserAgent     = "CRAWL_USER_AGENT"
	KeyCrawlRespectRobots = "CRAWL_RESPECT_ROBOTS"
	KeyCrawlMaxPerHost    = "CRAWL_MAX_PER_HOST"
	KeyCrawlInterval      = "CRAWL_INTERVAL"
	KeyCrawlOnStart       = "CRAWL_ON_START"
	KeyCrawlEmbed         = "CRAWL_EMBED"

	KeyStoreDriver       = "STORE_DRIVER"
	KeyMongoURI          = "MONGODB_URI"
	KeyMongoDatabase     = "MONGODB_DATABASE"
	KeyMongoVectorIndex  = "MONGODB_VECTOR_INDEX"
	KeyDatabaseURL       = "DATABASE_URL"
	KeyMinioEndpoint     = "MINIO_ENDPOINT"
	KeyMinioAccessKey    = "MINIO_ACCESS_KEY"
	KeyMinioSecretKey    = "MINIO_SECRET_KEY"
	KeyMinioBucket       = "MINIO_BUCKET"
	KeyMinioUseSSL       = "MINIO_USE_SSL"
	KeyOpenAIKey         = "OPENAI_API_KEY"
	KeyOpenAIBaseURL     = "OPENAI_BASE_URL"
	KeyOpenAIChatModel   = "OPENAI_CHAT_MODEL"
	KeyOpenAIEmbedModel  = "OPENAI_EMBEDDING_MODEL"
	KeyChatMaxTokens     = "CHAT_MAX_TOKENS"
	KeyKeywordMode       = "KEYWORD_MODE"
	KeyRetrievalMode     = "RETRIEVAL_MODE"
	KeyRetrievalPerKeywd = "RETRIEVAL_PER_KEYWORD"
	KeyPort              = "PORT"
	KeyLogLevel          = "LOG_LEVEL"
	KeyGinMode           = "GIN_MODE"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	KeywordModeRaw = "raw"
	KeywordModeLLM = "llm"

	RetrievalKeyword   = "keyword"
	RetrievalEmbedding = "embedding"
)

type Crawl struct {
	SeedURL string
	// AllowedOrigin confines the crawl. Empty means the seed's origin.
	AllowedOrigin string
	MaxDepth      int
	MaxPages      int
	DemoPages     int
	Delay         time.Duration
	FetchTimeout  time.Duration
	UserAgent     string
	RespectRobots bool
	MaxPerHost    float64
	Interval      string
	OnStart       bool
	Embed         bool
}

type Store struct {
	Driver      string
	MongoURI    string
	MongoDB     string
	VectorIndex string
	DatabaseURL string
}

type Blob struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether a blob store endpoint is configured.
func (b Blob) Enabled() bool { return b.Endpoint != "" }

type LLM struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	MaxTokens      int
}

type Chat struct {
	KeywordMode   string
	RetrievalMode string
	PerKeyword    int
}

type Config struct {
	Crawl    Crawl
	Store    Store
	Blob     Blob
	LLM      LLM
	Chat     Chat
	Port     string
	LogLevel string
	GinMode  string
}

// LoadEnv loads .env files into the process environment. Existing variables win.
func LoadEnv() []string {
	var loaded []string
	for _, file := range []string{".env", ".env.local"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			continue
		}
		loaded = append(loaded, file)
	}
	return loaded
}

// NewViper returns a viper instance with every default registered and
// environment lookup enabled.
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault(KeySeedURL, "https://www.unklab.ac.id/")
	v.SetDefault(KeyCrawlMaxDepth, 2)
	v.SetDefault(KeyCrawlMaxPages, 0)
	v.SetDefault(KeyCrawlDemoPages, 5)
	v.SetDefault(KeyCrawlDelay, "2s")
	v.SetDefault(KeyFetchTimeout, "20s")
	v.SetDefault(KeyCrawlUserAgent, "CampusInfoBot/1.0")
	v.SetDefault(KeyCrawlRespectRobots, true)
	v.SetDefault(KeyCrawlMaxPerHost, 2.0)
	v.SetDefault(KeyCrawlInterval, "3h")
	v.SetDefault(KeyCrawlOnStart, false)
	v.SetDefault(KeyCrawlEmbed, false)

	v.SetDefault(KeyStoreDriver, DriverMongo)
	v.SetDefault(KeyMongoDatabase, "campusinfo")
	v.SetDefault(KeyMongoVectorIndex, "crawled_data_embedding")
	v.SetDefault(KeyMinioBucket, "manual-uploads")
	v.SetDefault(KeyMinioUseSSL, false)

	v.SetDefault(KeyOpenAIChatModel, "gpt-4o-mini")
	v.SetDefault(KeyOpenAIEmbedModel, "text-embedding-3-small")
	v.SetDefault(KeyChatMaxTokens, 500)
	v.SetDefault(KeyKeywordMode, KeywordModeRaw)
	v.SetDefault(KeyRetrievalMode, RetrievalKeyword)
	v.SetDefault(KeyRetrievalPerKeywd, 3)

	v.SetDefault(KeyPort, "4000")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyGinMode, "debug")
	return v
}

// Load reads a Config out of v and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Crawl: Crawl{
			SeedURL:       strings.TrimSpace(v.GetString(KeySeedURL)),
			AllowedOrigin: strings.TrimSpace(v.GetString(KeyAllowedOrigin)),
			MaxDepth:      v.GetInt(KeyCrawlMaxDepth),
			MaxPages:      v.GetInt(KeyCrawlMaxPages),
			DemoPages:     v.GetInt(KeyCrawlDemoPages),
			Delay:         v.GetDuration(KeyCrawlDelay),
			FetchTimeout:  v.GetDuration(KeyFetchTimeout),
			UserAgent:     v.GetString(KeyCrawlUserAgent),
			RespectRobots: v.GetBool(KeyCrawlRespectRobots),
			MaxPerHost:    v.GetFloat64(KeyCrawlMaxPerHost),
			Interval:      strings.TrimSpace(v.GetString(KeyCrawlInterval)),
			OnStart:       v.GetBool(KeyCrawlOnStart),
			Embed:         v.GetBool(KeyCrawlEmbed),
		},
		Store: Store{
			Driver:      strings.ToLower(strings.TrimSpace(v.GetString(KeyStoreDriver))),
			MongoURI:    v.GetString(KeyMongoURI),
			MongoDB:     v.GetString(KeyMongoDatabase),
			VectorIndex: v.GetString(KeyMongoVectorIndex),
			DatabaseURL: v.GetString(KeyDatabaseURL),
		},
		Blob: Blob{
			Endpoint:  v.GetString(KeyMinioEndpoint),
			AccessKey: v.GetString(KeyMinioAccessKey),
			SecretKey: v.GetString(KeyMinioSecretKey),
			Bucket:    v.GetString(KeyMinioBucket),
			UseSSL:    v.GetBool(KeyMinioUseSSL),
		},
		LLM: LLM{
			APIKey:         v.GetString(KeyOpenAIKey),
			BaseURL:        v.GetString(KeyOpenAIBaseURL),
			ChatModel:      v.GetString(KeyOpenAIChatModel),
			EmbeddingModel: v.GetString(KeyOpenAIEmbedModel),
			MaxTokens:      v.GetInt(KeyChatMaxTokens),
		},
		Chat: Chat{
			KeywordMode:   strings.ToLower(v.GetString(KeyKeywordMode)),
			RetrievalMode: strings.ToLower(v.GetString(KeyRetrievalMode)),
			PerKeyword:    v.GetInt(KeyRetrievalPerKeywd),
		},
		Port:     v.GetString(KeyPort),
		LogLevel: v.GetString(KeyLogLevel),
		GinMode:  v.GetString(KeyGinMode),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values the service cannot run without.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Crawl.SeedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("%s must be an absolute http(s) URL, got %q", KeySeedURL, c.Crawl.SeedURL))
	}
	if c.Crawl.AllowedOrigin != "" {
		o, err := url.Parse(c.Crawl.AllowedOrigin)
		if err != nil || (o.Scheme != "http" && o.Scheme != "https") || o.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute http(s) URL, got %q", KeyAllowedOrigin, c.Crawl.AllowedOrigin))
		}
	}
	if c.Crawl.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyCrawlMaxDepth))
	}
	if c.Crawl.MaxPages < 0 || c.Crawl.DemoPages < 0 {
		errs = append(errs, fmt.Errorf("%s and %s must not be negative", KeyCrawlMaxPages, KeyCrawlDemoPages))
	}
	if c.Crawl.Delay < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyCrawlDelay))
	}
	if c.Crawl.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyFetchTimeout))
	}

	switch c.Store.Driver {
	case DriverMongo, DriverPostgres, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("%s must be one of %q, %q, %q, got %q", KeyStoreDriver, DriverMongo, DriverPostgres, DriverMemory, c.Store.Driver))
	}

	switch c.Chat.KeywordMode {
	case KeywordModeRaw, KeywordModeLLM:
	default:
		errs = append(errs, fmt.Errorf("%s must be %q or %q", KeyKeywordMode, KeywordModeRaw, KeywordModeLLM))
	}
	switch c.Chat.RetrievalMode {
	case RetrievalKeyword, RetrievalEmbedding:
	default:
		errs = append(errs, fmt.Errorf("%s must be %q or %q", KeyRetrievalMode, RetrievalKeyword, RetrievalEmbedding))
	}
	if c.Chat.PerKeyword <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyRetrievalPerKeywd))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyChatMaxTokens))
	}

	return errors.Join(errs...)
}
