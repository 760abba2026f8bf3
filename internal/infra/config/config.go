package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/token"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string

	HTTPAddress   string
	GRPCAddress   string
	HTTPSCertFile string
	HTTPSKeyFile  string

	DatabaseURL string

	RedisAddress  string
	RedisPassword string
	RedisDB       int

	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	JWTIssuer          string

	PasswordPepper string

	AllowedOrigins   []string
	TrustedProxies   []string
	AllowCredentials bool
	CookieDomain     string
	CookieSecure     bool
	CookieSameSite   http.SameSite

	UploadDir string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool

	HTTPRateLimit  int
	HTTPRateBurst  int
	GRPCRateLimit  int
	GRPCRateBurst  int
	CredentialRate string
}

var required = []string{
	"DATABASE_URL",
	"ACCESS_TOKEN_SECRET",
	"REFRESH_TOKEN_SECRET",
	"REDIS_ADDRESS",
	"PASSWORD_PEPPER",
	"ALLOWED_ORIGINS",
}

// Load reads config.json (optional), then .env (optional), then the process
// environment, later sources winning.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDRESS", ":8080")
	v.SetDefault("GRPC_ADDRESS", ":50051")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "240h")
	v.SetDefault("JWT_ISSUER", "account-service")
	v.SetDefault("ALLOW_CREDENTIALS", true)
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("COOKIE_SAME_SITE", "lax")
	v.SetDefault("UPLOAD_DIR", os.TempDir())
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_USE_PATH_STYLE", false)
	v.SetDefault("HTTP_RATE_LIMIT", 50)
	v.SetDefault("HTTP_RATE_BURST", 100)
	v.SetDefault("GRPC_RATE_LIMIT", 10)
	v.SetDefault("GRPC_RATE_BURST", 100)
	v.SetDefault("CREDENTIAL_RATE", "5-M")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var missing []string
	for _, key := range required {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	accessTTL, err := duration(v, "ACCESS_TOKEN_TTL")
	if err != nil {
		return nil, err
	}
	refreshTTL, err := duration(v, "REFRESH_TOKEN_TTL")
	if err != nil {
		return nil, err
	}

	origins, err := list(v.GetString("ALLOWED_ORIGINS"))
	if err != nil {
		return nil, fmt.Errorf("ALLOWED_ORIGINS: %w", err)
	}

	proxies, err := list(v.GetString("TRUSTED_PROXIES"))
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	sameSite, err := parseSameSite(v.GetString("COOKIE_SAME_SITE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:           v.GetString("LOG_LEVEL"),
		HTTPAddress:        v.GetString("HTTP_ADDRESS"),
		GRPCAddress:        v.GetString("GRPC_ADDRESS"),
		HTTPSCertFile:      v.GetString("HTTPS_CERT_FILE"),
		HTTPSKeyFile:       v.GetString("HTTPS_KEY_FILE"),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		RedisAddress:       v.GetString("REDIS_ADDRESS"),
		RedisPassword:      v.GetString("REDIS_PASSWORD"),
		RedisDB:            v.GetInt("REDIS_DB"),
		AccessTokenSecret:  v.GetString("ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret: v.GetString("REFRESH_TOKEN_SECRET"),
		AccessTokenTTL:     accessTTL,
		RefreshTokenTTL:    refreshTTL,
		JWTIssuer:          v.GetString("JWT_ISSUER"),
		PasswordPepper:     v.GetString("PASSWORD_PEPPER"),
		AllowedOrigins:     origins,
		TrustedProxies:     proxies,
		AllowCredentials:   v.GetBool("ALLOW_CREDENTIALS"),
		CookieDomain:       v.GetString("COOKIE_DOMAIN"),
		CookieSecure:       v.GetBool("COOKIE_SECURE"),
		CookieSameSite:     sameSite,
		UploadDir:          v.GetString("UPLOAD_DIR"),
		S3Endpoint:         v.GetString("S3_ENDPOINT"),
		S3Region:           v.GetString("S3_REGION"),
		S3AccessKey:        v.GetString("S3_ACCESS_KEY"),
		S3SecretKey:        v.GetString("S3_SECRET_KEY"),
		S3Bucket:           v.GetString("S3_BUCKET"),
		S3PublicBaseURL:    v.GetString("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:     v.GetBool("S3_USE_PATH_STYLE"),
		HTTPRateLimit:      v.GetInt("HTTP_RATE_LIMIT"),
		HTTPRateBurst:      v.GetInt("HTTP_RATE_BURST"),
		GRPCRateLimit:      v.GetInt("GRPC_RATE_LIMIT"),
		GRPCRateBurst:      v.GetInt("GRPC_RATE_BURST"),
		CredentialRate:     v.GetString("CREDENTIAL_RATE"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	// cors refuses to start without at least one origin
	if len(c.AllowedOrigins) == 0 {
		return errors.New("ALLOWED_ORIGINS must list at least one origin")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if (c.HTTPSCertFile == "") != (c.HTTPSKeyFile == "") {
		return errors.New("HTTPS_CERT_FILE and HTTPS_KEY_FILE must be set together")
	}
	if c.CookieSameSite == http.SameSiteNoneMode && !c.CookieSecure {
		return errors.New("COOKIE_SAME_SITE=none requires COOKIE_SECURE")
	}
	return nil
}

func (c *Config) TLSEnabled() bool {
	return c.HTTPSCertFile != "" && c.HTTPSKeyFile != ""
}

func (c *Config) TokenConfig() token.Config {
	return token.Config{
		AccessSecret:  []byte(c.AccessTokenSecret),
		AccessTTL:     c.AccessTokenTTL,
		RefreshSecret: []byte(c.RefreshTokenSecret),
		RefreshTTL:    c.RefreshTokenTTL,
		Issuer:        c.JWTIssuer,
	}
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// list accepts a JSON array or a comma-separated string.
func list(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var out []string
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func parseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lax", "":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("COOKIE_SAME_SITE: unknown mode %q", s)
	}
}
