package config

import (
	"flag"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config struct {
	Addr        string
	DBUrl       string
	TokenSecret string
	TokenTTL    time.Duration

	AdminUser     string
	AdminPassword string

	GoogleCredentials string
	SheetRange        string
	SheetTimezone     *time.Location
	ForwardQueue      int

	SessionTTL time.Duration
	SubmitRate float64

	PublicDir  string
	PrivateDir string

	Debug bool
}

// ParseFlags reads the configuration from args, falling back to the
// environment for anything not given on the command line. A .env file in the
// working directory, if present, is loaded into the environment first;
// variables already set take precedence over it.
func ParseFlags(args []string) (cfg Config, err error) {
	if err = godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return cfg, errors.Wrap(err, "config.dotenv")
	}
	err = nil

	fs := flag.NewFlagSet("lead-scorer", flag.ContinueOnError)

	host := fs.String("host", env("HOST", "0.0.0.0"), "listen host name")
	port := fs.Uint("port", envUint("PORT", 80), "listen port number")
	fs.StringVar(&cfg.DBUrl, "db-url", env("DB_URL", "leadscorer.sqlite"), "path to SQLite3 DB file")
	fs.StringVar(&cfg.TokenSecret, "token-secret", env("TOKEN_SECRET", ""), "secret key for token encryption and decryption")
	ttl := fs.Uint("token-ttl", envUint("TOKEN_TTL", 120), "token TTL in seconds")

	fs.StringVar(&cfg.AdminUser, "admin-user", env("ADMIN_USER", ""), "owner account to create or update at startup")
	fs.StringVar(&cfg.AdminPassword, "admin-password", env("ADMIN_PASSWORD", ""), "password of -admin-user")

	fs.StringVar(&cfg.GoogleCredentials, "google-credentials", env("GOOGLE_CREDENTIALS", ""), "service account JSON file for spreadsheet forwarding (empty disables it)")
	fs.StringVar(&cfg.SheetRange, "sheet-range", env("SHEET_RANGE", "Página1!A1"), "range submissions are appended to")
	tz := fs.String("sheet-timezone", env("SHEET_TIMEZONE", "America/Sao_Paulo"), "timezone of forwarded timestamps")
	fs.IntVar(&cfg.ForwardQueue, "forward-queue", envInt("FORWARD_QUEUE", 256), "submissions waiting to be forwarded before new ones are dropped")

	sessionTTL := fs.Uint("session-ttl", envUint("SESSION_TTL", 60), "idle minutes before a respondent session is forgotten")
	fs.Float64Var(&cfg.SubmitRate, "submit-rate", envFloat("SUBMIT_RATE", 2), "public writes per second allowed per client IP")

	fs.StringVar(&cfg.PublicDir, "public-dir", "public", "directory of public pages")
	fs.StringVar(&cfg.PrivateDir, "private-dir", "private", "directory of owner-only pages")

	fs.BoolVar(&cfg.Debug, "debug", envBool("DEBUG", false), "log at DEBUG level")

	if err = fs.Parse(args); err != nil {
		return cfg, errors.Wrap(err, "config.parse")
	}

	cfg.Addr = net.JoinHostPort(*host, strconv.Itoa(int(*port)))
	cfg.TokenTTL = time.Duration(*ttl) * time.Second
	cfg.SessionTTL = time.Duration(*sessionTTL) * time.Minute

	cfg.SheetTimezone, err = time.LoadLocation(*tz)
	if err != nil {
		return cfg, errors.Wrapf(err, "config: bad -sheet-timezone %q", *tz)
	}

	switch {
	case cfg.TokenSecret == "":
		err = errors.New("missing parameter -token-secret")
	case cfg.AdminUser != "" && cfg.AdminPassword == "":
		err = errors.New("-admin-user requires -admin-password")
	case cfg.SubmitRate <= 0:
		err = errors.New("-submit-rate must be positive")
	}

	return
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envUint(key string, def uint) uint {
	n, err := strconv.ParseUint(env(key, ""), 10, 0)
	if err != nil {
		return def
	}
	return uint(n)
}

func envInt(key string, def int) int {
	n, err := strconv.Atoi(env(key, ""))
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(env(key, ""), 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(env(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}
