package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string `yaml:"env" env:"ENV" env-default:"local" env-description:"Environment" env-choices:"local,dev,prod"`
	ApiPort  int    `yaml:"api_port" env:"API_PORT" env-default:"8080"`
	ApiHost  string `yaml:"api_host" env:"API_HOST" env-default:"localhost"`
	Postgres `yaml:"postgres"`
	HTTP     `yaml:"http"`
	Auth     `yaml:"auth"`
	Wallet   `yaml:"wallet"`
	SeedUser `yaml:"seed_user"`
}

type Postgres struct {
	Host string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"POSTGRES_PORT" env-default:"5433"`
	User string `yaml:"user" env:"POSTGRES_USER" env-default:"test"`
	Pass string `yaml:"pass" env:"POSTGRES_PASS" env-default:"12345"`
	Db   string `yaml:"db" env:"POSTGRES_DB" env-default:"test_db"`
}

type HTTP struct {
	ReadTimeout     time.Duration `yaml:"read_timeout" env-default:"5s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"5s"`
}

type Auth struct {
	JWTSecret  string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	TokenTTL   time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"168h"`
	BcryptCost int           `yaml:"bcrypt_cost" env-default:"10"`
	// EmailDomains restricts registration to the listed domains. Empty accepts any domain.
	EmailDomains []string `yaml:"email_domains" env:"EMAIL_DOMAINS" env-separator:","`
}

type Wallet struct {
	DefaultBalance       float64 `yaml:"default_balance" env-default:"5254.50"`
	DefaultIncome        float64 `yaml:"default_income" env-default:"2430"`
	DefaultSpent         float64 `yaml:"default_spent" env-default:"1120"`
	TransactionsLimit    int     `yaml:"transactions_limit" env-default:"50"`
	MaxTransactionsLimit int     `yaml:"max_transactions_limit" env-default:"500"`
}

// SeedUser is created on startup when Username is set and the user does not exist yet.
type SeedUser struct {
	Username string `yaml:"username" env:"SEED_USERNAME"`
	Email    string `yaml:"email" env:"SEED_EMAIL"`
	Password string `yaml:"password" env:"SEED_PASSWORD"`
}

func (p Postgres) URL() string {
	return "postgres://" + p.User + ":" + p.Pass + "@" + p.Host + ":" + p.Port + "/" + p.Db + "?sslmode=disable"
}

func MustLoad() *Config {
	path := fetchConfigPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file does not exist: " + path)
	}

	cfg, err := Load(path)
	if err != nil {
		panic("Failed to read config: " + err.Error())
	}

	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
