package config // package config loads application configuration from environment variables

import (
    "log"      // log is used to report configuration errors and halt execution
    "os"       // os provides access to environment variables
    "strings"
    "time"

    "github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
    Env      string // application environment (e.g. "dev", "prod")
    Port     string // HTTP port to listen on
    DBDriver string // "mysql" (default) or "sqlite3"
    DBUser   string // database username
    DBPass   string // database password (optional)
    DBHost   string // database host address
    DBPort   string // database port number
    DBName   string // database name
    DBPath   string // sqlite3 database file

    JWTSecret     string // secret used to sign JWTs
    TokenTTLHours int    // token lifetime; the session lasts one day by default
    BcryptCost    int    // bcrypt cost for password hashing

    StartingStandard int64 // standard credits granted at registration
    StartingSpecial  int64 // special credits granted at registration

    GridConfigPath  string        // optional YAML file with the grid settings
    OriginAllowlist []string      // extra Origin host patterns accepted on /ws besides same-origin
    TxTimeout       time.Duration // upper bound for one reservation transaction

    RabbitURL    string // broker for purchase.confirmed events; empty disables them
    RelayChannel string // Redis channel shared by instances; empty disables the relay
}

// Load reads configuration values from the environment (and a .env file
// when one is present) and returns a Config.  Required variables are
// enforced by must() and missing values cause the program to exit with a
// fatal log message.
func Load() Config {
    if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
        log.Printf("config: .env not loaded: %v", err)
    }
    cfg := Config{
        Env:      must("APP_ENV"),
        Port:     must("APP_PORT"),
        DBDriver: envStr("DB_DRIVER", "mysql"),

        JWTSecret:     must("JWT_SECRET"),
        TokenTTLHours: envInt("TOKEN_TTL_HOURS", 24),
        BcryptCost:    envInt("BCRYPT_COST", 10),

        StartingStandard: int64(envInt("STARTING_STANDARD_CREDITS", 2)),
        StartingSpecial:  int64(envInt("STARTING_SPECIAL_CREDITS", 0)),

        GridConfigPath:  os.Getenv("GRID_CONFIG_PATH"),
        OriginAllowlist: splitList(os.Getenv("ORIGIN_ALLOWLIST")),
        TxTimeout:       envDur("TX_TIMEOUT", 5*time.Second),

        RabbitURL:    rabbitURL(),
        RelayChannel: os.Getenv("RELAY_CHANNEL"),
    }
    switch cfg.DBDriver {
    case "mysql":
        cfg.DBUser = must("DB_USER")
        cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
        cfg.DBHost = must("DB_HOST")
        cfg.DBPort = must("DB_PORT")
        cfg.DBName = must("DB_NAME")
    case "sqlite3":
        cfg.DBPath = envStr("DB_PATH", "tables.db")
    default:
        log.Fatalf("unsupported DB_DRIVER %q (want mysql or sqlite3)", cfg.DBDriver)
    }
    if cfg.StartingStandard < 0 || cfg.StartingSpecial < 0 {
        log.Fatalf("starting credits must be >= 0")
    }
    return cfg
}

// rabbitURL accepts either RABBITMQ_URL or AMQP_URL.
func rabbitURL() string {
    if v := os.Getenv("RABBITMQ_URL"); v != "" {
        return v
    }
    return os.Getenv("AMQP_URL")
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

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}
