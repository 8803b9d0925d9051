package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

var ErrMissingContract = errors.New("MONITORED_CONTRACT is not set")

func NewConfig(envPath string) (Config, error) {
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	nodeUrl := getEnv("ETH_NODE_URL", "")

	cfg := Config{
		ApiPort:              getEnvAsInt("API_PORT", 31337),
		WsPort:               getEnvAsInt("WS_PORT", 8080),
		EthNodeUrl:           nodeUrl,
		EthHttpUrl:           getEnv("ETH_HTTP_URL", httpUrlFor(nodeUrl)),
		DbConnectionUrl:      getEnv("DB_CONNECTION_URL", ""),
		MonitoredContract:    strings.ToLower(strings.TrimSpace(getEnv("MONITORED_CONTRACT", ""))),
		CorrelationWindow:    time.Duration(getEnvAsInt("CORRELATION_WINDOW_MS", 30000)) * time.Millisecond,
		GasMultipleThreshold: int64(getEnvAsInt("GAS_MULTIPLE_THRESHOLD", 5)),
		KnownBots:            getEnvAsSlice("KNOWN_BOTS", ","),
		StatusInterval:       time.Duration(getEnvAsInt("STATUS_INTERVAL_MS", 30000)) * time.Millisecond,
		ProfileTTL:           time.Duration(getEnvAsInt("PROFILE_TTL_MS", 300000)) * time.Millisecond,
		MaxInFlight:          int64(getEnvAsInt("MAX_IN_FLIGHT", 256)),
		KafkaBrokers:         getEnvAsSlice("KAFKA_BROKERS", ","),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "mev-alerts"),
		JwtSecret:            getEnv("JWT_SECRET", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations the monitor cannot start with.
func (c Config) Validate() error {
	if c.MonitoredContract == "" {
		return ErrMissingContract
	}
	if !common.IsHexAddress(c.MonitoredContract) {
		return fmt.Errorf("MONITORED_CONTRACT is not a valid address: %q", c.MonitoredContract)
	}
	if c.EthNodeUrl == "" {
		return errors.New("ETH_NODE_URL is not set")
	}
	if c.CorrelationWindow <= 0 {
		return errors.New("CORRELATION_WINDOW_MS must be positive")
	}
	if c.GasMultipleThreshold <= 0 {
		return errors.New("GAS_MULTIPLE_THRESHOLD must be positive")
	}
	if c.StatusInterval <= 0 || c.ProfileTTL <= 0 {
		return errors.New("STATUS_INTERVAL_MS and PROFILE_TTL_MS must be positive")
	}
	if c.MaxInFlight <= 0 {
		return errors.New("MAX_IN_FLIGHT must be positive")
	}
	return nil
}

// TrackerTTL is how long an unresolved high-risk entry stays live.
func (c Config) TrackerTTL() time.Duration {
	return 2 * c.CorrelationWindow
}

func httpUrlFor(nodeUrl string) string {
	switch {
	case strings.HasPrefix(nodeUrl, "wss://"):
		return "https://" + strings.TrimPrefix(nodeUrl, "wss://")
	case strings.HasPrefix(nodeUrl, "ws://"):
		return "http://" + strings.TrimPrefix(nodeUrl, "ws://")
	}
	return nodeUrl
}

func getEnv(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(name string, defaultVal int) int {
	valueStr := getEnv(name, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsSlice(name string, sep string) []string {
	values := []string{}
	for _, part := range strings.Split(getEnv(name, ""), sep) {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

type Config struct {
	ApiPort              int
	WsPort               int
	EthNodeUrl           string
	EthHttpUrl           string
	DbConnectionUrl      string
	MonitoredContract    string
	CorrelationWindow    time.Duration
	GasMultipleThreshold int64
	KnownBots            []string
	StatusInterval       time.Duration
	ProfileTTL           time.Duration
	MaxInFlight          int64
	KafkaBrokers         []string
	KafkaTopic           string
	JwtSecret            string
	LogLevel             string
	LogFormat            string
}
