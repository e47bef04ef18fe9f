package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/menu_agent/internal/types"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderLocal  = "local"
	ProviderRemote = "remote"
	ProviderAttach = "attach"

	defaultStoreURL       = "https://www.doordash.com/store/panda-express-san-francisco-980938/12722988/?event_type=autocomplete&pickup=false"
	defaultTargetEndpoint = "https://www.doordash.com/graphql/itemPage?operation=itemPage"
	defaultMenuItemSel    = "div[class='sc-761095a3-2 jXhKue']"
)

// Config holds all configuration for a menu capture run.
type Config struct {
	// Session provisioning
	SessionProvider string
	CDPAddress      string
	CDPPort         int
	CDPEndpoint     string
	ProfileDir      string
	Headless        bool
	SessionAPIURL   string
	SessionAPIKey   string

	// Page behavior
	StoreURL       string
	ViewportWidth  int
	ViewportHeight int
	StepTimeoutMS  int

	// Capture behavior
	TargetEndpoint   string
	MenuItemSelector string
	CloseButtonName  string
	CaptureWaitMS    int
	ClickPauseMS     int
	RequireClick     bool
	JournalDir       string
	JournalMaxSizeMB int
	JournalMaxBody   int
	SnapshotDir      string

	Address types.AddressInput

	// Output and logging
	OutputFile     string
	LogLevel       string
	LogFile        string
	NotifyEndpoint string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		SessionProvider: strings.ToLower(getEnvOrDefault("SESSION_PROVIDER", ProviderLocal)),
		CDPAddress:      getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:         getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		CDPEndpoint:     os.Getenv("CHROMIUM_CDP_ENDPOINT"),
		ProfileDir:      getEnvOrDefault("CHROMIUM_PROFILE_DIR", "./browser_profile"),
		Headless:        getEnvBoolOrDefault("CHROMIUM_HEADLESS", false),
		SessionAPIURL:   getEnvOrDefault("SESSION_API_URL", "https://api.scrapybara.com"),
		SessionAPIKey:   getEnvOrDefault("SESSION_API_KEY", os.Getenv("SCRAPYBARA_API_KEY")),

		StoreURL:       getEnvOrDefault("MENU_STORE_URL", defaultStoreURL),
		ViewportWidth:  getEnvIntOrDefault("MENU_VIEWPORT_WIDTH", 1728),
		ViewportHeight: getEnvIntOrDefault("MENU_VIEWPORT_HEIGHT", 9999),
		StepTimeoutMS:  getEnvIntOrDefault("MENU_STEP_TIMEOUT_MS", 30000),

		TargetEndpoint:   getEnvOrDefault("MENU_TARGET_ENDPOINT", defaultTargetEndpoint),
		MenuItemSelector: getEnvOrDefault("MENU_ITEM_SELECTOR", defaultMenuItemSel),
		CloseButtonName:  getEnvOrDefault("MENU_CLOSE_BUTTON_NAME", "Close"),
		CaptureWaitMS:    getEnvIntOrDefault("CAPTURE_WAIT_MS", 0),
		ClickPauseMS:     getEnvIntOrDefault("MENU_CLICK_PAUSE_MS", 0),
		RequireClick:     getEnvBoolOrDefault("MENU_REQUIRE_CLICK", false),
		JournalDir:       os.Getenv("MENU_JOURNAL_DIR"),
		JournalMaxSizeMB: getEnvIntOrDefault("MENU_JOURNAL_MAX_SIZE_MB", 200),
		JournalMaxBody:   getEnvIntOrDefault("MENU_JOURNAL_MAX_BODY_BYTES", 2<<20),
		SnapshotDir:      os.Getenv("MENU_SNAPSHOT_DIR"),

		Address: types.AddressInput{
			Country:       getEnvOrDefault("ADDRESS_COUNTRY", "Canada"),
			StreetAddress: getEnvOrDefault("ADDRESS_STREET", "200 University Avenue West"),
			City:          getEnvOrDefault("ADDRESS_CITY", "Waterloo"),
			Province:      getEnvOrDefault("ADDRESS_PROVINCE", "Ontario"),
			PostalCode:    getEnvOrDefault("ADDRESS_POSTAL_CODE", "N2L 3G1"),
		},

		OutputFile:     getEnvOrDefault("MENU_OUTPUT_FILE", "results.json"),
		LogLevel:       strings.ToLower(getEnvOrDefault("MENU_LOG_LEVEL", "info")),
		LogFile:        getEnvOrDefault("MENU_LOG_FILE", "logs/menu_agent.log"),
		NotifyEndpoint: os.Getenv("MENU_NOTIFY_ENDPOINT"),
	}

	if path := os.Getenv("MENU_ADDRESS_FILE"); path != "" {
		addr, err := LoadAddressFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Address = mergeAddress(cfg.Address, addr)
	}

	if cfg.StepTimeoutMS < 1000 {
		cfg.StepTimeoutMS = 1000
	}
	if cfg.CaptureWaitMS < 0 {
		cfg.CaptureWaitMS = 0
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields a run cannot start without.
func (c *Config) Validate() error {
	switch c.SessionProvider {
	case ProviderLocal, ProviderAttach:
	case ProviderRemote:
		if c.SessionAPIKey == "" {
			return types.NewError(types.CodeValidation, "SESSION_API_KEY is required for the remote session provider", nil)
		}
	default:
		return types.NewError(types.CodeValidation, fmt.Sprintf("unknown SESSION_PROVIDER %q", c.SessionProvider), nil)
	}
	if strings.TrimSpace(c.StoreURL) == "" {
		return types.NewError(types.CodeValidation, "MENU_STORE_URL is required", nil)
	}
	if strings.TrimSpace(c.TargetEndpoint) == "" {
		return types.NewError(types.CodeValidation, "MENU_TARGET_ENDPOINT is required", nil)
	}
	if missing := c.Address.Missing(); len(missing) > 0 {
		return types.NewError(types.CodeValidation, "address fields missing: "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// GetCDPURL returns the CDP endpoint a local or attached browser is reachable on.
func (c *Config) GetCDPURL() string {
	if c.CDPEndpoint != "" {
		return c.CDPEndpoint
	}
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

// StepTimeout is the bounded wait applied to every UI locate.
func (c *Config) StepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutMS) * time.Millisecond
}

// CaptureWait is how long the menu loop waits for a click's capture; zero disables waiting.
func (c *Config) CaptureWait() time.Duration {
	return time.Duration(c.CaptureWaitMS) * time.Millisecond
}

// ClickPause is the pause between menu item iterations.
func (c *Config) ClickPause() time.Duration {
	return time.Duration(c.ClickPauseMS) * time.Millisecond
}

// LoadAddressFile reads an AddressInput from a YAML file.
func LoadAddressFile(path string) (types.AddressInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.AddressInput{}, fmt.Errorf("read address file: %w", err)
	}
	var addr types.AddressInput
	if err := yaml.Unmarshal(data, &addr); err != nil {
		return types.AddressInput{}, fmt.Errorf("parse address file %s: %w", path, err)
	}
	return addr, nil
}

// mergeAddress overlays the non-empty fields of override onto base.
func mergeAddress(base, override types.AddressInput) types.AddressInput {
	if override.Country != "" {
		base.Country = override.Country
	}
	if override.StreetAddress != "" {
		base.StreetAddress = override.StreetAddress
	}
	if override.City != "" {
		base.City = override.City
	}
	if override.Province != "" {
		base.Province = override.Province
	}
	if override.PostalCode != "" {
		base.PostalCode = override.PostalCode
	}
	return base
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
