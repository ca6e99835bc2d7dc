// =============================================================================
// QBO Sales Receipt Extractor - Configuration Module
// =============================================================================
//
// This module loads the single configuration file used by a run. It holds
// the OAuth credentials for the accounting API, the default day window and
// the two debug toggles, plus the operational settings (output, logging,
// retry policy) that the rest of the application reads.
//
// CONFIGURATION SOURCES (later wins):
//   1. Built-in defaults
//   2. The YAML file (JSON is accepted, so an old config.json works as is)
//   3. A .env file in the working directory
//   4. QBO_* environment variables (secrets only)
//
// The core packages never read this file or the environment themselves; the
// CLI glue loads a Config and passes the pieces each component needs.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/qbo-sales-receipts/pkg/utils"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultConfigFile is the path used when --config is not given.
	DefaultConfigFile = "config.yaml"

	// LegacyConfigFile is tried when DefaultConfigFile does not exist.
	LegacyConfigFile = "config.json"

	// ProductionBaseURL is the accounting API host for live companies.
	ProductionBaseURL = "https://quickbooks.api.intuit.com"

	// SandboxBaseURL is the accounting API host for sandbox companies.
	SandboxBaseURL = "https://sandbox-quickbooks.api.intuit.com"

	// TokenURL is the OAuth2 bearer token endpoint (same for both environments).
	TokenURL = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"

	// DefaultShippingItemID is the ItemRef.value of the shipping item.
	DefaultShippingItemID = "SHIPPING_ITEM_ID"

	// MaxPageSize is the largest MAXRESULTS the query endpoint accepts.
	MaxPageSize = 1000

	// DefaultMinorVersion is the API minor version sent with every query.
	DefaultMinorVersion = 65

	// DefaultDays is the window size when neither --days nor default_days
	// is given.
	DefaultDays = 30

	// DefaultMaxRetries is the retry count when max_retries is absent.
	DefaultMaxRetries = 3
)

// Environment variables that override secrets from the file.
const (
	EnvClientID     = "QBO_CLIENT_ID"
	EnvClientSecret = "QBO_CLIENT_SECRET"
	EnvRefreshToken = "QBO_REFRESH_TOKEN"
	EnvRealmID      = "QBO_REALM_ID"
)

// Price conflict policies.
const (
	PriceConflictMerge = "merge"
	PriceConflictSplit = "split"
)

// Output formats.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// =============================================================================
// CONFIGURATION STRUCTURE
// =============================================================================

// Config holds the whole application configuration.
type Config struct {
	// =========================================================================
	// CREDENTIALS
	// =========================================================================

	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// RefreshToken must always hold the most recently issued token. The
	// token endpoint rotates it; a stale value fails every later run.
	RefreshToken string `yaml:"refresh_token"`
	RealmID      string `yaml:"realm_id"`
	RedirectURI  string `yaml:"redirect_uri"`

	// Sandbox selects the sandbox API host.
	Sandbox bool `yaml:"sandbox"`

	// =========================================================================
	// RUN SETTINGS
	// =========================================================================

	// DefaultDays is the window size used when --days is not given. 0 is
	// today only.
	// Default: 30
	DefaultDays int `yaml:"default_days"`

	// AddressDebug records addresses that could not be resolved.
	AddressDebug bool `yaml:"address_debug"`

	// ReceiptDebug dumps every raw receipt next to the rows it produced.
	ReceiptDebug bool `yaml:"receipt_debug"`

	// StrictValidation fails the run when a receipt has missing or
	// inconsistent fields instead of only logging them.
	StrictValidation bool `yaml:"strict_validation"`

	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// OutputFile is the report path.
	// Default: "sales_receipts.xlsx"
	OutputFile string `yaml:"output_file"`

	// OutputFormat is "xlsx" or "csv".
	// Default: "xlsx"
	OutputFormat string `yaml:"output_format"`

	// DebugDir is where debug artifacts and summaries are written.
	// Default: "."
	DebugDir string `yaml:"debug_dir"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogFile enables a rotating log file in addition to stderr.
	LogFile string `yaml:"log_file"`

	// LogLevel is one of "debug", "info", "warn", "error".
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// =========================================================================
	// API SETTINGS
	// =========================================================================

	// PageSize is the MAXRESULTS of each query page (1..1000).
	// Default: 100
	PageSize int `yaml:"page_size"`

	// MaxRetries is the number of retries of a page after a transient failure.
	// 0 disables retries.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoff is the first retry delay; it doubles on each retry.
	// Default: 500ms
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// RequestTimeout bounds every HTTP request.
	// Default: 30s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ExpiryMargin is subtracted from the access token lifetime.
	// Default: 60s
	ExpiryMargin time.Duration `yaml:"expiry_margin"`

	// MinorVersion is sent as the minorversion query parameter.
	// Default: 65
	MinorVersion int `yaml:"minor_version"`

	// TokenURL and APIBaseURL override the endpoints (proxies, tests).
	TokenURL   string `yaml:"token_url"`
	APIBaseURL string `yaml:"api_base_url"`

	// =========================================================================
	// TRANSFORMATION SETTINGS
	// =========================================================================

	// ShippingItemID is the ItemRef value of shipping lines.
	// Default: "SHIPPING_ITEM_ID"
	ShippingItemID string `yaml:"shipping_item_id"`

	// DetailStates lists state codes reported as "City, ST Postal" instead of
	// the bare code. Example: ["WA"]
	DetailStates []string `yaml:"detail_states"`

	// PriceConflict is "merge" (sum quantities, report the conflict) or
	// "split" (one row per distinct unit price).
	// Default: "merge"
	PriceConflict string `yaml:"price_conflict"`

	// path is the file this config was loaded from.
	path string
}

// =============================================================================
// CREDENTIALS
// =============================================================================

// Credentials is the credential store handed to the session manager and the
// fetcher.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	RealmID      string
	RedirectURI  string
	Sandbox      bool
}

// String redacts the secrets so a Credentials value is safe to log.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{client_id=%s realm_id=%s sandbox=%t client_secret=%s refresh_token=%s}",
		c.ClientID, c.RealmID, c.Sandbox, redact(c.ClientSecret), redact(c.RefreshToken))
}

// BaseURL returns the API host selected by the sandbox flag.
func (c Credentials) BaseURL() string {
	if c.Sandbox {
		return SandboxBaseURL
	}
	return ProductionBaseURL
}

func redact(s string) string {
	if s == "" {
		return "<empty>"
	}
	return "<redacted>"
}

// Credentials returns the credential store view of the config.
func (c *Config) Credentials() Credentials {
	return Credentials{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RefreshToken: c.RefreshToken,
		RealmID:      c.RealmID,
		RedirectURI:  c.RedirectURI,
		Sandbox:      c.Sandbox,
	}
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// APIBase returns the query endpoint host, honoring APIBaseURL.
func (c *Config) APIBase() string {
	if c.APIBaseURL != "" {
		return strings.TrimRight(c.APIBaseURL, "/")
	}
	return c.Credentials().BaseURL()
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the configuration file at path, applies .env and environment
// overrides and defaults, then validates it.
//
// When path is DefaultConfigFile and it does not exist, LegacyConfigFile is
// tried instead.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}
	if path == DefaultConfigFile && !utils.FileExists(path) && utils.FileExists(LegacyConfigFile) {
		path = LegacyConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.path = path

	// A missing .env is normal; existing process variables are not replaced.
	_ = godotenv.Load()
	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse decodes a configuration document and applies defaults. It does not
// read the environment and does not validate.
//
// Options where zero is a meaningful value are preset before decoding, so
// only an absent key takes the default.
func Parse(data []byte) (*Config, error) {
	cfg := Config{
		DefaultDays: DefaultDays,
		MaxRetries:  DefaultMaxRetries,
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyEnv overrides secrets with non-empty environment values.
func (c *Config) applyEnv(getenv func(string) string) {
	overrides := []struct {
		key   string
		field *string
	}{
		{EnvClientID, &c.ClientID},
		{EnvClientSecret, &c.ClientSecret},
		{EnvRefreshToken, &c.RefreshToken},
		{EnvRealmID, &c.RealmID},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(getenv(o.key)); v != "" {
			*o.field = v
		}
	}
}

// applyDefaults sets default values for unset options whose zero value is
// not meaningful.
func applyDefaults(c *Config) {
	if c.OutputFile == "" {
		c.OutputFile = "sales_receipts.xlsx"
	}
	if c.OutputFormat == "" {
		c.OutputFormat = FormatXLSX
	}
	if c.DebugDir == "" {
		c.DebugDir = "."
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.PageSize == 0 {
		c.PageSize = 100
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.ExpiryMargin == 0 {
		c.ExpiryMargin = 60 * time.Second
	}
	if c.MinorVersion == 0 {
		c.MinorVersion = DefaultMinorVersion
	}
	if c.TokenURL == "" {
		c.TokenURL = TokenURL
	}
	if c.ShippingItemID == "" {
		c.ShippingItemID = DefaultShippingItemID
	}
	if c.PriceConflict == "" {
		c.PriceConflict = PriceConflictMerge
	}
	for i, s := range c.DetailStates {
		c.DetailStates[i] = strings.ToUpper(strings.TrimSpace(s))
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks required fields and value ranges. Every problem found is
// reported, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	required := []struct {
		name  string
		value string
	}{
		{"client_id", c.ClientID},
		{"client_secret", c.ClientSecret},
		{"refresh_token", c.RefreshToken},
		{"realm_id", c.RealmID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}

	if c.DefaultDays < 0 {
		errs = append(errs, fmt.Errorf("default_days must not be negative"))
	}
	if c.PageSize < 1 || c.PageSize > MaxPageSize {
		errs = append(errs, fmt.Errorf("page_size must be between 1 and %d", MaxPageSize))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must not be negative"))
	}
	switch c.OutputFormat {
	case FormatXLSX, FormatCSV:
	default:
		errs = append(errs, fmt.Errorf("output_format must be %q or %q", FormatXLSX, FormatCSV))
	}
	switch c.PriceConflict {
	case PriceConflictMerge, PriceConflictSplit:
	default:
		errs = append(errs, fmt.Errorf("price_conflict must be %q or %q", PriceConflictMerge, PriceConflictSplit))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not recognized", c.LogLevel))
	}

	return errors.Join(errs...)
}
