package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `# company credentials
client_id: cid
client_secret: secret
refresh_token: rt-1 # rotated by the token endpoint
realm_id: "4620816365"
sandbox: true
default_days: 7
address_debug: true
retry_backoff: 10ms
detail_states: [wa]
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("client_id: x\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"DefaultDays", cfg.DefaultDays, 30},
		{"OutputFile", cfg.OutputFile, "sales_receipts.xlsx"},
		{"OutputFormat", cfg.OutputFormat, FormatXLSX},
		{"PageSize", cfg.PageSize, 100},
		{"MaxRetries", cfg.MaxRetries, 3},
		{"RetryBackoff", cfg.RetryBackoff, 500 * time.Millisecond},
		{"RequestTimeout", cfg.RequestTimeout, 30 * time.Second},
		{"MinorVersion", cfg.MinorVersion, 65},
		{"TokenURL", cfg.TokenURL, TokenURL},
		{"ShippingItemID", cfg.ShippingItemID, "SHIPPING_ITEM_ID"},
		{"PriceConflict", cfg.PriceConflict, PriceConflictMerge},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestParseKeepsExplicitZero(t *testing.T) {
	cfg, err := Parse([]byte("default_days: 0\nmax_retries: 0\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.DefaultDays != 0 || cfg.MaxRetries != 0 {
		t.Errorf("DefaultDays = %d MaxRetries = %d, want 0 and 0", cfg.DefaultDays, cfg.MaxRetries)
	}

	cfg, err = Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error = %v", err)
	}
	if cfg.DefaultDays != DefaultDays || cfg.MaxRetries != DefaultMaxRetries {
		t.Errorf("DefaultDays = %d MaxRetries = %d, want defaults", cfg.DefaultDays, cfg.MaxRetries)
	}
}

func TestParseYAML(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !cfg.Sandbox || cfg.DefaultDays != 7 || !cfg.AddressDebug || cfg.ReceiptDebug {
		t.Errorf("unexpected flags: %+v", cfg)
	}
	if cfg.RetryBackoff != 10*time.Millisecond {
		t.Errorf("RetryBackoff = %v, want 10ms", cfg.RetryBackoff)
	}
	if len(cfg.DetailStates) != 1 || cfg.DetailStates[0] != "WA" {
		t.Errorf("DetailStates = %v, want [WA]", cfg.DetailStates)
	}
	if got := cfg.APIBase(); got != SandboxBaseURL {
		t.Errorf("APIBase() = %q, want %q", got, SandboxBaseURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestParseLegacyJSON(t *testing.T) {
	doc := `{
    "client_id": "cid",
    "client_secret": "secret",
    "refresh_token": "rt",
    "realm_id": "123",
    "redirect_uri": "https://developer.intuit.com/v2/OAuth2Playground/RedirectUrl",
    "sandbox": false,
    "default_days": 14,
    "receipt_debug": true,
    "strict_validation": true
}`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.DefaultDays != 14 || !cfg.ReceiptDebug || !cfg.StrictValidation || cfg.Sandbox {
		t.Errorf("unexpected values: %+v", cfg)
	}
	if got := cfg.APIBase(); got != ProductionBaseURL {
		t.Errorf("APIBase() = %q, want %q", got, ProductionBaseURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr []string
	}{
		{
			name:    "MissingCredentials",
			doc:     "default_days: 3\n",
			wantErr: []string{"client_id", "client_secret", "refresh_token", "realm_id"},
		},
		{
			name:    "BadPageSize",
			doc:     "client_id: a\nclient_secret: b\nrefresh_token: c\nrealm_id: d\npage_size: 5000\n",
			wantErr: []string{"page_size"},
		},
		{
			name:    "BadEnums",
			doc:     "client_id: a\nclient_secret: b\nrefresh_token: c\nrealm_id: d\noutput_format: pdf\nprice_conflict: average\n",
			wantErr: []string{"output_format", "price_conflict"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.doc))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			err = cfg.Validate()
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Validate() error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestApplyEnvOverridesSecrets(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	env := map[string]string{
		EnvClientSecret: "from-env",
		EnvRefreshToken: "  rt-env  ",
	}
	cfg.applyEnv(func(k string) string { return env[k] })

	if cfg.ClientSecret != "from-env" {
		t.Errorf("ClientSecret = %q, want from-env", cfg.ClientSecret)
	}
	if cfg.RefreshToken != "rt-env" {
		t.Errorf("RefreshToken = %q, want rt-env", cfg.RefreshToken)
	}
	if cfg.ClientID != "cid" {
		t.Errorf("ClientID = %q, want cid (no override)", cfg.ClientID)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", sampleYAML)
	t.Setenv(EnvRealmID, "999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RealmID != "999" {
		t.Errorf("RealmID = %q, want env override 999", cfg.RealmID)
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q, want %q", cfg.Path(), path)
	}
}

func TestLoadFallsBackToLegacyJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, LegacyConfigFile, `{"client_id": "cid", "client_secret": "cs", "refresh_token": "rt", "realm_id": "1", "default_days": 5}`)
	t.Chdir(dir)
	for _, k := range []string{EnvClientID, EnvClientSecret, EnvRefreshToken, EnvRealmID} {
		t.Setenv(k, "")
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Path() != LegacyConfigFile || cfg.DefaultDays != 5 {
		t.Errorf("Path() = %q DefaultDays = %d, want %s and 5", cfg.Path(), cfg.DefaultDays, LegacyConfigFile)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() error = nil, want error")
	}
}

func TestCredentialsStringRedactsSecrets(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	s := cfg.Credentials().String()
	if strings.Contains(s, "=secret") {
		t.Errorf("String() leaks secret: %s", s)
	}
	if strings.Contains(s, "rt-1") {
		t.Errorf("String() leaks refresh token: %s", s)
	}
	if !strings.Contains(s, "client_id=cid") {
		t.Errorf("String() = %s, want client id", s)
	}
}

func TestSaveRefreshToken(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", sampleYAML)

	if err := SaveRefreshToken(path, "rt-2"); err != nil {
		t.Fatalf("SaveRefreshToken() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "# company credentials") {
		t.Errorf("comment lost:\n%s", text)
	}
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.RefreshToken != "rt-2" {
		t.Errorf("RefreshToken = %q, want rt-2", cfg.RefreshToken)
	}
	if cfg.RealmID != "4620816365" || cfg.DefaultDays != 7 {
		t.Errorf("other keys changed: %+v", cfg)
	}
}

func TestSaveRefreshTokenAddsMissingKey(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"client_id": "cid", "realm_id": "1"}`)

	if err := SaveRefreshToken(path, "fresh"); err != nil {
		t.Fatalf("SaveRefreshToken() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.RefreshToken != "fresh" || cfg.ClientID != "cid" {
		t.Errorf("unexpected config after save: %+v", cfg)
	}
}
