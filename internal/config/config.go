// Package config loads and validates this service's configuration from
// environment variables, using the reflection-tag loader in
// internal/env (kept from the teacher's own config package).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rezkam/reconcile/internal/env"
)

// Config holds every setting the server and worker binaries need.
type Config struct {
	Database      DatabaseConfig
	HTTP          HTTPConfig
	Run           RunConfig
	Upstream      UpstreamConfig
	Filter        FilterConfig
	Notify        NotifyConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// DatabaseConfig is the DSN the storage layer connects the run gate and
// lease tables with. A "sqlite://" prefix selects the dev/test backend;
// anything else is handed to pgx.
type DatabaseConfig struct {
	DSN             string        `env:"RECONCILE_DB_DSN"`
	MaxConns        int32         `env:"RECONCILE_DB_MAX_CONNS"`
	ConnMaxLifetime time.Duration `env:"RECONCILE_DB_CONN_MAX_LIFETIME"`
}

// Validate implements env.Validator.
func (c DatabaseConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("RECONCILE_DB_DSN is required")
	}
	return nil
}

// HTTPConfig configures the trigger/status/metrics HTTP surface.
type HTTPConfig struct {
	Host              string        `env:"RECONCILE_HTTP_HOST"`
	Port              string        `env:"RECONCILE_HTTP_PORT"`
	ReadTimeout       time.Duration `env:"RECONCILE_HTTP_READ_TIMEOUT"`
	WriteTimeout      time.Duration `env:"RECONCILE_HTTP_WRITE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `env:"RECONCILE_HTTP_READ_HEADER_TIMEOUT"`
}

// RunConfig configures the run-gating state machine and the
// per-institution executor loop (C7).
type RunConfig struct {
	Institutions       string        `env:"RECONCILE_INSTITUTIONS"`         // comma-separated
	GateLease          time.Duration `env:"RECONCILE_GATE_LEASE"`
	ReadDeadline       time.Duration `env:"RECONCILE_READ_DEADLINE"`
	MutateDeadline     time.Duration `env:"RECONCILE_MUTATE_DEADLINE"`
	DryRun             bool          `env:"RECONCILE_DRY_RUN"`
	ObsoleteUnitsRoots string        `env:"RECONCILE_OBSOLETE_UNITS_ROOTS"` // comma-separated UUIDs
	BuildExtra         bool          `env:"RECONCILE_BUILD_EXTRA"`
	ApplyBusinessLogic bool          `env:"RECONCILE_APPLY_BUSINESS_LOGIC_ENABLED"`
	PollInterval       time.Duration `env:"RECONCILE_POLL_INTERVAL"`
}

// ObsoleteUnitsRootList splits ObsoleteUnitsRoots on commas, trimming
// whitespace and dropping empty entries. Callers parse each entry into
// a domain.UnitID -- this package stays decoupled from internal/domain.
func (c RunConfig) ObsoleteUnitsRootList() []string {
	var out []string
	for _, s := range strings.Split(c.ObsoleteUnitsRoots, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// InstitutionList splits Institutions on commas, trimming whitespace and
// dropping empty entries.
func (c RunConfig) InstitutionList() []string {
	var out []string
	for _, s := range strings.Split(c.Institutions, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate implements env.Validator.
func (c RunConfig) Validate() error {
	if len(c.InstitutionList()) == 0 {
		return fmt.Errorf("RECONCILE_INSTITUTIONS must list at least one institution")
	}
	return nil
}

// UpstreamConfig configures the SRC and DST collaborator connections and
// the status-code classification tables C2 needs (spec §4.2).
type UpstreamConfig struct {
	Zone string `env:"RECONCILE_TIME_ZONE"`

	SrcBaseURL string        `env:"RECONCILE_SRC_BASE_URL"`
	SrcTimeout time.Duration `env:"RECONCILE_SRC_TIMEOUT"`

	DstEndpoint string        `env:"RECONCILE_DST_ENDPOINT"`
	DstTimeout  time.Duration `env:"RECONCILE_DST_TIMEOUT"`

	DarBaseURL string        `env:"RECONCILE_DAR_BASE_URL"`
	DarTimeout time.Duration `env:"RECONCILE_DAR_TIMEOUT"`

	ActiveStatusCodes string `env:"RECONCILE_ACTIVE_STATUS_CODES"` // comma-separated
	LeaveStatusCodes  string `env:"RECONCILE_LEAVE_STATUS_CODES"`  // comma-separated
}

// Validate implements env.Validator.
func (c UpstreamConfig) Validate() error {
	if c.SrcBaseURL == "" {
		return fmt.Errorf("RECONCILE_SRC_BASE_URL is required")
	}
	if c.DstEndpoint == "" {
		return fmt.Errorf("RECONCILE_DST_ENDPOINT is required")
	}
	return nil
}

// Location parses Zone, defaulting to UTC when unset.
func (c UpstreamConfig) Location() (*time.Location, error) {
	if c.Zone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Zone)
}

func splitCSV(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func codeSet(csv string) map[string]bool {
	out := make(map[string]bool)
	for _, code := range splitCSV(csv) {
		out[code] = true
	}
	return out
}

// Classification builds the src.StatusClassification tables from the
// configured comma-separated code lists. It returns plain maps so this
// package does not need to import internal/src.
func (c UpstreamConfig) Classification() (active, leave map[string]bool) {
	return codeSet(c.ActiveStatusCodes), codeSet(c.LeaveStatusCodes)
}

// FilterConfig configures C8's three filters.
type FilterConfig struct {
	UnitUUID              string `env:"RECONCILE_FILTER_UNIT_UUID"`
	NameDenyRegex         string `env:"RECONCILE_FILTER_NAME_DENY_REGEX"` // "|"-separated
	HierarchyClassEnabled bool   `env:"RECONCILE_FILTER_HIERARCHY_CLASS_ENABLED"`
	HierarchyFacet        string `env:"RECONCILE_FILTER_HIERARCHY_FACET"`
	HierarchyClassName    string `env:"RECONCILE_FILTER_HIERARCHY_CLASS_NAME"`
}

// NameDenyPatterns splits the "|"-separated deny-list into individual
// regex source strings for the caller to compile.
func (c FilterConfig) NameDenyPatterns() []string {
	var out []string
	for _, p := range strings.Split(c.NameDenyRegex, "|") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NotifyConfig configures the hard-failure email notification channel.
type NotifyConfig struct {
	Enabled              bool   `env:"RECONCILE_NOTIFY_ENABLED"`
	SMTPAddr             string `env:"RECONCILE_SMTP_ADDR"`
	SMTPFrom             string `env:"RECONCILE_SMTP_FROM"`
	SMTPTo               string `env:"RECONCILE_SMTP_TO"`                   // comma-separated
	EmailSuppressUnitIDs string `env:"RECONCILE_EMAIL_SUPPRESS_UNIT_UUIDS"` // comma-separated
}

// SuppressUnitIDList splits EmailSuppressUnitIDs on commas, trimming
// whitespace and dropping empty entries.
func (c NotifyConfig) SuppressUnitIDList() []string {
	return splitCSV(c.EmailSuppressUnitIDs)
}

// AuditConfig optionally mirrors the dry-run operation stream to a GCS
// bucket for later inspection.
type AuditConfig struct {
	GCSBucket string `env:"RECONCILE_AUDIT_GCS_BUCKET"`
}

// ObservabilityConfig configures the OTel bootstrap.
type ObservabilityConfig struct {
	OTelEnabled  bool   `env:"RECONCILE_OTEL_ENABLED"`
	ServiceName  string `env:"OTEL_SERVICE_NAME"`
	OTLPEndpoint string `env:"RECONCILE_OTLP_ENDPOINT"`
}

// Load parses environment variables into a Config, applying this
// service's defaults before validation.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
		},
		Run: RunConfig{
			GateLease:      30 * time.Minute,
			ReadDeadline:   10 * time.Second,
			MutateDeadline: 10 * time.Second,
			PollInterval:   1 * time.Hour,
		},
		Database: DatabaseConfig{
			MaxConns: 4,
		},
		Upstream: UpstreamConfig{
			Zone:       "UTC",
			SrcTimeout: 30 * time.Second,
			DstTimeout: 30 * time.Second,
			DarBaseURL: "https://api.dataforsyningen.dk/adresser/autocomplete",
			DarTimeout: 10 * time.Second,
		},
		Observability: ObservabilityConfig{
			ServiceName:  "reconcile",
			OTLPEndpoint: "localhost:4318",
		},
	}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Database.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Run.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Upstream.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
