// Package bootstrap wires the pieces cmd/server and cmd/worker both need
// from a loaded config.Config: observability, storage, the sync.Pipeline,
// and the failure notifier. Keeping this in one place means the two
// binaries build the same reconciliation stack from the same config,
// differing only in which trigger surface (HTTP vs. a ticker) drives it.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"

	"github.com/rezkam/reconcile/internal/config"
	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/dst"
	"github.com/rezkam/reconcile/internal/notify"
	"github.com/rezkam/reconcile/internal/observability"
	"github.com/rezkam/reconcile/internal/runctl"
	"github.com/rezkam/reconcile/internal/src"
	"github.com/rezkam/reconcile/internal/storage/gcs"
	"github.com/rezkam/reconcile/internal/storage/postgres"
	sqlstorage "github.com/rezkam/reconcile/internal/storage/sql"
	"github.com/rezkam/reconcile/internal/sync"
)

// Store is the combined gate-lease and run-history repository both
// storage backends (postgres, sql) implement.
type Store interface {
	runctl.Store
	runctl.RunHistory
	Close() error
}

// Observability holds the three OTel providers' shutdown hooks.
type Observability struct {
	Logger         *slog.Logger
	ShutdownLogger func(context.Context) error
	ShutdownTracer func(context.Context) error
	ShutdownMeter  func(context.Context) error
}

// InitObservability starts the logger, tracer and meter providers
// (internal/observability), following the teacher's own Init*Provider
// split. The single cfg.OTelEnabled flag enables or disables all three
// together.
func InitObservability(ctx context.Context, cfg config.ObservabilityConfig) (*Observability, error) {
	lp, logger, err := observability.InitLogger(ctx, cfg.ServiceName, cfg.OTelEnabled)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	tp, err := observability.InitTracerProvider(ctx, cfg.ServiceName, cfg.OTelEnabled)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracer provider: %w", err)
	}
	mp, err := observability.InitMeterProvider(ctx, cfg.ServiceName, cfg.OTelEnabled)
	if err != nil {
		return nil, fmt.Errorf("failed to init meter provider: %w", err)
	}
	return &Observability{
		Logger:         logger,
		ShutdownLogger: lp.Shutdown,
		ShutdownTracer: tp.Shutdown,
		ShutdownMeter:  mp.Shutdown,
	}, nil
}

const sqlitePrefix = "sqlite://"

// OpenStore selects the sqlite dev/test backend for a "sqlite://" DSN and
// the production pgxpool backend otherwise.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	if len(cfg.DSN) >= len(sqlitePrefix) && cfg.DSN[:len(sqlitePrefix)] == sqlitePrefix {
		return sqlstorage.NewStore(ctx, sqlstorage.DBConfig{
			Driver:          "sqlite",
			DSN:             cfg.DSN[len(sqlitePrefix):],
			MaxOpenConns:    int(cfg.MaxConns),
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
	}
	return postgres.NewStoreWithConfig(ctx, postgres.DBConfig{
		DSN:             cfg.DSN,
		MaxOpenConns:    int(cfg.MaxConns),
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
}

// BuildPipeline wires C2 (src.HTTPClient), C3/C6 (dst.GraphQLClient), C8
// (sync.FilterSpec) and the M3/M4 applier into a single sync.Pipeline,
// the same institution-scoped batch both the HTTP trigger and the
// worker's ticker loop drive.
func BuildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sync.Pipeline, error) {
	zone, err := cfg.Upstream.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to parse time zone: %w", err)
	}

	srcClient := src.NewHTTPClient(cfg.Upstream.SrcBaseURL, cfg.Upstream.SrcTimeout)
	dstClient := dst.NewGraphQLClient(cfg.Upstream.DstEndpoint, cfg.Upstream.DstTimeout)

	var cleanser dst.AddressCleanser = dst.NewCachingCleanser(dst.NewDARClient(cfg.Upstream.DarBaseURL, cfg.Upstream.DarTimeout))

	denyPatterns, err := compileDenyPatterns(cfg.Filter.NameDenyPatterns())
	if err != nil {
		return nil, fmt.Errorf("failed to compile name deny patterns: %w", err)
	}

	var unitUUID domain.UnitID
	if cfg.Filter.UnitUUID != "" {
		unitUUID, err = domain.ParseUnitID(cfg.Filter.UnitUUID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RECONCILE_FILTER_UNIT_UUID: %w", err)
		}
	}

	obsoleteRoots, err := parseUnitIDs(cfg.Run.ObsoleteUnitsRootList())
	if err != nil {
		return nil, fmt.Errorf("failed to parse RECONCILE_OBSOLETE_UNITS_ROOTS: %w", err)
	}

	var audit sync.AuditSink
	if cfg.Audit.GCSBucket != "" {
		sink, err := gcs.NewStore(ctx, cfg.Audit.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to init audit store: %w", err)
		}
		audit = sink
	}

	return &sync.Pipeline{
		Log:       logger,
		Zone:      zone,
		SrcClient: srcClient,
		DstReader: dstClient,
		Applier:   dst.Applier{Mutator: dstClient, Business: dstClient},
		Cleanser:  cleanser,
		Filter: sync.FilterSpec{
			UnitUUID:              unitUUID,
			NameDenyRegex:         denyPatterns,
			HierarchyClassEnabled: cfg.Filter.HierarchyClassEnabled,
			HierarchyFacet:        cfg.Filter.HierarchyFacet,
			HierarchyClassName:    cfg.Filter.HierarchyClassName,
		},
		Resolver:           dstClient,
		ObsoleteRoots:      obsoleteRoots,
		ApplyBusinessLogic: cfg.Run.ApplyBusinessLogic,
		BuildExtra:         cfg.Run.BuildExtra,
		DryRun:             cfg.Run.DryRun,
		Audit:              audit,
	}, nil
}

// Classification builds the src.StatusClassification the /timeline/sync/
// person handler needs, from the loaded config.
func Classification(cfg *config.Config) src.StatusClassification {
	active, leave := cfg.Upstream.Classification()
	return src.StatusClassification{ActiveCodes: active, LeaveCodes: leave}
}

// BuildNotifier wires the SMTP notifier behind the configured unit-ID
// suppression list (spec §9 open question 3), or a no-op when disabled.
func BuildNotifier(cfg config.NotifyConfig) notify.Notifier {
	if !cfg.Enabled {
		return notify.NoopNotifier{}
	}
	base := notify.NewSMTPNotifier(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPTo)

	suppress := cfg.SuppressUnitIDList()
	if len(suppress) == 0 {
		return base
	}
	set := make(map[string]struct{}, len(suppress))
	for _, id := range suppress {
		set[id] = struct{}{}
	}
	return notify.SuppressingNotifier{
		Next:     base,
		Suppress: set,
		UnitOfErr: func(err error) (string, bool) {
			id, ok := domain.UnitOf(err)
			if !ok {
				return "", false
			}
			return id.String(), true
		},
	}
}

func compileDenyPatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func parseUnitIDs(raw []string) ([]domain.UnitID, error) {
	out := make([]domain.UnitID, 0, len(raw))
	for _, s := range raw {
		id, err := domain.ParseUnitID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// MaskPassword redacts the password in a connection string for logging.
func MaskPassword(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil {
		return "[REDACTED]"
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "xxxxxx")
		}
	}
	return u.String()
}
