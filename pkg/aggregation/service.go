// Package aggregation plans and executes the read queries behind per-field
// statistics, filtered row counts and group points, and shapes their results.
package aggregation

import (
	"context"
	"database/sql"
	"flag"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eastonLua/teable/pkg/fieldmeta"
	"github.com/eastonLua/teable/pkg/link"
	"github.com/eastonLua/teable/pkg/querybuild"
	"github.com/eastonLua/teable/pkg/queryfilter"
	"github.com/eastonLua/teable/pkg/querysort"
	"github.com/eastonLua/teable/pkg/view"
)

// Config holds the aggregation service settings.
type Config struct {
	MaxGroupPoints int `yaml:"max_group_points"`
}

// RegisterFlags registers the flags for the aggregation service settings.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	f.IntVar(&cfg.MaxGroupPoints, "aggregation.max-group-points", 5000,
		"Maximum number of distinct group points a grouping request may produce before it is rejected.")
}

// FieldCatalog loads the field descriptors of a table.
type FieldCatalog interface {
	LoadFields(ctx context.Context, tableID string, ids ...string) ([]*fieldmeta.Field, error)
}

// ViewStore loads per-view configuration; a missing view is (nil, nil).
type ViewStore interface {
	LoadView(ctx context.Context, tableID, viewID string) (*view.View, error)
}

// TableResolver maps a table id to its physical table name.
type TableResolver interface {
	TableNameFor(ctx context.Context, tableID string) (string, error)
}

// FilterCompiler applies a filter tree to a query plan.
type FilterCompiler interface {
	Apply(plan querybuild.Plan, fields *fieldmeta.FieldSet, f *queryfilter.Filter, actorID string) (querybuild.Plan, error)
}

// SortCompiler applies sort keys to a query plan.
type SortCompiler interface {
	Apply(plan querybuild.Plan, fields *fieldmeta.FieldSet, keys []querysort.SortKey) querybuild.Plan
}

// Collaborators bundles the external stores and compilers the service
// consumes.
type Collaborators struct {
	Fields       FieldCatalog
	Views        ViewStore
	Tables       TableResolver
	Filters      FilterCompiler
	Sorts        SortCompiler
	LinkNarrower link.Narrower
	LinkSelected link.SelectedResolver
}

// Service is the aggregation query engine. All operations are request-scoped
// read pipelines; the service itself holds no per-request state.
type Service struct {
	cfg     Config
	db      *sql.DB
	c       Collaborators
	metrics *metrics
	logger  log.Logger
}

// NewService creates an aggregation service.
func NewService(cfg Config, db *sql.DB, c Collaborators, reg prometheus.Registerer, logger log.Logger) *Service {
	return &Service{
		cfg:     cfg,
		db:      db,
		c:       c,
		metrics: newMetrics(reg),
		logger:  logger,
	}
}

func (s *Service) observe(operation string, start time.Time) {
	s.metrics.queryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
