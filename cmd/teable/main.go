package main

import (
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v2"

	"github.com/eastonLua/teable/pkg/aggregation"
	"github.com/eastonLua/teable/pkg/fieldmeta"
	"github.com/eastonLua/teable/pkg/link"
	"github.com/eastonLua/teable/pkg/queryfilter"
	"github.com/eastonLua/teable/pkg/querysort"
	"github.com/eastonLua/teable/pkg/server"
	"github.com/eastonLua/teable/pkg/tablemeta"
	"github.com/eastonLua/teable/pkg/view"
)

type config struct {
	ListenAddr     string             `yaml:"listen_addr"`
	DatabaseURL    string             `yaml:"database_url"`
	MaxConnections int                `yaml:"max_connections"`
	LogLevel       string             `yaml:"log_level"`
	Aggregation    aggregation.Config `yaml:"aggregation"`
}

func (c *config) registerFlags(f *flag.FlagSet) {
	f.StringVar(&c.ListenAddr, "server.listen-addr", ":3333", "Address to listen on.")
	f.StringVar(&c.DatabaseURL, "db.url", "", "PostgreSQL connection string.")
	f.IntVar(&c.MaxConnections, "db.max-connections", 16, "Maximum number of open database connections.")
	f.StringVar(&c.LogLevel, "log.level", "info", "Log level: debug, info, warn, error.")
	c.Aggregation.RegisterFlags(f)
}

// loadConfig layers defaults, an optional YAML file and command line flags,
// flags last.
func loadConfig(args []string) (*config, error) {
	var configFile string
	fs := flag.NewFlagSet("teable", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVar(&configFile, "config.file", "", "YAML configuration file to load.")

	cfg := &config{}
	cfg.registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		if err := yaml.UnmarshalStrict(buf, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config file")
		}
		// Re-apply flags so explicit command line values win over the file.
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newLogger(logLevel string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	var opt level.Option
	switch logLevel {
	case "debug":
		opt = level.AllowDebug()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		opt = level.AllowInfo()
	}
	logger = level.NewFilter(logger, opt)
	return log.With(logger, "ts", log.DefaultTimestampUTC)
}

func run() error {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		return errors.New("-db.url is required")
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections / 2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return errors.Wrap(err, "ping database")
	}

	reg := prometheus.DefaultRegisterer
	links := link.NewStore(db, logger)
	svc := aggregation.NewService(cfg.Aggregation, db, aggregation.Collaborators{
		Fields:       fieldmeta.NewCatalog(db, logger),
		Views:        view.NewStore(db, logger),
		Tables:       tablemeta.NewResolver(db, logger),
		Filters:      queryfilter.NewCompiler(logger),
		Sorts:        querysort.NewCompiler(logger),
		LinkNarrower: links,
		LinkSelected: links,
	}, reg, logger)

	router := mux.NewRouter()
	server.NewAPI(svc, logger).RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler())

	level.Info(logger).Log("msg", "listening", "addr", cfg.ListenAddr)
	return http.ListenAndServe(cfg.ListenAddr, router)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "teable:", err)
		os.Exit(1)
	}
}
