// Command vstate-server runs the HTTP boundary over pkg/orchestrator.
// Grounded on services/control-plane/coordinator/main.go's ListenAndServe
// + ReadHeaderTimeout shape, and on pkg/config's layered loader for
// startup configuration: <config-root>/vstate.yaml, then
// <config-root>/env/<env>/vstate.yaml, then VSTATE_-prefixed env vars
// (VSTATE_DB__DRIVER=sqlite -> {"db":{"driver":"sqlite"}}), then flags.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chartlylabs/vstate/internal/httpapi"
	"github.com/chartlylabs/vstate/internal/repostore"
	"github.com/chartlylabs/vstate/internal/ws"
	"github.com/chartlylabs/vstate/pkg/config"
	"github.com/chartlylabs/vstate/pkg/orchestrator"
	"github.com/chartlylabs/vstate/pkg/telemetry"
)

// serverConfig is the fully resolved startup configuration, after layering
// built-in defaults, pkg/config's bundle, and explicit flags (in that
// order of increasing precedence).
type serverConfig struct {
	Addr             string
	DBDriver         string
	DBDSN            string
	SnapshotInterval int
}

func main() {
	configRoot := flag.String("config-root", envOr("VSTATE_CONFIG_ROOT", "."), "directory holding vstate.yaml + env/<env>/vstate.yaml")
	env := flag.String("env", os.Getenv("VSTATE_ENV"), "deployment tier, selects env/<env>/vstate.yaml")
	addr := flag.String("addr", ":8080", "listen address")
	driver := flag.String("db-driver", repostore.DriverSQLite, "memory|sqlite|postgres")
	dsn := flag.String("db-dsn", "", "data source name (ignored for memory)")
	snapshotInterval := flag.Int("snapshot-interval", 0, "deltas between automatic snapshots (0 = package default)")
	flag.Parse()

	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	log := telemetry.NewDefaultLogger(os.Stdout, "vstate-server")
	ctx := context.Background()

	cfg := serverConfig{
		Addr:             *addr,
		DBDriver:         *driver,
		DBDSN:            *dsn,
		SnapshotInterval: *snapshotInterval,
	}
	applyConfigBundle(ctx, log, *configRoot, *env, &cfg, explicit)

	repo, closer, err := repostore.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Error(ctx, "open repository failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer closer()

	orch := orchestrator.New(repo, cfg.SnapshotInterval)
	hub := ws.NewHub()

	handler := httpapi.New(orch, hub, log, nil)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info(ctx, "starting", map[string]any{"addr": cfg.Addr, "db_driver": cfg.DBDriver})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error(ctx, "listen failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

// applyConfigBundle loads <configRoot>/vstate.yaml + env/<env>/vstate.yaml +
// VSTATE_-prefixed env var overrides and folds the result into cfg. Flags
// the operator actually passed (tracked in explicit) always win over the
// bundle; the bundle fills in every flag that was not passed. A missing or
// unreadable config root is not fatal: vstate-server then runs from flags
// alone, since the VSTATE_ overrides are read through the same loader. A
// readable root with no config files still applies the env var overrides.
func applyConfigBundle(ctx context.Context, log *telemetry.Logger, root, env string, cfg *serverConfig, explicit map[string]bool) {
	loader, err := config.NewLoader(root, config.Options{
		Service:  "vstate",
		Env:      env,
		EnvPrefix: "VSTATE_",
		OnWarn: func(code, detail string) {
			log.Warn(ctx, "config override skipped", map[string]any{"code": code, "detail": detail})
		},
	})
	if err != nil {
		log.Info(ctx, "config root unavailable, using flags only", map[string]any{"root": root, "error": err.Error()})
		return
	}

	bundle, err := loader.Load(ctx)
	if err != nil {
		log.Warn(ctx, "config load failed, using flags only", map[string]any{"root": root, "error": err.Error()})
		return
	}

	for _, doc := range bundle.Docs {
		log.Info(ctx, "loaded config layer", map[string]any{"path": doc.Path, "tier": doc.Tier})
	}

	if !explicit["addr"] {
		if v, ok := stringAt(bundle.Merged, "addr"); ok {
			cfg.Addr = v
		}
	}
	if !explicit["db-driver"] {
		if v, ok := stringAt(bundle.Merged, "db", "driver"); ok {
			cfg.DBDriver = v
		}
	}
	if !explicit["db-dsn"] {
		if v, ok := stringAt(bundle.Merged, "db", "dsn"); ok {
			cfg.DBDSN = v
		}
	}
	if !explicit["snapshot-interval"] {
		if v, ok := intAt(bundle.Merged, "snapshot_interval"); ok {
			cfg.SnapshotInterval = v
		}
	}
}

// stringAt walks a chain of nested map[string]any keys and returns the
// leaf as a string, matching the shape pkg/config produces from both
// JSON and YAML documents.
func stringAt(root map[string]any, path ...string) (string, bool) {
	v, ok := valueAt(root, path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func intAt(root map[string]any, path ...string) (int, bool) {
	v, ok := valueAt(root, path...)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := strconv.Atoi(n.String())
		return i, err == nil
	default:
		return 0, false
	}
}

func valueAt(root map[string]any, path ...string) (any, bool) {
	cur := any(root)
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
