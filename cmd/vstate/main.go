// Command vstate is the CLI front end for the versioned-state engine:
// one subcommand per orchestrator use case, plus list/stats/init.
// Grounded on cmd/chartly/main.go's os.Args[1] dispatch and
// flag.NewFlagSet-per-subcommand style.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chartlylabs/vstate/internal/repostore"
	"github.com/chartlylabs/vstate/pkg/delta"
	"github.com/chartlylabs/vstate/pkg/orchestrator"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "store":
		cmdStore(os.Args[2:])
	case "recall":
		cmdRecall(os.Args[2:])
	case "list":
		cmdList(os.Args[2:])
	case "verify":
		cmdVerify(os.Args[2:])
	case "stats":
		cmdStats(os.Args[2:])
	case "init":
		cmdInit(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("vstate store --state '<json>' [--coord <id>] [--author name] [--db-driver memory|sqlite|postgres] [--db-dsn dsn]")
	fmt.Println("vstate recall --coord <id> [--db-driver ...] [--db-dsn dsn]")
	fmt.Println("vstate list [--limit 100] [--db-driver ...] [--db-dsn dsn]")
	fmt.Println("vstate verify --coord <id> [--db-driver ...] [--db-dsn dsn]")
	fmt.Println("vstate stats [--db-driver ...] [--db-dsn dsn]")
	fmt.Println("vstate init [--db-driver sqlite|postgres] --db-dsn dsn")
}

func commonFlags(fs *flag.FlagSet) (driver, dsn *string) {
	driver = fs.String("db-driver", repostore.DriverSQLite, "memory|sqlite|postgres")
	dsn = fs.String("db-dsn", "", "data source name (ignored for memory)")
	return
}

func openOrchestrator(ctx context.Context, driver, dsn string) (*orchestrator.Orchestrator, func() error) {
	repo, closer, err := repostore.Open(ctx, driver, dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open repository failed:", err)
		os.Exit(1)
	}
	return orchestrator.New(repo, 0), closer
}

func cmdStore(args []string) {
	fs := flag.NewFlagSet("store", flag.ExitOnError)
	driver, dsn := commonFlags(fs)
	coordHint := fs.String("coord", "", "append to an existing coordinate id instead of deriving a new one")
	stateArg := fs.String("state", "", "state as a JSON document")
	author := fs.String("author", "", "author recorded on the delta")
	_ = fs.Parse(args)

	if *stateArg == "" {
		fmt.Fprintln(os.Stderr, "--state is required")
		os.Exit(2)
	}
	state, err := delta.ParseJSON([]byte(*stateArg))
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid --state JSON:", err)
		os.Exit(2)
	}

	ctx := context.Background()
	orch, closer := openOrchestrator(ctx, *driver, *dsn)
	defer closer()

	res, err := orch.Append(ctx, orchestrator.AppendRequest{
		CoordID: *coordHint,
		State:   state,
		Author:  *author,
		Now:     time.Now().UTC(),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "store failed:", err)
		os.Exit(1)
	}
	printJSON(map[string]any{
		"coord_id":         res.CoordID,
		"delta_id":         res.DeltaID,
		"snapshot_created": res.SnapshotCreated,
	})
}

func cmdRecall(args []string) {
	fs := flag.NewFlagSet("recall", flag.ExitOnError)
	driver, dsn := commonFlags(fs)
	coordID := fs.String("coord", "", "coordinate id to recall")
	_ = fs.Parse(args)
	if *coordID == "" {
		fmt.Fprintln(os.Stderr, "--coord is required")
		os.Exit(2)
	}

	ctx := context.Background()
	orch, closer := openOrchestrator(ctx, *driver, *dsn)
	defer closer()

	res, err := orch.Recall(ctx, *coordID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "recall failed:", err)
		os.Exit(1)
	}
	printJSON(map[string]any{
		"coord_id":    res.CoordID,
		"state":       res.State,
		"delta_count": res.DeltaCount,
	})
}

func cmdList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	driver, dsn := commonFlags(fs)
	limit := fs.Int("limit", 100, "maximum coordinates to list")
	_ = fs.Parse(args)

	ctx := context.Background()
	orch, closer := openOrchestrator(ctx, *driver, *dsn)
	defer closer()

	coords, err := orch.ListCoordinates(ctx, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list failed:", err)
		os.Exit(1)
	}
	printJSON(coords)
}

func cmdVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	driver, dsn := commonFlags(fs)
	coordID := fs.String("coord", "", "coordinate id to verify")
	_ = fs.Parse(args)
	if *coordID == "" {
		fmt.Fprintln(os.Stderr, "--coord is required")
		os.Exit(2)
	}

	ctx := context.Background()
	orch, closer := openOrchestrator(ctx, *driver, *dsn)
	defer closer()

	res, err := orch.Verify(ctx, *coordID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "verify failed:", err)
		os.Exit(1)
	}
	body := map[string]any{
		"verified_deltas": res.VerifiedDeltas,
		"total_deltas":    res.TotalDeltas,
		"chain_valid":     res.ChainValid,
	}
	if res.FirstBreak != nil {
		body["first_break"] = *res.FirstBreak
	}
	printJSON(body)
	if !res.ChainValid {
		os.Exit(1)
	}
}

func cmdStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	driver, dsn := commonFlags(fs)
	_ = fs.Parse(args)

	ctx := context.Background()
	orch, closer := openOrchestrator(ctx, *driver, *dsn)
	defer closer()

	stats, err := orch.Stats(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stats failed:", err)
		os.Exit(1)
	}
	printJSON(map[string]any{
		"coordinates": stats.CoordinateCount,
		"deltas":      stats.DeltaCount,
		"snapshots":   stats.SnapshotCount,
	})
}

func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	driver, dsn := commonFlags(fs)
	_ = fs.Parse(args)
	if *driver == repostore.DriverMemory {
		fmt.Fprintln(os.Stderr, "init has nothing to do for --db-driver memory")
		return
	}

	ctx := context.Background()
	_, closer, err := repostore.Open(ctx, *driver, *dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init failed:", err)
		os.Exit(1)
	}
	defer closer()
	fmt.Println("schema ready")
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
