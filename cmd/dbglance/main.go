package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"
	"github.com/jessevdk/go-flags"
	"golang.org/x/term"

	"github.com/dbglance/dbglance/pkg/dataview"
	"github.com/dbglance/dbglance/pkg/store"
)

type options struct {
	DBFiles []string `short:"f" long:"db" env:"DBGLANCE_DB" env-delim:"," description:"database file to load, can be repeated"`
	Config  string   `short:"c" long:"config" env:"DBGLANCE_CONFIG" description:"config file, yaml or toml"`

	StoreDir   string `long:"store" env:"DBGLANCE_STORE" default:".dbglance" description:"directory for persisted databases"`
	StoreConn  string `long:"store-conn" env:"DBGLANCE_STORE_CONN" description:"SQL connection string for the image store, overrides --store"`
	Encrypt    bool   `long:"encrypt" env:"DBGLANCE_ENCRYPT" description:"encrypt stored images; key from $DBGLANCE_KEY or prompted"`
	MaxRows    int    `long:"max-rows" env:"DBGLANCE_MAX_ROWS" description:"cap on rows returned by any read, default 1000"`
	NoMemOpt   bool   `long:"no-mem-opt" description:"disable memory optimizations (clamping, truncation, count skipping)"`
	Concurrent int    `long:"concurrent" default:"4" description:"concurrent database file reads"`

	TablesCmd struct{} `command:"tables" description:"list tables of the active database"`

	DBsCmd struct{} `command:"dbs" description:"list loaded databases and store usage"`

	BrowseCmd struct {
		Table    string   `short:"t" long:"table" required:"true" description:"table to browse"`
		Page     int      `long:"page" default:"1" description:"1-based page number"`
		PageSize int      `long:"size" default:"50" description:"rows per page"`
		Search   string   `short:"s" long:"search" description:"free-text search across all columns"`
		Sort     string   `long:"sort" description:"column to sort by"`
		Order    string   `long:"order" choice:"asc" choice:"desc" default:"asc" description:"sort direction"`
		Filters  []string `long:"filter" description:"column filter as column:op[:value], e.g. age:>=:30"`
	} `command:"browse" description:"browse a table with search, filters and sorting"`

	QueryCmd struct {
		PositionalArgs struct {
			SQL string `positional-arg-name:"sql" description:"sql statement to run"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"query" description:"run ad-hoc sql against the active database"`

	InsertCmd struct {
		Table string   `short:"t" long:"table" required:"true" description:"target table"`
		Set   []string `long:"set" description:"column value as col=value, can be repeated; none inserts defaults"`
	} `command:"insert" description:"insert a single row"`

	UpdateCmd struct {
		Table string   `short:"t" long:"table" required:"true" description:"target table"`
		RowID int64    `short:"r" long:"rowid" required:"true" description:"native rowid of the row"`
		Set   []string `long:"set" required:"true" description:"column value as col=value, can be repeated"`
	} `command:"update" description:"update a single row by rowid"`

	DeleteCmd struct {
		Table string `short:"t" long:"table" required:"true" description:"target table"`
		RowID int64  `short:"r" long:"rowid" required:"true" description:"native rowid of the row"`
	} `command:"delete" description:"delete a single row by rowid"`

	ExportCmd struct {
		PositionalArgs struct {
			Path string `positional-arg-name:"path" description:"file to write the database image to"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"export" description:"export the active database image to a file"`

	Dbg bool `long:"dbg" description:"debug mode"`
}

var revision = "latest"

func main() {
	fmt.Printf("dbglance %s\n", revision)

	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		os.Exit(1)
	}
	setupLog(opts.Dbg)

	if err := run(p, opts); err != nil {
		if opts.Dbg {
			log.Panicf("[ERROR] %v", err)
		}
		fmt.Printf("failed, %v\n", err)
		os.Exit(1)
	}
}

func run(p *flags.Parser, opts options) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	limits, storeDir, storeConn, encrypt, err := effectiveConfig(opts)
	if err != nil {
		return err
	}

	st, err := makeStore(storeDir, storeConn, encrypt)
	if err != nil {
		return fmt.Errorf("can't create image store: %w", err)
	}

	svc := dataview.NewService(st, os.TempDir(), limits)
	defer func() {
		if err := svc.Close(); err != nil {
			log.Printf("[WARN] can't close databases: %v", err)
		}
	}()

	if err := svc.Restore(); err != nil {
		return fmt.Errorf("can't restore stored databases: %w", err)
	}

	if err := loadFiles(ctx, svc, opts.DBFiles, opts.Concurrent); err != nil {
		return err
	}

	switch {
	case p.Active != nil && p.Command.Find("tables") == p.Active:
		return showTables(svc)
	case p.Active != nil && p.Command.Find("dbs") == p.Active:
		return showDatabases(svc)
	case p.Active != nil && p.Command.Find("browse") == p.Active:
		return browse(svc, opts)
	case p.Active != nil && p.Command.Find("query") == p.Active:
		res, err := svc.RunQuery(opts.QueryCmd.PositionalArgs.SQL, "")
		if err != nil {
			return fmt.Errorf("can't run query: %w", err)
		}
		printResult(res)
		return nil
	case p.Active != nil && p.Command.Find("insert") == p.Active:
		values, err := parseAssignments(opts.InsertCmd.Set)
		if err != nil {
			return err
		}
		if err := svc.InsertRow(opts.InsertCmd.Table, values, ""); err != nil {
			return fmt.Errorf("can't insert row: %w", err)
		}
		log.Printf("[INFO] inserted row into %q", opts.InsertCmd.Table)
		return nil
	case p.Active != nil && p.Command.Find("update") == p.Active:
		values, err := parseAssignments(opts.UpdateCmd.Set)
		if err != nil {
			return err
		}
		if err := svc.UpdateRow(opts.UpdateCmd.Table, dataview.NativeRowID(opts.UpdateCmd.RowID), values, ""); err != nil {
			return fmt.Errorf("can't update row: %w", err)
		}
		log.Printf("[INFO] updated row %d in %q", opts.UpdateCmd.RowID, opts.UpdateCmd.Table)
		return nil
	case p.Active != nil && p.Command.Find("delete") == p.Active:
		if err := svc.DeleteRow(opts.DeleteCmd.Table, dataview.NativeRowID(opts.DeleteCmd.RowID), ""); err != nil {
			return fmt.Errorf("can't delete row: %w", err)
		}
		log.Printf("[INFO] deleted row %d from %q", opts.DeleteCmd.RowID, opts.DeleteCmd.Table)
		return nil
	case p.Active != nil && p.Command.Find("export") == p.Active:
		image, err := svc.ExportDatabase("")
		if err != nil {
			return fmt.Errorf("can't export database: %w", err)
		}
		if err := os.WriteFile(opts.ExportCmd.PositionalArgs.Path, image, 0o600); err != nil {
			return fmt.Errorf("can't write %s: %w", opts.ExportCmd.PositionalArgs.Path, err)
		}
		log.Printf("[INFO] exported %d bytes to %s", len(image), opts.ExportCmd.PositionalArgs.Path)
		return nil
	}

	return fmt.Errorf("no command given, see --help")
}

// effectiveConfig merges the optional settings file with flags; flags win.
func effectiveConfig(opts options) (limits dataview.Limits, storeDir, storeConn string, encrypt bool, err error) {
	limits = dataview.DefaultLimits
	storeDir, storeConn, encrypt = opts.StoreDir, opts.StoreConn, opts.Encrypt

	if opts.Config != "" {
		cfg, err := loadSettings(opts.Config)
		if err != nil {
			return limits, "", "", false, err
		}
		if cfg.MaxRows > 0 {
			limits.MaxRows = cfg.MaxRows
		}
		if cfg.MemoryOptimizations != nil {
			limits.MemoryOptimizations = *cfg.MemoryOptimizations
		}
		if cfg.MaxFileMB > 0 {
			limits.MaxFileBytes = cfg.MaxFileMB << 20
		}
		if cfg.EphemeralFileMB > 0 {
			limits.EphemeralFileBytes = cfg.EphemeralFileMB << 20
		}
		if cfg.StoreDir != "" {
			storeDir = cfg.StoreDir
		}
		if cfg.StoreConn != "" {
			storeConn = cfg.StoreConn
		}
		if cfg.Encrypt {
			encrypt = true
		}
	}

	if opts.MaxRows > 0 {
		limits.MaxRows = opts.MaxRows
	}
	if opts.NoMemOpt {
		limits.MemoryOptimizations = false
	}
	return limits, storeDir, storeConn, encrypt, nil
}

// makeStore builds the image store: SQL-backed when a connection string is given,
// plain directory otherwise, optionally encrypted.
func makeStore(dir, conn string, encrypt bool) (store.Store, error) {
	var crypt *store.Crypt
	if encrypt {
		key, err := encryptionKey()
		if err != nil {
			return nil, err
		}
		if crypt, err = store.NewCrypt(key); err != nil {
			return nil, err
		}
	}
	if conn != "" {
		return store.NewSQLStore(conn, crypt)
	}
	return store.NewFileStore(dir, crypt)
}

// encryptionKey takes the key from the environment or prompts for it.
func encryptionKey() ([]byte, error) {
	if key := os.Getenv("DBGLANCE_KEY"); key != "" {
		return []byte(key), nil
	}
	fmt.Print("encryption key: ")
	key, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("can't read encryption key: %w", err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("empty encryption key")
	}
	return key, nil
}

// loadFiles reads database files concurrently and registers them one by one;
// the last one loaded becomes active.
func loadFiles(ctx context.Context, svc *dataview.Service, files []string, concurrent int) error {
	if len(files) == 0 {
		return nil
	}
	images := make([][]byte, len(files))
	wg := syncs.NewErrSizedGroup(concurrent, syncs.Context(ctx), syncs.Preemptive)
	for i, fname := range files {
		i, fname := i, fname
		wg.Go(func() error {
			data, err := os.ReadFile(fname) // nolint
			if err != nil {
				return fmt.Errorf("can't read %s: %w", fname, err)
			}
			images[i] = data
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return err
	}
	for i, fname := range files {
		id, err := svc.LoadDatabase(images[i], filepath.Base(fname))
		if err != nil {
			return fmt.Errorf("can't load %s: %w", fname, err)
		}
		log.Printf("[DEBUG] loaded %s as %s", fname, id)
	}
	return nil
}

func showTables(svc *dataview.Service) error {
	tables, err := svc.ListTables("")
	if err != nil {
		return fmt.Errorf("can't list tables: %w", err)
	}
	for _, tbl := range tables {
		fmt.Println(tbl)
	}
	return nil
}

func showDatabases(svc *dataview.Service) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintln(w, bold("ID\tNAME\tSIZE\tACTIVE\tPERSISTED"))
	for _, info := range svc.ListDatabases() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%v\t%v\n", info.ID, info.Name, info.SizeBytes, info.Active, info.Persisted)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	usage, err := svc.EstimateUsage()
	if err != nil {
		return fmt.Errorf("can't estimate store usage: %w", err)
	}
	fmt.Printf("store usage: %d bytes\n", usage.Used)
	return nil
}

func browse(svc *dataview.Service, opts options) error {
	filters, err := parseFilters(opts.BrowseCmd.Filters)
	if err != nil {
		return err
	}
	req := dataview.BrowseRequest{
		Table:    opts.BrowseCmd.Table,
		Page:     opts.BrowseCmd.Page,
		PageSize: opts.BrowseCmd.PageSize,
		Search:   opts.BrowseCmd.Search,
		Filters:  filters,
	}
	if opts.BrowseCmd.Sort != "" {
		req.SortColumn = opts.BrowseCmd.Sort
		req.SortDir = dataview.SortDir(opts.BrowseCmd.Order)
	}
	res, err := svc.Browse(req, "")
	if err != nil {
		return fmt.Errorf("can't browse %q: %w", opts.BrowseCmd.Table, err)
	}
	printResult(res)
	return nil
}

func printResult(res dataview.QueryResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintln(w, bold(strings.Join(res.Columns, "\t")))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatValue(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()

	total := "unknown"
	if res.TotalCount != dataview.UnknownTotal {
		total = fmt.Sprintf("%d", res.TotalCount)
	}
	fmt.Printf("%d rows of %s (limit %d, offset %d)\n", res.RowCount, total, res.Limit, res.Offset)
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("0x%x", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
