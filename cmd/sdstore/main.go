// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/poiesic/sdstore"
	"github.com/poiesic/sdstore/coordinator"
	"github.com/poiesic/sdstore/migration"
	"github.com/poiesic/sdstore/storage"
	"github.com/poiesic/sdstore/txn"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "sdstore",
		Usage: "Inspect and maintain a message store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:     "db",
				Aliases:  []string{"d"},
				Usage:    "Path to the store directory",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "key-dir",
				Usage: "Directory holding the database key (defaults to <db>/keys)",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Fail instead of logging when a transaction reaches the wrong backend",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "state",
				Usage:  "Print the storage coordinator state",
				Action: stateCommand,
			},
			{
				Name:   "migrate",
				Usage:  "Copy the legacy store into the relational store",
				Action: migrateCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: migration.DefaultConfig().ReportInterval,
					},
					&cli.StringSliceFlag{
						Name:  "kv-collection",
						Usage: "Key/value collection to copy (repeatable)",
					},
				},
			},
			{
				Name:   "checkpoint",
				Usage:  "Checkpoint and truncate the relational write-ahead log",
				Action: checkpointCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "max-wait",
						Usage: "Longest time to wait for locks before skipping",
						Value: time.Second,
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Count the records of every model",
				Action: statsCommand,
			},
			{
				Name:  "kv",
				Usage: "Read and write key/value collections",
				Subcommands: []*cli.Command{
					{
						Name:      "get",
						Usage:     "Print one value",
						ArgsUsage: "<collection> <key>",
						Action:    kvGetCommand,
					},
					{
						Name:      "set",
						Usage:     "Store a string value",
						ArgsUsage: "<collection> <key> <value>",
						Action:    kvSetCommand,
					},
					{
						Name:      "list",
						Usage:     "List the keys of a collection",
						ArgsUsage: "<collection>",
						Action:    kvListCommand,
					},
				},
			},
			{
				Name:      "export-contacts",
				Usage:     "Write contact threads as a contact sync stream",
				ArgsUsage: "<file>",
				Action:    exportCommand((*sdstore.Database).ExportContacts),
			},
			{
				Name:      "import-contacts",
				Usage:     "Create or update contact threads from a contact sync stream",
				ArgsUsage: "<file>",
				Action:    importCommand((*sdstore.Database).ImportContacts),
			},
			{
				Name:      "export-groups",
				Usage:     "Write group threads as a group sync stream",
				ArgsUsage: "<file>",
				Action:    exportCommand((*sdstore.Database).ExportGroups),
			},
			{
				Name:      "import-groups",
				Usage:     "Create or update group threads from a group sync stream",
				ArgsUsage: "<file>",
				Action:    importCommand((*sdstore.Database).ImportGroups),
			},
		},
	}
}

func openDatabase(c *cli.Context, opts ...sdstore.DatabaseOption) (*sdstore.Database, error) {
	dbPath := c.String("db")
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	keyDir := c.String("key-dir")
	if keyDir == "" {
		keyDir = filepath.Join(dbPath, "keys")
	}
	strictness := coordinator.StrictLog
	if c.Bool("strict") {
		strictness = coordinator.StrictFail
	}
	opts = append([]sdstore.DatabaseOption{
		sdstore.WithLogger(slog.Default()),
		sdstore.WithKeyStore(storage.FileKeyStore{Dir: keyDir}),
		sdstore.WithStrictness(strictness, false),
	}, opts...)
	db, err := sdstore.OpenDatabase(c.Context, dbPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func stateCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()
	fmt.Fprintln(c.App.Writer, db.State())
	return nil
}

func migrateCommand(c *cli.Context) error {
	if c.Int("report-interval") <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	db, err := openDatabase(c, sdstore.WithKeyValueCollections(c.StringSlice("kv-collection")...))
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", c.String("db"))
	fmt.Fprintf(c.App.ErrWriter, "State: %s\n\n", db.State())

	report, err := db.Migrate(c.Context,
		migration.WithConfig(&migration.Config{ReportInterval: c.Int("report-interval")}),
		migration.WithProgress(c.App.ErrWriter))
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	names := make([]string, 0, len(report.Migrated))
	for name := range report.Migrated {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(c.App.Writer, "%s\t%d\n", name, report.Migrated[name])
	}
	fmt.Fprintf(c.App.ErrWriter, "State: %s\n", db.State())
	return nil
}

func checkpointCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := db.SyncTruncatingCheckpoint(c.Context, c.Duration("max-wait"))
	if err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	if result.Skipped {
		fmt.Fprintln(c.App.Writer, "skipped: store busy")
		return nil
	}
	fmt.Fprintf(c.App.Writer, "checkpointed %d of %d pages\n", result.PagesCheckpointed, result.WALSizePages)
	return nil
}

func statsCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.Stats(c.Context)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(c.App.Writer, "%s\t%d\n", name, stats[name])
	}
	return nil
}

func requireArgs(c *cli.Context, n int) error {
	if c.NArg() != n {
		return fmt.Errorf("expected %d arguments: %s", n, c.Command.ArgsUsage)
	}
	return nil
}

func kvGetCommand(c *cli.Context) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	kv, err := db.KeyValueStore(c.Args().Get(0))
	if err != nil {
		return err
	}
	return db.Read(c.Context, func(tx txn.ReadTx) error {
		v, ok, err := kv.Object(tx, c.Args().Get(1))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: %w", c.Args().Get(1), storage.ErrNotFound)
		}
		fmt.Fprintln(c.App.Writer, formatValue(v))
		return nil
	})
}

func kvSetCommand(c *cli.Context) error {
	if err := requireArgs(c, 3); err != nil {
		return err
	}
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	kv, err := db.KeyValueStore(c.Args().Get(0))
	if err != nil {
		return err
	}
	return db.Write(c.Context, func(tx txn.WriteTx) error {
		return kv.SetString(tx, c.Args().Get(1), c.Args().Get(2))
	})
}

func kvListCommand(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	kv, err := db.KeyValueStore(c.Args().Get(0))
	if err != nil {
		return err
	}
	return db.Read(c.Context, func(tx txn.ReadTx) error {
		return kv.EnumerateKeys(tx, func(key string, _ *bool) error {
			_, err := fmt.Fprintln(c.App.Writer, key)
			return err
		})
	})
}

func formatValue(v storage.Value) string {
	switch v.Kind() {
	case storage.KindString:
		s, _ := v.AsString()
		return s
	case storage.KindBool:
		b, _ := v.AsBool()
		return fmt.Sprint(b)
	case storage.KindInt:
		i, _ := v.AsInt()
		return fmt.Sprint(i)
	case storage.KindUint:
		u, _ := v.AsUint()
		return fmt.Sprint(u)
	case storage.KindDouble:
		f, _ := v.AsDouble()
		return fmt.Sprint(f)
	case storage.KindDate:
		t, _ := v.AsDate()
		return t.Format(time.RFC3339Nano)
	case storage.KindData:
		b, _ := v.AsData()
		return fmt.Sprintf("%x", b)
	case storage.KindList:
		items, _ := v.AsList()
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = formatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case storage.KindMap:
		m, _ := v.AsMap()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + formatValue(m[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return v.Kind().String()
	}
}

func exportCommand(export func(*sdstore.Database, context.Context, io.Writer) (int, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		if err := requireArgs(c, 1); err != nil {
			return err
		}
		db, err := openDatabase(c)
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Create(c.Args().Get(0))
		if err != nil {
			return err
		}
		n, err := export(db, c.Context, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Fprintf(c.App.ErrWriter, "Exported %d records\n", n)
		return nil
	}
}

func importCommand(load func(*sdstore.Database, context.Context, io.Reader) (int, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		if err := requireArgs(c, 1); err != nil {
			return err
		}
		db, err := openDatabase(c)
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Open(c.Args().Get(0))
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := load(db, c.Context, f)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		fmt.Fprintf(c.App.ErrWriter, "Imported %d records\n", n)
		return nil
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
