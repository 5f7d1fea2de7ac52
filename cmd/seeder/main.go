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
	"bufio"
	"context"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/poiesic/sdstore"
	"github.com/poiesic/sdstore/core"
	"github.com/poiesic/sdstore/storage"
	"github.com/poiesic/sdstore/txn"
)

var sentences = []string{
	"The quick brown fox jumps over the lazy dog.",
	"A gentle breeze rustled the leaves of the old oak tree.",
	"She found a hidden key in the dusty attic.",
	"Rain drummed on the rooftop, creating a soothing rhythm.",
	"The ancient library held stories that never faded.",
	"A mysterious map led them to a forgotten treasure.",
	"The old clock chimed thirteen times in an abandoned town.",
	"The lighthouse beam cut through fog, guiding sailors safely.",
	"Seventeen geese unanimously voted to relocate the pond.",
	"The cat debugged the production database at 3 AM.",
	"The cache invalidation problem solved itself out of spite.",
	"The mutex died of loneliness.",
	"The race condition won by not participating.",
	"The watchdog timer fell asleep.",
}

var (
	dbPath      = flag.String("db", "./history_db", "store directory")
	seedFile    = flag.String("src", "", "file of seed data, one message per line")
	threadCount = flag.Int("threads", 4, "number of conversations")
	batchSize   = flag.Int("batch", 5, "messages per write transaction")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

// linesFromFile returns an iterator over lines in a file.
func linesFromFile(filename string) (iter.Seq[string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
	}, nil
}

// linesFromSlice returns an iterator over a slice of strings.
func linesFromSlice(lines []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, line := range lines {
			if !yield(line) {
				return
			}
		}
	}
}

// createThreads inserts n contact threads and returns their ids.
func createThreads(ctx context.Context, db *sdstore.Database, n int) ([]string, error) {
	ids := make([]string, n)
	err := db.Write(ctx, func(tx txn.WriteTx) error {
		for i := range ids {
			ids[i] = core.NewUniqueID()
			thread := &core.Thread{
				UniqueID:           ids[i],
				Kind:               core.ThreadKindContact,
				ContactPhoneNumber: fmt.Sprintf("+1555000%04d", i),
				ContactUUID:        uuid.NewString(),
				Name:               fmt.Sprintf("Contact %d", i+1),
			}
			if err := txn.Insert(tx, txn.Threads, thread); err != nil {
				return err
			}
		}
		return nil
	})
	return ids, err
}

// seedBatched spreads messages from source over threads round robin,
// batchSize messages per transaction. Returns the number inserted.
func seedBatched(ctx context.Context, db *sdstore.Database, threads []string, source iter.Seq[string], batchSize int) (int, error) {
	batch := make([]string, 0, batchSize)
	inserted := 0
	flush := func() error {
		err := db.Write(ctx, func(tx txn.WriteTx) error {
			for _, body := range batch {
				interaction := &core.Interaction{
					UniqueID:       core.NewUniqueID(),
					ThreadUniqueID: threads[inserted%len(threads)],
					Kind:           core.InteractionKindIncoming,
					Body:           body,
				}
				if err := txn.InsertInteraction(tx, interaction); err != nil {
					return err
				}
				inserted++
			}
			return nil
		})
		batch = batch[:0]
		return err
	}

	for line := range source {
		batch = append(batch, line)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return inserted, err
			}
		}
	}

	// Process any remaining lines
	if len(batch) > 0 {
		if err := flush(); err != nil {
			return inserted, err
		}
	}

	return inserted, nil
}

func run(ctx context.Context) error {
	if *threadCount <= 0 || *batchSize <= 0 {
		return fmt.Errorf("threads and batch must be greater than 0")
	}
	// A legacy directory makes a new store start out legacy only.
	if err := os.MkdirAll(filepath.Join(*dbPath, "legacy"), 0o755); err != nil {
		return err
	}
	db, err := sdstore.OpenDatabase(ctx, *dbPath,
		sdstore.WithKeyStore(storage.FileKeyStore{Dir: filepath.Join(*dbPath, "keys")}))
	if err != nil {
		return err
	}
	defer db.Close()

	var source iter.Seq[string]
	if *seedFile != "" {
		source, err = linesFromFile(*seedFile)
		if err != nil {
			return err
		}
	} else {
		source = linesFromSlice(sentences)
	}

	threads, err := createThreads(ctx, db, *threadCount)
	if err != nil {
		return err
	}
	n, err := seedBatched(ctx, db, threads, source, *batchSize)
	if err != nil {
		return err
	}
	slog.Info("seeded store", "db", *dbPath, "state", db.State(), "threads", len(threads), "messages", n)
	return nil
}

func main() {
	flag.Parse()
	if err := run(context.Background()); err != nil {
		slog.Error("seeding failed", "err", err)
		os.Exit(1)
	}
}
