// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

// Command tessera is a small operational CLI over a catalog repository
// stored in a local bolt database.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/tessera-io/tessera/pkg/catalog"
	"github.com/tessera-io/tessera/pkg/gc"
	"github.com/tessera-io/tessera/pkg/tessera"
	"github.com/tessera-io/tessera/storage"
	"github.com/tessera-io/tessera/storage/boltdb"
	"github.com/tessera-io/tessera/storage/storelogger"
)

var (
	rootCmd = &cobra.Command{
		Use:   "tessera",
		Short: "Versioned metadata catalog",
	}

	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Initialize the repository",
		RunE:  cmdInit,
	}
	eraseCmd = &cobra.Command{
		Use:   "erase",
		Short: "Erase all repository data",
		RunE:  cmdErase,
	}
	refsCmd = &cobra.Command{
		Use:   "refs",
		Short: "List named references",
		RunE:  cmdRefs,
	}
	logCmd = &cobra.Command{
		Use:   "log <ref>",
		Short: "Walk the commit log of a reference",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdLog,
	}
	gcCmd = &cobra.Command{
		Use:   "gc",
		Short: "Identify expired contents",
		RunE:  cmdGC,
	}

	flags struct {
		db         string
		repo       string
		branch     string
		debug      bool
		debugStore bool
		cutoff     time.Duration
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.db, "db", "tessera.db", "path of the bolt database file")
	pf.StringVar(&flags.repo, "repo", "default", "repository id")
	pf.StringVar(&flags.branch, "branch", "main", "default branch name")
	pf.BoolVar(&flags.debug, "debug", false, "enable debug logging")
	pf.BoolVar(&flags.debugStore, "debug-store", false, "log every store operation")

	gcCmd.Flags().DurationVar(&flags.cutoff, "cutoff", 30*24*time.Hour, "age at which commits expire")

	rootCmd.AddCommand(initCmd, eraseCmd, refsCmd, logCmd, gcCmd)

	// keep --help output stable regardless of flag declaration order
	pf.SortFlags = true
	pflag.CommandLine.AddFlagSet(pf)
}

func openAdapter(log *zap.Logger) (*catalog.Adapter, storage.KeyValueStore, error) {
	client, err := boltdb.New(flags.db, "tessera")
	if err != nil {
		return nil, nil, err
	}
	var store storage.KeyValueStore = client
	if flags.debugStore {
		store = storelogger.New(log.Named("store"), store)
	}

	config := catalog.DefaultConfig(flags.repo)
	config.DefaultBranch = flags.branch
	return catalog.New(log.Named("catalog"), store, config), store, nil
}

func newLogger() (*zap.Logger, error) {
	if flags.debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runWithAdapter(fn func(ctx context.Context, log *zap.Logger, adapter *catalog.Adapter) error) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	adapter, store, err := openAdapter(log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return fn(context.Background(), log, adapter)
}

func cmdInit(cmd *cobra.Command, args []string) error {
	return runWithAdapter(func(ctx context.Context, log *zap.Logger, adapter *catalog.Adapter) error {
		return adapter.InitializeRepo(ctx, flags.branch)
	})
}

func cmdErase(cmd *cobra.Command, args []string) error {
	return runWithAdapter(func(ctx context.Context, log *zap.Logger, adapter *catalog.Adapter) error {
		return adapter.EraseRepo(ctx)
	})
}

func cmdRefs(cmd *cobra.Command, args []string) error {
	return runWithAdapter(func(ctx context.Context, log *zap.Logger, adapter *catalog.Adapter) error {
		it, err := adapter.NamedRefs(ctx, tessera.RefInfoParams{IncludeNumTotalCommits: true})
		if err != nil {
			return err
		}
		defer func() { _ = it.Close() }()

		var info tessera.ReferenceInfo
		for it.Next(ctx, &info) {
			fmt.Printf("%s\t%s\t%d commits\n", info.Ref, info.Head, info.NumTotalCommits)
		}
		return it.Err()
	})
}

func cmdLog(cmd *cobra.Command, args []string) error {
	return runWithAdapter(func(ctx context.Context, log *zap.Logger, adapter *catalog.Adapter) error {
		head, err := adapter.HashOnReference(ctx, tessera.BranchName(args[0]), nil)
		if err != nil {
			// references listed by name may also be tags
			head, err = adapter.HashOnReference(ctx, tessera.TagName(args[0]), nil)
			if err != nil {
				return err
			}
		}

		it, err := adapter.CommitLog(ctx, head)
		if err != nil {
			return err
		}
		defer func() { _ = it.Close() }()

		var entry tessera.CommitLogEntry
		for it.Next(ctx, &entry) {
			created := time.UnixMicro(entry.CreatedTime).UTC().Format(time.RFC3339)
			fmt.Printf("%s  seq=%d  %s  %q\n", entry.Hash, entry.CommitSeq, created, entry.Metadata)
		}
		return it.Err()
	})
}

func cmdGC(cmd *cobra.Command, args []string) error {
	return runWithAdapter(func(ctx context.Context, log *zap.Logger, adapter *catalog.Adapter) error {
		config := gc.DefaultConfig(time.Now().Add(-flags.cutoff), flags.branch)
		collector := gc.NewCollector(log.Named("gc"), adapter, config)

		result, err := collector.IdentifyExpiredContents(ctx)
		if err != nil {
			return err
		}
		for refKey, perID := range result.Expired {
			for id, contents := range perID {
				for _, content := range contents {
					fmt.Printf("%s\t%s\t%s\t%d bytes\n", refKey, id, content.Key, len(content.Value))
				}
			}
		}
		for _, res := range result.Results {
			if res.Err != nil {
				fmt.Fprintf(os.Stderr, "walk of %s failed: %v\n", res.Ref, res.Err)
			}
		}
		return nil
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
