package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/standalone-transfer/xfer/internal/backend"
	"github.com/standalone-transfer/xfer/internal/backends/count"
	"github.com/standalone-transfer/xfer/internal/config"
	"github.com/standalone-transfer/xfer/internal/engine"
	"github.com/standalone-transfer/xfer/internal/progress"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run SOURCE DEST",
		Short: "Transfer a file tree from SOURCE to DEST",
		Args:  cobra.ExactArgs(2),
		RunE:  runRun,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	doc, err := config.Load(flagConf)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bArgs := backend.Args{
		ChunkSize:   flagChunkSize,
		StepSize:    flagStepSize,
		MaxPageSize: flagMaxPageSize,
		Copy:        flagCopy,
	}

	srcAlias, srcPath, err := config.SplitAliasPath(args[0])
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}

	var dryRunDest *count.Backend
	var destination backend.Backend
	if flagDryRun {
		b, err := count.New(ctx, nil, "", bArgs)
		if err != nil {
			return err
		}
		dryRunDest = b.(*count.Backend)
		destination = b
	} else {
		dstAlias, dstPath, err := config.SplitAliasPath(args[1])
		if err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		if flagCopy {
			if err := doc.ResolveCopyPair(srcAlias, dstAlias); err != nil {
				return fmt.Errorf("copy mode: %w", err)
			}
		}
		destination, err = doc.Resolve(ctx, dstAlias, dstPath, bArgs)
		if err != nil {
			return fmt.Errorf("resolving destination %q: %w", args[1], err)
		}
	}

	source, err := doc.Resolve(ctx, srcAlias, srcPath, bArgs)
	if err != nil {
		return fmt.Errorf("resolving source %q: %w", args[0], err)
	}

	var sink progress.Sink = progress.Noop{}
	if flagBar != "none" {
		sink = progress.NewConsole(nil)
	}

	eng := engine.New(engine.Options{
		Workers:        flagWorkers,
		Interval:       flagInterval,
		ClientSleep:    flagClientSleep,
		MaxFailRetries: flagMaxRetries,
		Sink:           sink,
		Logger:         logger,
	})

	result, runErr := eng.Run(ctx, source, destination)
	logger.Info("transfer finished",
		"succeeded", result.Succeeded,
		"existed", result.Existed,
		"dead_lettered", len(result.DeadLettered))

	if dryRunDest != nil {
		snap := dryRunDest.Snapshot()
		fmt.Fprintf(cmd.OutOrStdout(), "dry run: %d file(s), %d byte(s) would transfer\n", snap.Files, snap.Bytes)
	}

	if runErr != nil {
		return runErr
	}
	if len(result.DeadLettered) > 0 {
		return fmt.Errorf("%d task(s) exhausted retries and were dead-lettered", len(result.DeadLettered))
	}
	return nil
}
