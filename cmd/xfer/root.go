package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/standalone-transfer/xfer/internal/logging"
)

// Persistent flags shared by every subcommand that touches a transfer,
// bound once in newRootCmd and read directly by run.go's RunE handler.
var (
	flagConf        string
	flagInterval    time.Duration
	flagClientSleep time.Duration
	flagWorkers     int
	flagChunkSize   int
	flagStepSize    int
	flagMaxPageSize int
	flagBar         string
	flagCopy        bool
	flagDryRun      bool
	flagMaxRetries  int
	flagLogLevel    string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "xfer",
		Short: "Transfer file trees between local disk, Google Drive, OneDrive, and HTTP sources",
		Long: `xfer moves a file tree from one configured backend to another, with
bounded-concurrency chunked uploads and automatic retry/throttle handling.

SOURCE and DEST are given as ALIAS:/PATH, where ALIAS names an entry in the
"configs" section of the --conf document and /PATH addresses a location
within that backend.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConf, "conf", "./xfer.json", "path to the configs/transfers/bar document")
	cmd.PersistentFlags().DurationVar(&flagInterval, "interval", 10*time.Millisecond, "dispatcher submit-loop pacing")
	cmd.PersistentFlags().DurationVar(&flagClientSleep, "client-sleep", time.Second, "default throttle duration when a Sleep outcome carries none")
	cmd.PersistentFlags().IntVar(&flagWorkers, "workers", 4, "size of the fixed worker pool")
	cmd.PersistentFlags().IntVar(&flagChunkSize, "chunk-size", 30*1024*1024, "upload chunk size in bytes")
	cmd.PersistentFlags().IntVar(&flagStepSize, "step-size", 1024*1024, "progress-reporting step size in bytes")
	cmd.PersistentFlags().IntVar(&flagMaxPageSize, "max-page-size", 0, "directory-listing page size; not passed to any backend's listing calls, which use each API's default page size")
	cmd.PersistentFlags().StringVar(&flagBar, "bar", "common", `progress display, "common" or "none"`)
	cmd.PersistentFlags().BoolVar(&flagCopy, "copy", false, "server-side Drive-to-Drive copy instead of download+upload")
	cmd.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "enumerate and size the source without writing (routes to the count destination)")
	cmd.PersistentFlags().IntVar(&flagMaxRetries, "max-retries", 0, "dead-letter a failing task once it has already been re-queued this many times (0 = unbounded retries)")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "silent|error|warn|info|debug|trace")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// newLogger builds the run-wide Logger from --log-level, falling back to
// info on an unparseable value rather than failing the whole command.
func newLogger() *logging.Logger {
	level, err := logging.ParseLevel(flagLogLevel)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.New(level, logging.FormatText, os.Stderr)
}
