package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanchxt/yoop-sub002/fileio"
	"github.com/sanchxt/yoop-sub002/history"
	"github.com/sanchxt/yoop-sub002/qr"
	"github.com/sanchxt/yoop-sub002/session"
	"github.com/sanchxt/yoop-sub002/transfer"
)

func newShareCmd() *cobra.Command {
	var (
		expire      time.Duration
		compression string
		parallel    uint32
		showQR      bool
	)
	cmd := &cobra.Command{
		Use:   "share <file|dir>...",
		Short: "offer one or more files or directories to a single peer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := gatherSendFiles(args)
			if err != nil {
				return err
			}
			mode, err := fileio.ParseCompressionMode(compression)
			if err != nil {
				return err
			}

			s, err := session.NewShareSession(current.node, session.ShareConfig{
				Files:       files,
				Expire:      expire,
				Compression: mode,
				PortRange: session.TransferPortRange{
					Start: current.cfg.Network.TransferPortStart,
					End:   current.cfg.Network.TransferPortEnd,
				},
				ParallelStreams: parallel,
			})
			if err != nil {
				return fmt.Errorf("start share session: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "code: %s\n", s.Code().String())
			if showQR {
				ascii, err := qr.ASCII(s.Code().String())
				if err == nil {
					fmt.Fprintln(cmd.OutOrStdout(), ascii)
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			started := time.Now()
			runErr := s.Run(ctx)

			entry := shareHistoryEntry(s.Code().String(), files, started, runErr)
			if appendErr := current.history.Append(entry, current.cfg.History.MaxEntries); appendErr != nil {
				current.log.Warn("failed to record share history", "error", appendErr)
			}
			return runErr
		},
	}
	cmd.Flags().DurationVar(&expire, "expire", 10*time.Minute, "how long the code stays valid if no peer connects")
	cmd.Flags().StringVar(&compression, "compression", string(fileio.CompressionAuto), "compression mode: auto|always|never")
	cmd.Flags().Uint32Var(&parallel, "parallel-streams", 4, "number of chunk streams in flight at once")
	cmd.Flags().BoolVar(&showQR, "qr", false, "also print the code as an ASCII QR code")
	return cmd
}

// gatherSendFiles expands each CLI argument into one or more
// transfer.SendFile entries: a plain file becomes one entry named by its
// base name, a directory is walked recursively with entries named
// relative to the directory's own parent (so "yoopd share photos/"
// reconstructs a "photos/..." tree on the receiving side).
func gatherSendFiles(paths []string) ([]transfer.SendFile, error) {
	var files []transfer.SendFile
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, transfer.SendFile{AbsPath: abs, RelPath: filepath.Base(abs)})
			continue
		}
		base := filepath.Base(abs)
		parent := filepath.Dir(abs)
		err = filepath.WalkDir(abs, func(walkPath string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(parent, walkPath)
			if err != nil {
				return err
			}
			files = append(files, transfer.SendFile{AbsPath: walkPath, RelPath: filepath.ToSlash(rel)})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", base, err)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to share")
	}
	return files, nil
}

func shareHistoryEntry(code string, files []transfer.SendFile, started time.Time, runErr error) history.Entry {
	records := make([]history.FileRecord, 0, len(files))
	var total uint64
	for _, f := range files {
		size := uint64(0)
		if info, err := os.Stat(f.AbsPath); err == nil {
			size = uint64(info.Size())
		}
		total += size
		records = append(records, history.FileRecord{Name: f.RelPath, Size: size, Success: runErr == nil})
	}

	state := history.StateCompleted
	var errMsg *string
	if runErr != nil {
		state = history.StateFailed
		msg := runErr.Error()
		errMsg = &msg
	}

	return history.Entry{
		Direction:    history.DirectionSent,
		Code:         code,
		Files:        records,
		TotalBytes:   total,
		State:        state,
		DurationSecs: time.Since(started).Seconds(),
		ErrorMessage: errMsg,
	}
}
