package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/viewcore/internal/config"
	"github.com/vango-dev/viewcore/internal/demo"
	"github.com/vango-dev/viewcore/internal/errors"
	"github.com/vango-dev/viewcore/pkg/driver"
	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/journal"
)

func replayCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		dump    bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "replay <session>",
		Short: "Replay a recorded session journal",
		Long: `Replay the messages and actions recorded for one session against a
fresh todo demo, one recorded cycle at a time, and print the resulting
element tree.

The session is the journal id logged by "viewcore serve --journal". It
is read from the configured journal sink.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			sink, err := openSink(cfg.Journal, args[0])
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			if verbose {
				if logger, err = cfg.Log.NewLogger(os.Stderr); err != nil {
					return err
				}
			}

			tree, state, n, err := replay(cmd.Context(), sink, logger)
			if err != nil {
				return err
			}
			success("Replayed %d entries", n)
			info("Todos: %d, filter: %s", len(state.Todos), state.Filter)
			if dump {
				fmt.Print(tree.Dump())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dump, "dump", true, "Print the final element tree")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log driver activity to stderr")
	return cmd
}

// replay rebuilds the demo from sink into a fresh element tree. Each
// recorded cycle is replayed as one batch so its messages are routed
// against the same tree they were routed against live.
func replay(ctx context.Context, sink journal.Sink, logger *slog.Logger) (*element.Memory, demo.State, int, error) {
	tree := element.NewMemory()
	d := driver.New[demo.State](&demo.App{}, tree, demo.Initial(), driver.WithLogger(logger))
	if _, err := d.Step(ctx); err != nil {
		return nil, demo.State{}, 0, errors.New("VC301").Wrap(err)
	}

	n, err := journal.Replay(ctx, sink, demo.Codec{}, func(ctx context.Context, batch []driver.Entry) error {
		_, err := d.Replay(ctx, batch)
		return err
	})
	if err != nil {
		return nil, demo.State{}, n, errors.New("VC301").WithDetail(fmt.Sprintf("Stopped after %d entries", n)).Wrap(err)
	}
	return tree, d.State(), n, nil
}
