// File: cmd/replay.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tandem/api/schemas"
	"github.com/xkilldash9x/tandem/internal/engine"
	"github.com/xkilldash9x/tandem/internal/observability"
)

func newReplayCmd() *cobra.Command {
	var (
		input       string
		output      string
		failOnError bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replays recorded coordinator calls through the worker pool",
		Long: `Reads a stream of replay cases ({"id","kind","plan"|"recovery"|"verify"}) and
writes one JSON result per line. Results arrive in completion order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, comps, err := setupCommand(cmd)
			if err != nil {
				return err
			}
			defer comps.Shutdown(ctx)
			logger := observability.GetLogger()

			in, err := openInput(cmd, input)
			if err != nil {
				return err
			}
			defer in.Close()

			out := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			sink := engine.NewJSONLSink(out)
			replay, err := engine.NewReplayEngine(cfg.Engine, logger, sink, comps.Coordinator)
			if err != nil {
				return err
			}

			cases := make(chan schemas.ReplayCase, cfg.Engine.QueueSize)
			replay.Start(ctx, cases)
			queued, feedErr := feedCases(ctx, in, cases)
			replay.Stop()

			logger.Info("Replay finished",
				zap.Int("queued", queued),
				zap.Int64("recorded", sink.Recorded()),
				zap.Int64("failed", sink.Failed()))

			if feedErr != nil {
				return feedErr
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if failOnError && sink.Failed() > 0 {
				return fmt.Errorf("%d of %d replay cases failed", sink.Failed(), sink.Recorded())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "replay cases, one JSON document per case, - for stdin")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "results file, - for stdout")
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "exit non-zero when any case fails")
	cmd.Flags().Int("concurrency", 0, "number of replay workers (overrides engine.worker_concurrency)")
	cmd.Flags().Duration("timeout", 0, "per-case timeout (overrides engine.default_task_timeout)")
	bindToConfig(cmd, "concurrency", "engine.worker_concurrency")
	bindToConfig(cmd, "timeout", "engine.default_task_timeout")
	return cmd
}

// feedCases decodes cases from r onto the queue until r is exhausted or ctx
// is done. The queue is always closed on return.
func feedCases(ctx context.Context, r io.Reader, cases chan<- schemas.ReplayCase) (int, error) {
	defer close(cases)

	dec := json.NewDecoder(r)
	queued := 0
	for dec.More() {
		var rc schemas.ReplayCase
		if err := dec.Decode(&rc); err != nil {
			return queued, fmt.Errorf("failed to decode replay case %d: %w", queued+1, err)
		}
		if rc.ID == "" {
			rc.ID = fmt.Sprintf("case-%d", queued+1)
		}
		select {
		case cases <- rc:
			queued++
		case <-ctx.Done():
			return queued, nil
		}
	}
	return queued, nil
}
