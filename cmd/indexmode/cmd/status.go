package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexmode/internal/config"
	moderr "github.com/Aman-CERP/indexmode/internal/errors"
	"github.com/Aman-CERP/indexmode/internal/output"
)

func newStatusCmd() *cobra.Command {
	var (
		addr       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "status [dir]",
		Short: "Show the status of a running session",
		Long: `Query the /status endpoint of a running session.

The session must have been started with metrics enabled (metrics.enabled in
.indexmode.yaml, INDEXMODE_METRICS_ADDR, or run --metrics-addr).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				dir, err := projectDir(args)
				if err != nil {
					return err
				}
				cfg, err := config.Load(dir)
				if err != nil {
					return err
				}
				addr = cfg.Metrics.Addr
			}

			st, raw, err := fetchStatus(cmd.Context(), addr)
			if err != nil {
				return err
			}
			if jsonOutput {
				_, err := cmd.OutOrStdout().Write(append(raw, '\n'))
				return err
			}
			printStatus(output.New(cmd.OutOrStdout()), st)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Session metrics address (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the raw status JSON")

	return cmd
}

func fetchStatus(ctx context.Context, addr string) (sessionStatus, []byte, error) {
	var st sessionStatus

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/status", nil)
	if err != nil {
		return st, nil, moderr.ValidationError("invalid status address", err).WithDetail("addr", addr)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return st, nil, moderr.IOError("no session answered", err).
			WithDetail("addr", addr).
			WithSuggestion("start a session with 'indexmode run --metrics-addr " + addr + "'")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return st, nil, moderr.IOError(fmt.Sprintf("status endpoint returned %s", resp.Status), nil)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return st, nil, moderr.IOError("decode status", err)
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, nil, moderr.IOError("decode status", err)
	}
	return st, raw, nil
}

func printStatus(out *output.Writer, st sessionStatus) {
	out.Mode(st.Mode.State.Dumb, st.Mode.State.Counter)
	fields := map[string]string{
		"root":       st.Root,
		"files":      strconv.Itoa(st.Files),
		"generation": strconv.FormatInt(st.Mode.State.Generation, 10),
		"scanning":   strconv.FormatBool(st.Scanning),
		"executor":   st.Mode.Executor.State,
		"queued":     strconv.Itoa(st.Mode.Executor.QueueLength),
		"idle":       strconv.Itoa(st.IdlePending) + " pending",
	}
	if st.Mode.Executor.CurrentTask != "" {
		fields["task"] = st.Mode.Executor.CurrentTask
	}
	if st.IndexPending {
		fields["index"] = "incomplete"
	}
	if st.Mode.LastTrace != nil {
		fields["last dumb"] = st.Mode.LastTrace.Reason
	}
	out.Fields(fields)
}
