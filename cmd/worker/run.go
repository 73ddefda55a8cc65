package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"comfybridge/internal/worker"
)

var (
	runInput  string
	runOutput string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single job from a JSON file and exit",
	Long: `run reads a payload from --input (or stdin), runs it once and writes the
outcome JSON to --output (or stdout). The payload may be the bare input
object or a {"input": {...}} envelope as used by serverless test inputs.

The command exits non-zero when the job fails.`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "-", "payload file, - for stdin")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "-", "outcome file, - for stdout")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	raw, err := readPayload(runInput)
	if err != nil {
		return err
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	res, jobErr := a.proc.Handle(ctx, unwrapInput(raw))
	out := worker.NewOutcome("local", res, jobErr)

	if err := writeOutcome(runOutput, out); err != nil {
		return err
	}
	if jobErr != nil {
		return fmt.Errorf("job failed: %s", out.Error.Code)
	}
	return nil
}

func readPayload(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// unwrapInput returns raw["input"] when raw is an envelope, else raw.
func unwrapInput(raw []byte) []byte {
	var env struct {
		Input json.RawMessage `json:"input"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Input) > 0 && env.Input[0] == '{' {
		return env.Input
	}
	return raw
}

func writeOutcome(path string, v any) error {
	w := io.Writer(os.Stdout)
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
