package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "comfybridge",
	Short: "Runs talking-head video jobs against a ComfyUI engine",
	Long: `comfybridge turns a job (audio + portrait image) into a rendered video by
driving a ComfyUI instance: it materializes the inputs, binds them into a
workflow template, submits it and collects the resulting output.mp4.

All settings come from environment variables; see internal/config.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
