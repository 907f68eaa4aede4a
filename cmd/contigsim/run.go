package main

import (
	"os"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Execute a command script non-interactively",
	Long: `Run reads the same commands as the interactive shell from a ` +
		`file, one per line, and stops at an X command or at the end of ` +
		`the file. It makes classroom scenarios reproducible.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		script, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer script.Close()

		return buildShell(os.Stdout).Run(script)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
