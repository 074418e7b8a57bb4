package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "doc",
	Short: "document rendering tool",
	Example: `doc serve
doc context set -s http://localhost:4021 -t <user-id>
doc create -t <title> -l latex -f paper.tex
doc get -d <doc-id>
doc list -u <user-id>
doc update -d <doc-id> -f paper.tex
doc render -d <doc-id> -o paper.pdf
doc delete -d <doc-id>
doc link create -d <doc-id> --pin
doc link resolve -k <token>
doc db migrate`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(contextCommand)
	rootCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	cobra.EnableCommandSorting = false
}
