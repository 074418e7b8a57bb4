package cmd

import (
	"context"
	"os"
	"strconv"

	"github.com/emrgen/docrender"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "share link commands",
}

func init() {
	rootCmd.AddCommand(linkCmd)
	linkCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	linkCmd.AddCommand(createLinkCmd())
	linkCmd.AddCommand(resolveLinkCmd())
	linkCmd.AddCommand(listLinksCmd())
}

func createLinkCmd() *cobra.Command {
	var docID string
	var pin bool

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "create",
		Short:   "create a share link",
		Long:    "create a share link that follows the document, or with --pin one that keeps serving the current version",
		Example: "doc link create -d <doc-id> --pin",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			link, err := newClient().CreateLink(context.Background(), docID, !pin)
			if err != nil {
				printError(err)
				return
			}

			color.Green("link created: %s", link.Token)
			printLinks([]*docrender.Link{link})
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().BoolVar(&pin, "pin", false, "pin the link to the current version")
	bindContextFlags(command)

	return command
}

func resolveLinkCmd() *cobra.Command {
	var token string
	var output string

	var required = []string{"link"}

	command := &cobra.Command{
		Use:     "resolve",
		Short:   "resolve a share link, optionally downloading the document",
		Example: "doc link resolve -k <token> -o shared.pdf",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			client := newClient()
			link, err := client.ResolveLink(context.Background(), token)
			if err != nil {
				printError(err)
				return
			}
			printLinks([]*docrender.Link{link})

			if output == "" {
				return
			}

			data, err := client.LinkArtifact(context.Background(), token)
			if err != nil {
				printError(err)
				return
			}
			if err = os.WriteFile(output, data, 0o644); err != nil {
				printError(err)
				return
			}
			color.Green("wrote %d bytes to %s", len(data), output)
		},
	}

	command.Flags().StringVarP(&token, "link", "k", "", "share token (required)")
	command.Flags().StringVarP(&output, "output", "o", "", "download the document to this file")
	bindContextFlags(command)

	return command
}

func listLinksCmd() *cobra.Command {
	var docID string

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "list",
		Short:   "list the share links of a document",
		Example: "doc link list -d <doc-id>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			links, err := newClient().ListLinks(context.Background(), docID)
			if err != nil {
				printError(err)
				return
			}

			printLinks(links)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	bindContextFlags(command)

	return command
}

func printLinks(links []*docrender.Link) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Token", "Document", "Latest", "Version"})
	for _, link := range links {
		table.Append([]string{link.Token, link.DocumentID, strconv.FormatBool(link.UseLatest), shortVersion(link.Version)})
	}
	table.Render()
}
