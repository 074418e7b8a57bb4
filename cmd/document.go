package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emrgen/docrender"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(createDocCmd())
	rootCmd.AddCommand(getDocCmd())
	rootCmd.AddCommand(listDocCmd())
	rootCmd.AddCommand(updateDocCmd())
	rootCmd.AddCommand(renderDocCmd())
	rootCmd.AddCommand(deleteDocCmd())
}

func createDocCmd() *cobra.Command {
	var title string
	var language string
	var file string
	var content string
	var public bool

	var required = []string{"title", "language"}

	command := &cobra.Command{
		Use:     "create",
		Short:   "create a document",
		Long:    `create a document with the given title, language and source`,
		Example: "doc create -t <title> -l latex -f paper.tex --public",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			source, err := readSource(file, content)
			if err != nil {
				printError(err)
				return
			}

			doc, err := newClient().CreateDocument(context.Background(), docrender.CreateDocumentRequest{
				Title:      title,
				Language:   language,
				SourceCode: source,
				Public:     public,
			})
			if err != nil {
				printError(err)
				return
			}

			color.Green("document created with id: %s", doc.ID)
			printDocuments([]*docrender.Document{doc})
		},
	}

	command.Flags().StringVarP(&title, "title", "t", "", "title of the document (required)")
	command.Flags().StringVarP(&language, "language", "l", "", "markdown or latex (required)")
	command.Flags().StringVarP(&file, "file", "f", "", "file with the source of the document")
	command.Flags().StringVarP(&content, "content", "c", "", "source of the document")
	command.Flags().BoolVar(&public, "public", false, "make the document visible to everyone")
	bindContextFlags(command)

	command.Flags().SortFlags = false

	return command
}

func getDocCmd() *cobra.Command {
	var docID string
	var showSource bool

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "get",
		Short:   "get a document",
		Example: "doc get -d <doc-id>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			doc, err := newClient().GetDocument(context.Background(), docID)
			if err != nil {
				printError(err)
				return
			}

			printDocuments([]*docrender.Document{doc})
			printField("Owner", doc.Owner)
			printField("Version", doc.CurrentVersion)
			if showSource {
				printField("Source", "\n"+doc.SourceCode)
			}
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().BoolVar(&showSource, "source", false, "print the source code")
	bindContextFlags(command)

	command.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	command.Flags().SortFlags = false

	return command
}

func listDocCmd() *cobra.Command {
	var userID string
	var limit int
	var offset int

	command := &cobra.Command{
		Use:     "list",
		Short:   "list documents of a user, or the public dashboard",
		Example: "doc list -u <user-id>",
		Run: func(cmd *cobra.Command, args []string) {
			docs, err := newClient().ListDocuments(context.Background(), userID, limit, offset)
			if err != nil {
				printError(err)
				return
			}

			printDocuments(docs)
		},
	}

	command.Flags().StringVarP(&userID, "user-id", "u", "", "owner of the documents")
	command.Flags().IntVar(&limit, "limit", 10, "page size")
	command.Flags().IntVar(&offset, "offset", 0, "page offset")
	bindContextFlags(command)

	return command
}

func updateDocCmd() *cobra.Command {
	var docID string
	var title string
	var file string
	var content string
	var public string

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "update",
		Short:   "update a document",
		Example: "doc update -d <doc-id> -f paper.tex -t <title> --public=false",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			var req docrender.UpdateDocumentRequest
			if cmd.Flag("title").Changed {
				req.Title = &title
			}
			if cmd.Flag("file").Changed || cmd.Flag("content").Changed {
				source, err := readSource(file, content)
				if err != nil {
					printError(err)
					return
				}
				color.Magenta("overwriting document: %s\n", docID)
				req.SourceCode = &source
			}
			if cmd.Flag("public").Changed {
				value, err := strconv.ParseBool(public)
				if err != nil {
					printError(fmt.Errorf("invalid --public: %w", err))
					return
				}
				req.Public = &value
			}

			doc, err := newClient().UpdateDocument(context.Background(), docID, req)
			if err != nil {
				printError(err)
				return
			}

			printDocuments([]*docrender.Document{doc})
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().StringVarP(&title, "title", "t", "", "new title")
	command.Flags().StringVarP(&file, "file", "f", "", "file with the new source")
	command.Flags().StringVarP(&content, "content", "c", "", "new source")
	command.Flags().StringVar(&public, "public", "", "true or false")
	bindContextFlags(command)

	command.Flags().SortFlags = false

	return command
}

func renderDocCmd() *cobra.Command {
	var docID string
	var output string

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "render",
		Short:   "download the compiled document",
		Example: "doc render -d <doc-id> -o paper.pdf",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			start := time.Now()
			data, err := newClient().RenderDocument(context.Background(), docID)
			if err != nil {
				printError(err)
				return
			}

			if output == "" {
				output = docID + ".pdf"
			}
			if err = os.WriteFile(output, data, 0o644); err != nil {
				printError(err)
				return
			}

			color.Green("wrote %d bytes to %s in %v", len(data), output, time.Since(start).Round(time.Millisecond))
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().StringVarP(&output, "output", "o", "", "output file (default <doc-id>.pdf)")
	bindContextFlags(command)

	return command
}

func deleteDocCmd() *cobra.Command {
	var docID string

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "delete",
		Short:   "delete a document with its artifacts and links",
		Example: "doc delete -d <doc-id>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			if err := newClient().DeleteDocument(context.Background(), docID); err != nil {
				printError(err)
				return
			}

			color.Green("document deleted")
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	bindContextFlags(command)

	return command
}

func readSource(file, content string) (string, error) {
	if file == "" {
		return content, nil
	}
	if content != "" {
		return "", errors.New("use either --file or --content")
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func printDocuments(docs []*docrender.Document) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Title", "Language", "Public", "Version", "Last Modified"})
	for _, doc := range docs {
		table.Append([]string{
			doc.ID,
			doc.Title,
			doc.Language,
			strconv.FormatBool(doc.Public),
			shortVersion(doc.CurrentVersion),
			doc.LastModified.Local().Format(time.DateTime),
		})
	}
	table.Render()
}

func shortVersion(version string) string {
	if len(version) > 12 {
		return version[:12] + "…"
	}

	return version
}

func printField(label, value string) {
	color.Set(color.FgCyan)
	fmt.Print(label)
	color.Unset()
	fmt.Printf(": %s\n", value)
}

func printError(err error) {
	var apiErr *docrender.APIError
	if errors.As(err, &apiErr) {
		color.Red("error: %s (%d)", apiErr.Message, apiErr.StatusCode)
		return
	}

	color.Red("error: %v", err)
}

// checkMissingFlags checks if the required flags are set and returns ok if they are set
func checkMissingFlags(cmd *cobra.Command, flags []string) bool {
	var missingFlags []string
	var providedFlags []string
	for _, required := range flags {
		if !cmd.Flag(required).Changed {
			missingFlags = append(missingFlags, required)
		} else {
			value := cmd.Flag(required).Value.String()
			providedFlags = append(providedFlags, fmt.Sprintf("--%s=%s", required, value))
		}
	}

	if len(missingFlags) > 0 {
		var msg string
		for _, f := range missingFlags {
			msg += fmt.Sprintf("--%s ", f)
		}

		color.Red("missing: %s\n", msg)
		if len(providedFlags) > 0 {
			provided := strings.Join(providedFlags, " ")
			color.Green("provide: %s\n", provided)
		}

		cmd.Println("")

		_ = cmd.Usage()

		return true
	}

	return false
}
