package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/emrgen/docrender"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configFileName = "docrender"
	configDir      = "./.tmp"
	defaultServer  = "http://localhost:4021"
)

var (
	Token  string
	Server string
)

var contextCommand = &cobra.Command{
	Use:   "context",
	Short: "context commands",
}

func init() {
	contextCommand.AddCommand(setContextCommand())
	contextCommand.AddCommand(currentContextCommand())
	contextCommand.AddCommand(resetContextCommand())
}

type Context struct {
	Token  string `json:"token" mapstructure:"token"`
	Server string `json:"server" mapstructure:"server"`
}

// saves the context info to the config file in ./.tmp
func setContextCommand() *cobra.Command {
	var token string
	var server string
	command := &cobra.Command{
		Use:   "set",
		Short: "set context",
		Run: func(cmd *cobra.Command, args []string) {
			if token == "" && server == "" {
				color.Red(`missing: --token or --server`)
				return
			}

			current := readContext()
			if token != "" {
				current.Token = token
			}
			if server != "" {
				current.Server = server
			}

			if err := writeContext(current); err != nil {
				printError(err)
				return
			}
			color.Green("context saved")
		},
	}

	command.Flags().StringVarP(&token, "token", "t", "", "access token")
	command.Flags().StringVarP(&server, "server", "s", "", "server url")

	return command
}

func currentContextCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "current",
		Short: "current context",
		Run: func(cmd *cobra.Command, args []string) {
			current := readContext()
			printField("Server", serverURL(current))
			printField("Token", current.Token)
		},
	}

	return command
}

func resetContextCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "reset",
		Short: "reset context",
		Run: func(cmd *cobra.Command, args []string) {
			if err := writeContext(Context{}); err != nil {
				printError(err)
				return
			}
			color.Green("context reset")
		},
	}

	return command
}

func configPath() string {
	return filepath.Join(configDir, configFileName+".yml")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(configFileName)
	v.AddConfigPath(configDir)
	v.SetConfigType("yml")
	return v
}

func writeContext(context Context) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return err
	}

	v := newViper()
	v.Set("context", map[string]string{
		"token":  context.Token,
		"server": context.Server,
	})

	return v.WriteConfigAs(configPath())
}

func readContext() Context {
	var ctx Context

	if _, err := os.Stat(configPath()); os.IsNotExist(err) {
		return ctx
	}

	v := newViper()
	if err := v.ReadInConfig(); err != nil {
		fmt.Println("error reading config file: ", err)
		return ctx
	}

	if err := v.UnmarshalKey("context", &ctx); err != nil {
		fmt.Println("error unmarshalling config file: ", err)
	}

	return ctx
}

func bindContextFlags(command *cobra.Command) {
	command.Flags().StringVarP(&Token, "token", "", "", "access token (default from context)")
	command.Flags().StringVarP(&Server, "server", "", "", "server url (default from context)")
}

func serverURL(ctx Context) string {
	switch {
	case Server != "":
		return Server
	case ctx.Server != "":
		return ctx.Server
	case os.Getenv("DOCRENDER_URL") != "":
		return os.Getenv("DOCRENDER_URL")
	}

	return defaultServer
}

// newClient creates an api client from the flags, falling back to the saved context.
func newClient() *docrender.Client {
	ctx := readContext()
	token := Token
	if token == "" {
		token = ctx.Token
	}

	return docrender.NewClient(serverURL(ctx), token)
}
