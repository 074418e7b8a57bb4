package cmd

import (
	"context"

	"github.com/emrgen/docrender/internal/config"
	"github.com/emrgen/docrender/internal/model"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "db commands",
}

func init() {
	dbCmd.AddCommand(Migrate())
	for _, op := range []struct{ name, short string }{
		{"flush", "Flush buffered writes of the running server to disk"},
		{"lock", "Reject writes on the running server"},
		{"unlock", "Accept writes on the running server again"},
	} {
		dbCmd.AddCommand(adminCmd(op.name, op.short))
	}
}

func Migrate() *cobra.Command {
	command := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the database",
		Run: func(cmd *cobra.Command, args []string) {
			db := config.GetDb(config.LoadConfig())
			err := model.Migrate(db)
			if err != nil {
				panic(err)
			}
			color.Green("database migrated")
		},
	}

	return command
}

func adminCmd(op, short string) *cobra.Command {
	command := &cobra.Command{
		Use:   op,
		Short: short,
		Run: func(cmd *cobra.Command, args []string) {
			message, err := newClient().Admin(context.Background(), op)
			if err != nil {
				printError(err)
				return
			}
			color.Green(message)
		},
	}
	bindContextFlags(command)

	return command
}
