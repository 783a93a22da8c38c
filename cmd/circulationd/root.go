package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "circulationd",
		Short:         "circulationd lends licensed titles of a distributor collection and keeps their hold queues",
		SilenceErrors: true,
		SilenceUsage:  true,
		Example: `
  # apply migrations, then serve the notification callback on :8080
  CIRCULATION_DATABASE_URL=postgres://localhost/circulation circulationd migrate
  circulationd serve --database-url postgres://localhost/circulation --library-short-name main

  # OAuth against the distributor, discovering the token endpoint from its feed
  circulationd serve --distributor-auth oauth --distributor-username u --distributor-password p \
    --distributor-feed-url https://distributor.example/feed --library-short-name main
`,
	}

	registerFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newImportCommand())

	return cmd
}
