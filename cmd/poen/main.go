// Command poen is the admin CLI: it manages projects and their bank links,
// runs ingestion on demand and prints amounts.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"poen/internal/cli"
	plog "poen/internal/log"
)

// opener builds the application for one command invocation.
type opener func(ctx context.Context) (*cli.App, error)

func openFromEnv(ctx context.Context) (*cli.App, error) {
	cli.LoadEnvFile()
	cfg, err := cli.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	logger := cli.SetupLogger(cfg, plog.ComponentCLI)
	return cli.NewApp(ctx, cfg, logger)
}

// command holds the app shared by every subcommand of one invocation.
type command struct {
	open opener
	app  *cli.App
}

// newRootCmd returns the command tree and a closer for the app it opened.
func newRootCmd(open opener) (*cobra.Command, func() error) {
	c := &command{open: open}
	root := &cobra.Command{
		Use:           "poen",
		Short:         "Track the money awarded to and spent by community projects",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			c.app = app
			return nil
		},
	}

	root.AddCommand(
		c.projectCmd(),
		c.subprojectCmd(),
		c.syncCmd(),
		c.refreshIBANsCmd(),
		c.amountsCmd(),
		c.totalsCmd(),
		c.setCredentialCmd(),
		c.setIBANCmd(),
		c.paymentsCmd(),
		c.paymentCmd(),
		c.categoryCmd(),
		c.funderCmd(),
		c.exportCmd(),
	)
	return root, c.close
}

func (c *command) close() error {
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}

func main() {
	root, closeApp := newRootCmd(openFromEnv)
	err := root.ExecuteContext(context.Background())
	if cerr := closeApp(); cerr != nil {
		fmt.Fprintln(os.Stderr, "Error: close ledger:", cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
