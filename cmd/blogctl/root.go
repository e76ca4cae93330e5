package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"blogpress/app/internal/app/bootstrap"
	"blogpress/app/internal/config"
	applog "blogpress/app/internal/log"
)

// cli carries the state shared by every subcommand of one invocation.
type cli struct {
	envFile    string
	verbose    bool
	jsonOutput bool

	cfg    *config.Config
	logger *logrus.Logger
	stores bootstrap.Stores
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "blogctl",
		Short: "Blog registry and article file maintenance",
		Long: `blogctl works directly on the registry source file and the article directory
configured for the blogpress server.

Example usage:
  blogctl status               # Registry file, backups and article count
  blogctl check                # Reconcile registry entries with article files
  blogctl next-code            # Print the next free article code
  blogctl backups              # List registry backups, newest first
  blogctl export               # Print the registry data as JSON`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd.Context(), cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "output as JSON")

	root.AddCommand(
		newCheckCmd(c),
		newNextCodeCmd(c),
		newStatusCmd(c),
		newBackupsCmd(c),
		newExportCmd(c),
		newInitCmd(c),
		newVersionCmd(c),
	)

	return root
}

func (c *cli) init(ctx context.Context, stderr io.Writer) error {
	if c.envFile != "" {
		_ = godotenv.Load(c.envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "loading configuration")
	}
	c.cfg = cfg

	level := "warn"
	if c.verbose {
		level = "debug"
	}
	c.logger, err = applog.NewLogger(applog.Options{Level: level, Format: "text", Output: stderr})
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	c.stores, err = bootstrap.BuildStores(ctx, bootstrap.Dependencies{Config: *cfg, Logger: c.logger})
	if err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"registry_path": cfg.RegistryPath,
		"articles_dir":  cfg.ArticlesDir,
	}).Debug("configuration loaded")
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
