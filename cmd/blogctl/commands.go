package main

import (
	"fmt"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"blogpress/app/internal/consistency"
	"blogpress/app/internal/content"
	"blogpress/app/internal/registry"
)

// errInconsistent is returned by check when the report contains error-severity issues.
var errInconsistent = eris.New("registry and article files are inconsistent")

func newCheckCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Reconcile registry entries with article files",
		Long: `Loads the registry, inspects every article file and reports missing files,
orphaned files and documents whose language, code or title disagree with the
registry. Exits non-zero when an error-severity issue is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := c.stores.Checker.Check(cmd.Context())
			if err != nil {
				return err
			}

			if c.jsonOutput {
				if report.Issues == nil {
					report.Issues = []consistency.Issue{}
				}
				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "checked %d articles, %d files\n", report.Articles, report.Files)
				if len(report.Issues) > 0 {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "SEVERITY\tKIND\tCODE\tLANG\tMESSAGE")
					for _, issue := range report.Issues {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", issue.Severity, issue.Kind, issue.Code, issue.Lang, issue.Message)
					}
					if err := tw.Flush(); err != nil {
						return err
					}
				}
				if report.Consistent {
					fmt.Fprintln(w, "consistent")
				}
			}

			if !report.Consistent {
				return errInconsistent
			}
			return nil
		},
	}
}

func newNextCodeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "next-code",
		Short: "Print the next free article code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := c.stores.Registry.NextCode(cmd.Context())
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"code": code})
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
}

type statusView struct {
	Registry struct {
		Path     string     `json:"path"`
		Exists   bool       `json:"exists"`
		Size     int64      `json:"size,omitempty"`
		Modified *time.Time `json:"modified,omitempty"`
		Articles int        `json:"articles"`
	} `json:"registry"`
	Backups      int    `json:"backups"`
	ArticlesDir  string `json:"articlesDir"`
	ArticleFiles int    `json:"articleFiles"`
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show registry file, backups and article count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var view statusView

			status, err := c.stores.Registry.Status(ctx)
			switch {
			case err == nil:
				modified := status.Modified
				view.Registry.Exists = true
				view.Registry.Size = status.Size
				view.Registry.Modified = &modified
			case !eris.Is(err, registry.ErrNotFound):
				return err
			}
			view.Registry.Path = c.stores.Registry.Path()

			reg, err := c.stores.Registry.Load(ctx)
			if err != nil {
				return err
			}
			view.Registry.Articles = reg.Len()

			backups, err := c.stores.Registry.Backups(ctx)
			if err != nil {
				return err
			}
			view.Backups = len(backups)

			files, err := c.stores.Articles.List(ctx)
			if err != nil {
				return err
			}
			view.ArticlesDir = c.stores.Articles.Dir()
			view.ArticleFiles = len(files)

			if c.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), view)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "registry:      %s\n", view.Registry.Path)
			if view.Registry.Exists {
				fmt.Fprintf(w, "  size:        %d bytes\n", view.Registry.Size)
				fmt.Fprintf(w, "  modified:    %s\n", view.Registry.Modified.Format(time.RFC3339))
			} else {
				fmt.Fprintln(w, "  (not created yet)")
			}
			fmt.Fprintf(w, "  articles:    %d\n", view.Registry.Articles)
			fmt.Fprintf(w, "  backups:     %d\n", view.Backups)
			fmt.Fprintf(w, "articles dir:  %s\n", view.ArticlesDir)
			fmt.Fprintf(w, "  files:       %d\n", view.ArticleFiles)
			return nil
		},
	}
}

type backupView struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
}

func newBackupsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List registry backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backups, err := c.stores.Registry.Backups(cmd.Context())
			if err != nil {
				return err
			}

			if c.jsonOutput {
				views := make([]backupView, 0, len(backups))
				for _, b := range backups {
					views = append(views, backupView{Name: b.Name, Size: b.Size, Created: b.Created})
				}
				return writeJSON(cmd.OutOrStdout(), views)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tCREATED")
			for _, b := range backups {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", b.Name, b.Size, b.Created.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func newExportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the registry data map as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := c.stores.Registry.Load(cmd.Context())
			if err != nil {
				return err
			}
			data, err := reg.ExportJSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}

func newInitCmd(c *cli) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty registry file",
		Long: `Writes a registry source file with an empty data map and the helper block for
the configured site settings. An existing registry is kept unless --force is given,
in which case it is backed up first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, err := c.stores.Registry.Status(ctx); err == nil && !force {
				return eris.Errorf("registry %s already exists, use --force to replace it", c.stores.Registry.Path())
			}

			source, err := content.Encode(content.NewRegistry(c.stores.Site.Settings))
			if err != nil {
				return err
			}
			result, err := c.stores.Registry.Write(ctx, string(source))
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "created %s\n", c.stores.Registry.Path())
			if result.Backup != "" {
				fmt.Fprintf(w, "previous registry saved as %s\n", result.Backup)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing registry")
	return cmd
}

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"version":   version,
					"goVersion": runtime.Version(),
					"platform":  runtime.GOOS + "/" + runtime.GOARCH,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "blogctl version %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
