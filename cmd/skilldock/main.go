package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"skilldock/internal/app"
	"skilldock/internal/installer"
	"skilldock/internal/threat"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var jsonOutput bool

	newSvc := func() (*app.Service, error) {
		return app.New(app.Options{ConfigPath: configPath})
	}

	cmd := &cobra.Command{
		Use:           "skilldock",
		Short:         "Security-first installer for agent skill bundles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(newSearchCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newBrowseCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newInfoCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newVersionsCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newInstallCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newAssessCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newConfirmCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newCancelCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newUpdateCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newUninstallCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newListCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newCleanCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newVersionCmd(&jsonOutput))

	return cmd
}

func newSearchCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			hits, err := svc.Search(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, hits, "")
			}
			if len(hits) == 0 {
				fmt.Println("no skills found")
				return nil
			}
			for _, hit := range hits {
				fmt.Printf("%-30s %-10s threat=%-8s %s\n", hit.Slug, hit.Version, hit.Threat, hit.Description)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results")
	return cmd
}

func newBrowseCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var cursor string
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "List registry skills page by page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			page, err := svc.Browse(cmd.Context(), cursor)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, page, "")
			}
			for _, hit := range page.Items {
				fmt.Printf("%-30s %-10s threat=%-8s %s\n", hit.Slug, hit.Version, hit.Threat, hit.Description)
			}
			if page.NextCursor != "" {
				fmt.Printf("next page: --cursor %s\n", page.NextCursor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cursor, "cursor", "", "page cursor")
	return cmd
}

func newInfoCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "info <slug>",
		Short: "Show skill metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			detail, err := svc.Registry.GetDetail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, detail, "")
			}
			fmt.Printf("%s (%s)\n", detail.Name, detail.Slug)
			fmt.Printf("  version:     %s\n", detail.Version)
			fmt.Printf("  description: %s\n", detail.Description)
			if detail.UpdatedAt > 0 {
				fmt.Printf("  updated:     %s\n", time.UnixMilli(detail.UpdatedAt).UTC().Format(time.RFC3339))
			}
			if detail.Moderation.IsMalwareBlocked {
				fmt.Println("  WARNING: registry has blocked this skill as malware")
			} else if detail.Moderation.IsSuspicious {
				fmt.Println("  WARNING: registry has flagged this skill as suspicious")
			}
			return nil
		},
	}
}

func newVersionsCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var cursor string
	cmd := &cobra.Command{
		Use:   "versions <slug>",
		Short: "List published versions of a skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			page, err := svc.Registry.ListVersions(cmd.Context(), args[0], cursor)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, page, "")
			}
			for _, v := range page.Items {
				line := v.Version
				if v.CreatedAt > 0 {
					line += "  " + time.UnixMilli(v.CreatedAt).UTC().Format("2006-01-02")
				}
				if v.Changelog != "" {
					line += "  " + v.Changelog
				}
				fmt.Println(line)
			}
			if page.NextCursor != "" {
				fmt.Printf("next page: --cursor %s\n", page.NextCursor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cursor, "cursor", "", "page cursor")
	return cmd
}

func newInstallCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var version string
	var force bool
	cmd := &cobra.Command{
		Use:   "install <slug>",
		Short: "Download, extract, and activate a skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			return renderResult(*jsonOutput, svc.Installer.Install(cmd.Context(), args[0], version, force))
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "version to install (default: latest)")
	cmd.Flags().BoolVar(&force, "force", false, "reinstall even if already installed")
	return cmd
}

func newAssessCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var version string
	var force bool
	cmd := &cobra.Command{
		Use:   "assess <slug>",
		Short: "Download and scan a skill without activating it",
		Long: "Downloads and extracts the bundle, fetches registry moderation flags, and runs the\n" +
			"full static scan. The bundle stays pending until `confirm` or `cancel`.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			res := svc.Installer.DownloadAndAssess(cmd.Context(), args[0], version, force)
			if res.Err != nil {
				return res.Err
			}
			if *jsonOutput {
				return print(true, res, "")
			}
			if res.Outcome != installer.OutcomeSuccess {
				fmt.Println(describe(res))
				return nil
			}
			printAssessment(res.Slug, res.Assessment)
			fmt.Printf("bundle is pending; run 'skilldock confirm %s' or 'skilldock cancel %s'\n", res.Slug, res.Slug)
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "version to assess (default: latest)")
	cmd.Flags().BoolVar(&force, "force", false, "re-download even if already installed")
	return cmd
}

func newConfirmCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "confirm <slug>",
		Short: "Activate a pending skill bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			return renderResult(*jsonOutput, svc.Installer.ConfirmInstall(cmd.Context(), args[0], version))
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "version the pending bundle was downloaded at")
	return cmd
}

func newCancelCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <slug>",
		Short: "Discard a pending skill bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			return renderResult(*jsonOutput, svc.Installer.CancelPendingInstall(cmd.Context(), args[0]))
		},
	}
}

func newUpdateCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var version string
	var force bool
	cmd := &cobra.Command{
		Use:   "update <slug>",
		Short: "Update an installed skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			return renderResult(*jsonOutput, svc.Installer.Update(cmd.Context(), args[0], version, force))
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "version to update to (default: latest)")
	cmd.Flags().BoolVar(&force, "force", false, "update even when already at the latest version")
	return cmd
}

func newUninstallCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <slug>",
		Short: "Remove an installed skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			return renderResult(*jsonOutput, svc.Installer.Uninstall(cmd.Context(), args[0]))
		},
	}
}

func newListCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls", "installed"},
		Short:   "List installed skills",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			rows := svc.Installed()
			if *jsonOutput {
				return print(true, rows, "")
			}
			if len(rows) == 0 {
				fmt.Println("no skills installed")
				return nil
			}
			for _, row := range rows {
				installed := time.UnixMilli(row.InstalledAt).UTC().Format("2006-01-02")
				fmt.Printf("%-30s %-10s installed %s\n", row.Slug, row.Version, installed)
			}
			return nil
		},
	}
}

func newCleanCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Reconcile the install root with the lock ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			affected, err := svc.Installer.CleanOrphans(cmd.Context())
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, map[string][]string{"cleaned": affected}, "")
			}
			if len(affected) == 0 {
				fmt.Println("nothing to clean")
				return nil
			}
			fmt.Printf("cleaned: %s\n", strings.Join(affected, ", "))
			return nil
		},
	}
}

func newVersionCmd(jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print skilldock version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return print(*jsonOutput, map[string]string{"version": version}, "skilldock "+version)
		},
	}
}

func renderResult(jsonOutput bool, res installer.Result) error {
	if res.Err != nil {
		return res.Err
	}
	if jsonOutput {
		return print(true, res, "")
	}
	fmt.Println(describe(res))
	return nil
}

func describe(res installer.Result) string {
	switch res.Outcome {
	case installer.OutcomeSuccess:
		if res.Version != "" {
			return fmt.Sprintf("%s %s: ok", res.Slug, res.Version)
		}
		return res.Slug + ": ok"
	case installer.OutcomeAlreadyInstalled:
		if res.Version != "" {
			return fmt.Sprintf("%s is already installed (%s)", res.Slug, res.Version)
		}
		return res.Slug + " is already installed"
	case installer.OutcomeNotInstalled:
		return res.Slug + " is not installed"
	case installer.OutcomeAlreadyUpToDate:
		return res.Slug + " is already up to date"
	default:
		return res.Slug + ": " + res.Outcome.String()
	}
}

func printAssessment(slug string, a *threat.Assessment) {
	fmt.Printf("assessment for %s: %s\n", slug, strings.ToUpper(a.Level.String()))
	fmt.Printf("  %s\n", a.Summary)
	for _, ind := range a.Indicators {
		fmt.Printf("  [%-8s] %-16s %s\n", strings.ToUpper(ind.Severity.String()), ind.Category, ind.Description)
	}
}

func print(jsonOutput bool, payload any, message string) error {
	if jsonOutput {
		blob, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(blob))
		return nil
	}
	if message != "" {
		fmt.Println(message)
	}
	return nil
}
