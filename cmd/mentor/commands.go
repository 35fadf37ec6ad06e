package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalambet/mentor/internal/config"
	"github.com/kalambet/mentor/internal/interactions"
	"github.com/kalambet/mentor/internal/knowledge"
)

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	setupLogging(cfg.SlogLevel())
	return cfg, nil
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest architecture PDFs into the knowledge base",
	Long: `Ingest every PDF in a directory into the knowledge base.

Examples:
  mentor ingest --pdf-dir ./library
  mentor ingest --pdf-dir ./library --clear`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("pdf-dir")
		clearFirst, _ := cmd.Flags().GetBool("clear")
		if dir == "" {
			return errors.New("--pdf-dir is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, kb, err := openKnowledge(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		res, err := kb.IngestDir(ctx, dir, clearFirst)
		printIngestResult(res)
		if err != nil {
			return err
		}
		if len(res.Files) == 0 && len(res.Failed) > 0 {
			return fmt.Errorf("all %d files failed to ingest", len(res.Failed))
		}
		return nil
	},
}

func printIngestResult(res knowledge.DirResult) {
	for _, f := range res.Files {
		printSuccess("%s: %d chunks added, %d already present", f.Title, f.Added, f.Skipped)
	}
	failed := make([]string, 0, len(res.Failed))
	for p := range res.Failed {
		failed = append(failed, p)
	}
	sort.Strings(failed)
	for _, p := range failed {
		printWarning("%s: %s", p, res.Failed[p])
	}
	printStatus("Total chunks", "%d", res.Chunks)
}

func init() {
	ingestCmd.Flags().String("pdf-dir", "", "directory of PDFs to ingest")
	ingestCmd.Flags().Bool("clear", false, "remove existing chunks before ingesting")
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the knowledge base with citations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, kb, err := openKnowledge(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		hits, err := kb.SearchWithCitations(cmd.Context(), query, limit)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Println("No results found.")
			return nil
		}

		for i, h := range hits {
			fmt.Printf("\n%s [%s, similarity %.3f]\n", colorize(colorBold, fmt.Sprintf("Result %d", i+1)), h.SearchMethod, h.Similarity)
			fmt.Printf("  %s\n", colorize(colorCyan, h.Citation))
			text := []rune(h.Content)
			if len(text) > 500 {
				text = append(text[:500], []rune("...")...)
			}
			fmt.Printf("  %s\n", string(text))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 5, "maximum number of results")
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run an interactive tutoring session in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		brief, _ := cmd.Flags().GetString("brief")
		skill, _ := cmd.Flags().GetString("skill")
		resume, _ := cmd.Flags().GetString("session")
		if brief == "" && resume == "" {
			return errors.New("one of --brief or --session is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		id := resume
		if id == "" {
			st, err := a.service.StartSession(brief, skill)
			if err != nil {
				return err
			}
			id = st.ID
		} else if _, err := a.service.Session(id); err != nil {
			return fmt.Errorf("resuming session %s: %w", id, err)
		}
		printStatus("Session", "%s", id)
		fmt.Fprintln(cmd.OutOrStdout(), chatHelp)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		err = chatLoop(ctx, a.service, id, cmd.InOrStdin(), cmd.OutOrStdout())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	chatCmd.Flags().String("brief", "", "design brief for a new session")
	chatCmd.Flags().String("skill", "", "skill level: beginner, intermediate or advanced")
	chatCmd.Flags().String("session", "", "resume an existing session id")
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Write a session's CSV and JSON exports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		local, _ := cmd.Flags().GetBool("local")

		var (
			paths interactions.ExportPaths
			err   error
		)
		if local {
			paths, err = exportLocal(args[0])
		} else {
			paths, err = exportRemote(cmd.Context(), args[0])
		}
		if err != nil {
			return err
		}
		for _, p := range append(paths.CSV, paths.JSON...) {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		printSuccess("Exported session %s", args[0])
		return nil
	},
}

func exportRemote(ctx context.Context, id string) (interactions.ExportPaths, error) {
	client, err := newAPIClient()
	if err != nil {
		return interactions.ExportPaths{}, err
	}
	return exportVia(ctx, client, id)
}

func exportVia(ctx context.Context, client *apiClient, id string) (interactions.ExportPaths, error) {
	resp, err := client.post(ctx, "/sessions/"+id+"/export", nil)
	if err != nil {
		return interactions.ExportPaths{}, err
	}
	var paths interactions.ExportPaths
	if err := decodeJSON(resp, &paths); err != nil {
		return interactions.ExportPaths{}, err
	}
	return paths, nil
}

func exportLocal(id string) (interactions.ExportPaths, error) {
	cfg, err := loadConfig()
	if err != nil {
		return interactions.ExportPaths{}, err
	}
	a, err := openApp(cfg)
	if err != nil {
		return interactions.ExportPaths{}, err
	}
	defer a.Close()
	return a.service.ExportSession(id)
}

func init() {
	exportCmd.Flags().Bool("local", false, "export in-process instead of through the running server")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			hint := colorize(colorDim, "$"+k.EnvVar)
			if k.OverriddenBy != "" {
				hint = colorize(colorYellow, "(from $"+k.OverriddenBy+")")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, hint)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
