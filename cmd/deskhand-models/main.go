// Command deskhand-models manages local model files without a running server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/deskhand/deskhand/internal/catalog"
	"github.com/deskhand/deskhand/internal/config"
	"github.com/deskhand/deskhand/internal/download"
	"github.com/deskhand/deskhand/internal/store"
)

type cliEnv struct {
	store     *store.Store
	catalog   *catalog.Catalog
	downloads *download.Manager
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		jsonOutput bool
		quiet      bool
	)

	// Environment is created in PersistentPreRunE.
	var env cliEnv

	cmd := &cobra.Command{
		Use:     "deskhand-models",
		Short:   "Manage local chat models",
		Long:    "Download, list, and remove the model files used by the deskhand assistant.",
		Version: config.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			_ = godotenv.Load()

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			// Keep the terminal clean, only warnings and errors reach stderr.
			log := zerolog.New(zerolog.ConsoleWriter{
				Out:        os.Stderr,
				TimeFormat: time.RFC3339,
			}).Level(zerolog.WarnLevel).With().Timestamp().Logger()

			st := store.New(cfg.Storage.ModelsDir, log)
			if err := st.EnsureDir(); err != nil {
				return fmt.Errorf("preparing model directory: %w", err)
			}

			env = cliEnv{
				store:     st,
				catalog:   catalog.New(),
				downloads: download.New(st, nil, log),
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")

	cmd.AddCommand(listCmd(&env, &jsonOutput))
	cmd.AddCommand(pullCmd(&env, &quiet))
	cmd.AddCommand(removeCmd(&env, &quiet))
	cmd.AddCommand(pathCmd(&env))

	return cmd
}

func listCmd(env *cliEnv, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recommended and downloaded models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			downloaded := make(map[string]int64)
			for _, a := range env.store.List() {
				downloaded[a.Filename] = a.SizeBytes
			}

			if *jsonOutput {
				type row struct {
					Name       string `json:"name"`
					Filename   string `json:"filename"`
					Size       string `json:"size"`
					Downloaded bool   `json:"downloaded"`
				}
				var rows []row
				for _, e := range env.catalog.List() {
					_, have := downloaded[e.Filename]
					rows = append(rows, row{Name: e.Name, Filename: e.Filename, Size: e.Size, Downloaded: have})
					delete(downloaded, e.Filename)
				}
				for filename, size := range downloaded {
					rows = append(rows, row{Name: "-", Filename: filename, Size: store.FormatSize(size), Downloaded: true})
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFILE\tSIZE\tSTATUS")
			for _, e := range env.catalog.List() {
				status := "available"
				if _, have := downloaded[e.Filename]; have {
					status = "downloaded"
					delete(downloaded, e.Filename)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, e.Filename, e.Size, status)
			}
			// Files on disk that the catalog no longer lists.
			for filename, size := range downloaded {
				fmt.Fprintf(tw, "-\t%s\t%s\tlocal only\n", filename, store.FormatSize(size))
			}
			return tw.Flush()
		},
	}
}

func pullCmd(env *cliEnv, quiet *bool) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "pull <filename>",
		Short: "Download a model from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := args[0]

			entry, ok := env.catalog.Lookup(filename)
			if !ok {
				return fmt.Errorf("model %q not found in catalog", filename)
			}

			if env.store.Exists(filename) {
				if !force {
					if !*quiet {
						fmt.Fprintf(cmd.OutOrStdout(), "Model %s is already downloaded (use --force to re-download)\n", filename)
					}
					return nil
				}
				if _, err := env.store.Delete(filename); err != nil {
					return fmt.Errorf("removing existing file: %w", err)
				}
			}

			var rendered bool
			path, err := env.downloads.Download(cmd.Context(), entry, func(percent int) {
				if *quiet {
					return
				}
				rendered = true
				renderProgress(cmd.OutOrStdout(), percent)
			})
			if rendered {
				// Show cursor position past the progress bar.
				fmt.Fprintln(cmd.OutOrStdout())
			}
			if err != nil {
				return err
			}

			if !*quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Successfully downloaded %s to %s\n", entry.Name, path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-download even if the file exists")
	return cmd
}

func removeCmd(env *cliEnv, quiet *bool) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "remove <filename>",
		Short: "Remove a downloaded model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := args[0]

			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Remove %s? [y/N]: ", filename)
				if !confirmPrompt(cmd.InOrStdin()) {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			removed, err := env.store.Delete(filename)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("model %q is not downloaded", filename)
			}

			if !*quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", filename)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

func pathCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "path <filename>",
		Short: "Print the path of a downloaded model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := args[0]
			if !env.store.Exists(filename) {
				return fmt.Errorf("model %q is not downloaded", filename)
			}
			fmt.Fprintln(cmd.OutOrStdout(), env.store.Path(filename))
			return nil
		},
	}
}

// confirmPrompt returns true only for an explicit yes.
func confirmPrompt(r io.Reader) bool {
	var response string
	if _, err := fmt.Fscanln(r, &response); err != nil {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// renderProgress overwrites the current line with a progress bar.
func renderProgress(w io.Writer, percent int) {
	const barWidth = 30
	filled := percent * barWidth / 100
	if filled > barWidth {
		filled = barWidth
	}

	var bar string
	switch {
	case filled >= barWidth:
		bar = strings.Repeat("=", barWidth)
	case filled > 0:
		bar = strings.Repeat("=", filled) + ">" + strings.Repeat(" ", barWidth-filled-1)
	default:
		bar = ">" + strings.Repeat(" ", barWidth-1)
	}

	fmt.Fprintf(w, "\r\x1b[KDownloading [%s] %d%%", bar, percent)
}
