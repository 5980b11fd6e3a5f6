package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gmsas95/vetscan/internal/app"
	"github.com/gmsas95/vetscan/internal/batch"
	"github.com/gmsas95/vetscan/internal/config"
	"github.com/gmsas95/vetscan/internal/prescription"
	"github.com/gmsas95/vetscan/internal/store"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze one prescription (PDF, PNG, JPG)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			application, cleanup, err := initApp()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			path := args[0]
			report, err := application.Service.Process(ctx, path, filepath.Base(path))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON || !isTerminal(os.Stdout) {
				return writeJSON(out, report)
			}
			return renderReport(out, report)
		},
	}
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	return cmd
}

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [files...]",
		Short: "Analyze many prescriptions and write JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			manifest, _ := cmd.Flags().GetString("manifest")
			concurrency, _ := cmd.Flags().GetInt("concurrency")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			rps, _ := cmd.Flags().GetFloat64("rps")

			items := batch.ItemsFromPaths(args)
			if manifest != "" {
				fromManifest, err := batch.LoadManifest(manifest)
				if err != nil {
					return err
				}
				items = append(items, fromManifest...)
			}
			if len(items) == 0 {
				return fmt.Errorf("no input files: pass paths or --manifest")
			}

			application, cleanup, err := initApp()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			processor := batch.NewProcessor(application.Service, batch.Config{
				MaxConcurrency: concurrency,
				Timeout:        timeout,
				RateLimit:      batch.RateLimiterConfig{RPS: rps, Burst: concurrency},
			}, application.Logger.Named("batch"))

			result := processor.Process(ctx, items)

			if out == "" || out == "-" {
				if err := result.WriteJSONL(cmd.OutOrStdout()); err != nil {
					return err
				}
			} else {
				if err := result.SaveJSONL(out); err != nil {
					return fmt.Errorf("failed to write results: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Results written to %s\n", out)
			}
			fmt.Fprint(cmd.ErrOrStderr(), result.Summary())

			if result.Failed > 0 {
				return fmt.Errorf("%d of %d documents failed", result.Failed, result.Total)
			}
			return nil
		},
	}
	defaults := batch.DefaultConfig()
	cmd.Flags().StringP("out", "o", "results.jsonl", "Output file (- for stdout)")
	cmd.Flags().String("manifest", "", "File listing inputs (.json, .jsonl or one path per line)")
	cmd.Flags().IntP("concurrency", "c", defaults.MaxConcurrency, "Documents processed in parallel")
	cmd.Flags().Duration("timeout", defaults.Timeout, "Per-document timeout")
	cmd.Flags().Float64("rps", 0, "Documents started per second (0 = unlimited)")
	return cmd
}

func rulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the active rule tables as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, cleanup, err := initApp()
			if err != nil {
				return err
			}
			defer cleanup()

			_, err = cmd.OutOrStdout().Write(application.Rules.Source())
			return err
		},
	}
}

func contactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "List stored contact form messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := config.Load(configPath, dataDir)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			st, err := store.Open(cfg.Storage.SQLitePath)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()

			total, err := st.CountContactMessages()
			if err != nil {
				return err
			}
			msgs, err := st.ListContactMessages(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%d total)\n\n", headerStyle.Render("Contact messages"), total)
			for _, m := range msgs {
				fmt.Fprintf(out, "%s  %s <%s>\n", dimStyle.Render(m.CreatedAt.Local().Format(time.DateTime)), m.Name, m.Email)
				if m.Subject != "" {
					fmt.Fprintf(out, "  Subject: %s\n", m.Subject)
				}
				fmt.Fprintf(out, "  %s\n\n", m.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "Maximum messages to show")
	return cmd
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check which extraction backends are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, cleanup, err := initApp()
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headerStyle.Render("vetscan doctor"))
			fmt.Fprintln(out)

			checks := application.Diagnose()
			component := ""
			for _, c := range checks {
				if c.Component != component {
					component = c.Component
					fmt.Fprintln(out, headerStyle.Render(component))
				}
				fmt.Fprintf(out, "  %s %-12s %s\n", status(c), c.Name, dimStyle.Render(c.Detail))
			}
			fmt.Fprintln(out)

			if !app.Healthy(checks) {
				fmt.Fprintln(out, failStyle.Render("Some required components are missing."))
				return fmt.Errorf("doctor found problems")
			}
			fmt.Fprintln(out, okStyle.Render("Ready to analyze prescriptions."))
			return nil
		},
	}
}

func status(c app.Check) string {
	if c.OK {
		return okStyle.Render("✓")
	}
	return failStyle.Render("✗")
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderReport(w io.Writer, report *prescription.Report) error {
	width := 100
	if cols, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && cols > 20 {
		width = cols - 4
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return err
	}
	rendered, err := r.Render(report.Markdown())
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, rendered)
	return err
}
