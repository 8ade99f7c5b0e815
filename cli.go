package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var contentFile string

	root := &cobra.Command{
		Use:   "portfolio",
		Short: "Personal portfolio site server",
		Long: `portfolio serves the portfolio website: project pages, the skills display,
the contact form and the chat assistant. Run without a subcommand to serve.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), contentFile)
		},
	}
	root.PersistentFlags().StringVar(&contentFile, "content", "", "YAML content file (overrides CONTENT_FILE)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the web server",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), contentFile)
			},
		},
		&cobra.Command{
			Use:   "ask <question>",
			Short: "Ask the chat assistant a single question",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				site, err := loadSite(contentFile)
				if err != nil {
					return err
				}
				printAnswer(cmd.OutOrStdout(), NewChatBot(site), strings.Join(args, " "))
				return nil
			},
		},
		&cobra.Command{
			Use:   "projects",
			Short: "List projects and their page URLs",
			RunE: func(cmd *cobra.Command, args []string) error {
				site, err := loadSite(contentFile)
				if err != nil {
					return err
				}
				printProjects(cmd.OutOrStdout(), site)
				return nil
			},
		},
		&cobra.Command{
			Use:   "chat",
			Short: "Chat with the assistant in the terminal",
			RunE: func(cmd *cobra.Command, args []string) error {
				site, err := loadSite(contentFile)
				if err != nil {
					return err
				}
				_, err = tea.NewProgram(newChatModel(site), tea.WithAltScreen()).Run()
				return err
			},
		},
	)

	return root
}

func loadSite(flagPath string) (*Site, error) {
	path := flagPath
	if path == "" {
		path = getEnv("CONTENT_FILE", "")
	}
	return LoadContent(path)
}

func printAnswer(w io.Writer, bot *ChatBot, question string) {
	reply, rule := bot.Reply(question)
	if rule == "" {
		rule = "default"
	}
	color.New(color.FgHiBlack).Fprintf(w, "[%s] ", rule)
	fmt.Fprintln(w, reply)
}

func printProjects(w io.Writer, site *Site) {
	title := color.New(color.FgCyan, color.Bold)
	muted := color.New(color.FgHiBlack)
	for _, p := range site.Projects {
		title.Fprintf(w, "%s\n", p.Title)
		fmt.Fprintf(w, "  %s\n", ProjectURL(p))
		if len(p.Tags) > 0 {
			muted.Fprintf(w, "  %s\n", strings.Join(p.Tags, ", "))
		}
	}
}

func runServe(ctx context.Context, contentFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig()
	if contentFile != "" {
		cfg.ContentFile = contentFile
	}

	site, err := LoadContent(cfg.ContentFile)
	if err != nil {
		return err
	}

	store, err := OpenStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	shutdownTracing, err := setupTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Printf("Error flushing traces: %v", err)
		}
	}()

	app := NewApp(cfg, site, store, newSMTPMailer(cfg, site.Profile.Email))
	go app.runJanitor(ctx, 10*time.Minute)

	log.Printf("Admin access available at: /admin/login")
	log.Println("Privacy: Visitor tracking enabled with hashed IP addresses")

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
