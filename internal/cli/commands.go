package cli

import (
	"bufio"
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
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/PROX-GOD/mockdeu/internal/agent"
	"github.com/PROX-GOD/mockdeu/internal/app"
	"github.com/PROX-GOD/mockdeu/internal/config"
	"github.com/PROX-GOD/mockdeu/internal/interview"
	"github.com/PROX-GOD/mockdeu/internal/persona"
	"github.com/PROX-GOD/mockdeu/internal/scoring"
	"github.com/PROX-GOD/mockdeu/internal/usecase"
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	green  = color.New(color.FgGreen, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow, color.Bold).SprintFunc()
	red    = color.New(color.FgRed, color.Bold).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mockdeu",
		Short: "MockDeu - visa interview practice engine",
		Long: `MockDeu runs simulated consular visa interviews: a persona-driven officer asks
questions, the candidate answers by voice or text, and the finished transcript is scored.`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newPracticeCmd())
	root.AddCommand(newPersonasCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP interview API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.HTTPAddress = addr
			}
			return Serve(cfg)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides HTTP_ADDRESS)")
	return cmd
}

// Serve runs the HTTP API until SIGINT or SIGTERM, then shuts down gracefully.
func Serve(cfg config.Config) error {
	a, err := app.Build(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Interviews.Close()

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           a.Server.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
	return nil
}

func newPracticeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Run a text interview in the terminal",
		Long: `Run an interview in the terminal. Each officer question is printed and one line of
input is read as the answer. End of input hangs up the interview early.
Example: mockdeu practice --category F1 --style skeptical --embassy kathmandu`,
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("category")
			style, _ := cmd.Flags().GetString("style")
			embassy, _ := cmd.Flags().GetString("embassy")
			req, err := parseRequest(category, style, embassy)
			if err != nil {
				return err
			}
			a, err := app.Build(practiceConfig(config.Load()), nil)
			if err != nil {
				return err
			}
			defer a.Interviews.Close()
			return Practice(cmd.Context(), a.Interviews, req, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("category", "F1", "visa category (F1 or B1B2)")
	cmd.Flags().String("style", "strict", "officer style (strict, skeptical, friendly)")
	cmd.Flags().String("embassy", "", "embassy id; empty uses the template defaults")
	return cmd
}

// practiceRecognitionTimeout gives a typist time to answer before the officer moves on.
const practiceRecognitionTimeout = 30 * time.Minute

// practiceConfig keeps each typed answer attached to the question it answers.
func practiceConfig(cfg config.Config) config.Config {
	if cfg.RecognitionTimeout < practiceRecognitionTimeout {
		cfg.RecognitionTimeout = practiceRecognitionTimeout
	}
	return cfg
}

func parseRequest(category, style, embassy string) (agent.Request, error) {
	c, err := interview.ParseVisaCategory(category)
	if err != nil {
		return agent.Request{}, err
	}
	s, err := interview.ParseOfficerStyle(style)
	if err != nil {
		return agent.Request{}, err
	}
	return agent.Request{Category: c, Style: s, Embassy: embassy}, nil
}

// Practice drives one session from line-oriented input and prints the verdict.
func Practice(ctx context.Context, svc usecase.InterviewService, req agent.Request, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	id, err := svc.StartSession(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n\n", gray("Interview "+id+" started."))

	lines := bufio.NewScanner(in)
	asked := -1
	for {
		snap, err := nextQuestion(ctx, svc, id, asked)
		if err != nil {
			return err
		}
		if snap.State.Final() {
			break
		}
		asked = snap.TurnIndex
		fmt.Fprintf(out, "Officer: %s\nYou: ", cyan(snap.LastOfficerUtterance))
		if !lines.Scan() {
			fmt.Fprintln(out)
			if err := svc.CancelSession(id); err != nil {
				return err
			}
			break
		}
		answer := strings.TrimSpace(lines.Text())
		if answer == "" {
			answer = "..."
		}
		if err := svc.SubmitCandidateInput(id, agent.TextInput(answer)); err != nil && !errors.Is(err, interview.ErrSessionClosed) {
			return err
		}
	}

	res, err := svc.Wait(ctx, id)
	if err != nil {
		return err
	}
	printResult(out, res)
	return nil
}

// nextQuestion polls until the session asks a question after turn asked, or ends.
func nextQuestion(ctx context.Context, svc usecase.InterviewService, id string, asked int) (agent.Snapshot, error) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		snap, err := svc.GetSessionState(id)
		if err != nil {
			return agent.Snapshot{}, err
		}
		if snap.State.Final() || (snap.State == interview.StateAwaitingCandidateResponse && snap.TurnIndex > asked) {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			_ = svc.CancelSession(id)
			return agent.Snapshot{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printResult(out io.Writer, res usecase.Result) {
	fmt.Fprintf(out, "\nInterview ended after %d turns", res.Transcript.Len())
	if d := res.Transcript.Duration(); d > 0 {
		fmt.Fprintf(out, " in %s", d.Round(time.Second))
	}
	if sig, ok := res.Transcript.Termination(); ok {
		fmt.Fprintf(out, " (%s)", sig.Reason)
	}
	fmt.Fprintln(out, ".")
	if res.Report == nil {
		fmt.Fprintf(out, "No verdict: %s\n", res.Error)
		return
	}
	r := res.Report
	fmt.Fprintf(out, "Decision: %s\nScore: %d/100\n%s\n", decisionColor(r.Decision), r.Score, r.Reason)
	if r.Feedback != "" {
		fmt.Fprintf(out, "\n%s\n", r.Feedback)
	}
	if len(res.Archived) > 0 {
		fmt.Fprintf(out, "\nSaved: %s\n", strings.Join(res.Archived, ", "))
	}
	if res.Error != "" {
		fmt.Fprintf(out, "%s %s\n", yellow("Warning:"), res.Error)
	}
}

func decisionColor(d scoring.Decision) string {
	switch d {
	case scoring.DecisionApproved:
		return green(string(d))
	case scoring.DecisionDenied:
		return red(string(d))
	}
	return yellow(string(d))
}

func newPersonasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "personas",
		Short: "List interview templates and embassies",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("catalog")
			var (
				c   *persona.Catalog
				err error
			)
			if path == "" {
				c, err = persona.Default()
			} else {
				c, err = persona.LoadFile(path)
			}
			if err != nil {
				return err
			}
			ListPersonas(cmd.OutOrStdout(), c)
			return nil
		},
	}
	cmd.Flags().String("catalog", "", "persona catalog YAML (default: built-in)")
	return cmd
}

// ListPersonas prints the catalog as a table.
func ListPersonas(out io.Writer, c *persona.Catalog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tSTYLE\tQUESTIONS\tFOLLOW-UPS")
	for _, e := range c.Entries() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", e.Category, e.Style, e.Questions, e.MaxDepth)
	}
	_ = w.Flush()
	fmt.Fprintf(out, "\nEmbassies: %s\n", strings.Join(c.Embassies(), ", "))
}
