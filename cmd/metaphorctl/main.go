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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"metaphorlab/internal/assistant"
	"metaphorlab/internal/batch"
	"metaphorlab/internal/config"
	"metaphorlab/internal/domain"
	"metaphorlab/internal/gateway"
	"metaphorlab/internal/intent"
	"metaphorlab/internal/logging"
	"metaphorlab/internal/segment"
	"metaphorlab/internal/view"
)

var (
	configPath string
	verbose    bool
	asJSON     bool
	timeout    time.Duration

	service string

	labelFilter string
	minConf     float64
	maxConf     float64
	keyword     string
	sortKey     string
	sortDir     string
	page        int
	pageSize    int

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "metaphorctl",
	Short:         "Classify metaphors, generate lyrics and create metaphors from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		// Logs go to stderr so stdout stays parseable.
		logger, err = logging.New(logging.Config{Level: "warn", Format: "console"}, verbose)
		return err
	},
}

var segmentCmd = &cobra.Command{
	Use:   "segment [text]",
	Short: "Print the units a text is split into",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := input(cmd, args)
		if err != nil {
			return err
		}
		units := segment.Segment(text)
		if asJSON {
			return printJSON(cmd.OutOrStdout(), units)
		}
		fmt.Fprintln(cmd.OutOrStdout(), segment.Join(units))
		return nil
	},
}

var routeCmd = &cobra.Command{
	Use:   "route [message]",
	Short: "Show which service a message routes to and its parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := input(cmd, args)
		if err != nil {
			return err
		}
		in := intent.Route(text, domain.ParseService(service))
		if asJSON {
			return printJSON(cmd.OutOrStdout(), in)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "service: %s\n", in.Service)
		for _, k := range []string{domain.ParamEmotion, domain.ParamSeed, domain.ParamSource, domain.ParamTarget} {
			if v, ok := in.Parameters[k]; ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %q\n", k, v)
			}
		}
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [text]",
	Short: "Classify every sentence of a text",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := input(cmd, args)
		if err != nil {
			return err
		}
		vc, err := analyzeConfig()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		rs, _ := newSession().Analyze(ctx, text)
		p := view.Derive(rs, vc)
		if asJSON {
			return printJSON(cmd.OutOrStdout(), struct {
				view.Page
				Stats domain.Stats `json:"stats"`
			}{p, rs.Stats()})
		}
		printPage(cmd.OutOrStdout(), p, rs.Stats())
		return nil
	},
}

// analyzeConfig builds the view from the analyze flags, parsed the same
// way as the HTTP query parameters.
func analyzeConfig() (view.Config, error) {
	vc := view.Config{
		MinConfidence: minConf,
		MaxConfidence: maxConf,
		Keyword:       keyword,
		Page:          page,
		PageSize:      pageSize,
	}
	var err error
	if vc.Label, err = view.ParseLabelFilter(labelFilter); err != nil {
		return vc, err
	}
	if vc.SortKey, err = view.ParseSortKey(sortKey); err != nil {
		return vc, err
	}
	if vc.SortDirection, err = view.ParseSortDirection(sortDir); err != nil {
		return vc, err
	}
	return vc, vc.Validate()
}

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send one message to the assistant",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := input(cmd, args)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		reply, err := newSession().Handle(ctx, text, domain.ParseService(service))
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), reply)
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply.Content)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: config.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print JSON")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	routeCmd.Flags().StringVarP(&service, "service", "s", "", "Force a service (classifier, lyrics, creator)")
	chatCmd.Flags().StringVarP(&service, "service", "s", "", "Force a service (classifier, lyrics, creator)")

	f := analyzeCmd.Flags()
	f.StringVar(&labelFilter, "label", string(view.FilterAll), "Show all, metaphor or literal results")
	f.Float64Var(&minConf, "min", 0, "Minimum confidence")
	f.Float64Var(&maxConf, "max", 1, "Maximum confidence")
	f.StringVarP(&keyword, "query", "q", "", "Case-insensitive keyword filter")
	f.StringVar(&sortKey, "sort", string(view.SortOriginal), "Sort by original, confidence or label")
	f.StringVar(&sortDir, "dir", string(view.Asc), "Sort direction, asc or desc")
	f.IntVar(&page, "page", 1, "Page number")
	f.IntVar(&pageSize, "page-size", view.DefaultPageSize, "Results per page")

	rootCmd.AddCommand(segmentCmd, routeCmd, analyzeCmd, chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newSession() *assistant.Session {
	return assistant.NewSession(gateway.NewClient(cfg.Gateway, logger), assistant.Options{
		Batch: batch.Options{
			CallTimeout: cfg.Batch.CallTimeout,
			Concurrency: cfg.Batch.Concurrency,
			Logger:      logger,
		},
		MaxRecent: cfg.History.MaxRecent,
		Logger:    logger,
	})
}

func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// input joins the arguments, or reads stdin when there are none or the only
// argument is "-".
func input(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printPage(w io.Writer, p view.Page, st domain.Stats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tCONFIDENCE\tTEXT")
	for _, r := range p.Visible {
		fmt.Fprintf(tw, "%s\t%.2f\t%s\n", r.Label, r.Confidence, r.Unit)
	}
	tw.Flush()

	fmt.Fprintf(w, "\npage %d/%d, %d of %d shown\n", p.Page, max(p.TotalPages, 1), len(p.Visible), p.TotalFiltered)
	fmt.Fprintf(w, "total %d, metaphors %d, literal %d, avg confidence %.2f, high confidence %d\n",
		st.Total, st.MetaphorCount, st.LiteralCount, st.AverageConfidence, st.HighConfidenceCount)
}
