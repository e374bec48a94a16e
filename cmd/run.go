// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cythink/api/schemas"
	"github.com/xkilldash9x/cythink/internal/browser"
	"github.com/xkilldash9x/cythink/internal/companion"
	"github.com/xkilldash9x/cythink/internal/config"
	"github.com/xkilldash9x/cythink/internal/directive"
	"github.com/xkilldash9x/cythink/internal/llmclient"
	"github.com/xkilldash9x/cythink/internal/observability"
	"github.com/xkilldash9x/cythink/internal/orchestrator"
	"github.com/xkilldash9x/cythink/internal/rewrite"
	"github.com/xkilldash9x/cythink/internal/translate"
)

// companionWait bounds how long run waits for a companion endpoint to answer.
const companionWait = 10 * time.Second

type runDeps struct {
	caches    cacheProvider
	newClient clientFactory
	newDriver driverFactory
}

type runOptions struct {
	URL          string
	Spec         string
	Test         string
	Within       string
	Driver       string
	File         string
	CompanionURL string
	Placeholders map[string]string
	Steps        bool
	Rewrite      bool
}

// newRunCmd creates the `run` command, which executes one directive against a page.
func newRunCmd(v *viper.Viper, deps runDeps) *cobra.Command {
	var opts runOptions

	runCmd := &cobra.Command{
		Use:   "run [steps...]",
		Short: "Translate and execute a directive against a page",
		Long: `Executes a directive step by step. Each argument is one step; a single argument
may hold several steps on separate lines. With --steps the input is a generated block that
runs without translation.`,
		Example: `  cythink run --url http://localhost:3000/login --spec cypress/e2e/login.cy.js \
    --test "logs in" 'enter "{{user}}" into the email field' 'click the login button' \
    --placeholder user=ann@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			d, err := readDirective(opts.File, args)
			if err != nil {
				return err
			}
			return runThink(cmd.Context(), cmd.OutOrStdout(), observability.GetLogger(), cfg, d, opts, deps)
		},
	}

	flags := runCmd.Flags()
	flags.StringVar(&opts.URL, "url", "", "page to open before the first step")
	flags.StringVar(&opts.Spec, "spec", "", "spec identifier the steps belong to")
	flags.StringVar(&opts.Test, "test", "", "test identifier the steps belong to")
	flags.StringVar(&opts.Within, "within", "", "selector of the element the steps are scoped to")
	flags.StringVar(&opts.Driver, "driver", DriverChrome, "automation engine: chrome or htmldoc")
	flags.StringVarP(&opts.File, "file", "f", "", "read the directive from a file")
	flags.StringVar(&opts.CompanionURL, "companion", "", "translate through a running companion endpoint")
	flags.StringToStringVarP(&opts.Placeholders, "placeholder", "p", nil, "value substituted for {{name}} in actions (name=value)")
	flags.BoolVar(&opts.Steps, "steps", false, "execute a generated block without translation")
	flags.BoolVar(&opts.Rewrite, "rewrite", false, "save the generated code into the spec file on success")
	flags.Bool("headless", true, "run the browser without a window")
	_ = v.BindPFlag("browser.headless", flags.Lookup("headless"))
	return runCmd
}

// readDirective builds a directive from a file or the positional arguments.
func readDirective(file string, args []string) (directive.Directive, error) {
	switch {
	case file != "" && len(args) > 0:
		return directive.Directive{}, errors.New("steps cannot be given both as arguments and with --file")
	case file != "":
		raw, err := os.ReadFile(file)
		if err != nil {
			return directive.Directive{}, fmt.Errorf("failed to read directive file: %w", err)
		}
		return directive.Text(string(raw)), nil
	case len(args) == 1:
		return directive.Text(args[0]), nil
	case len(args) > 1:
		return directive.Lines(args...), nil
	default:
		return directive.Directive{}, errors.New("no steps given")
	}
}

// runThink contains the testable logic of the run command.
func runThink(
	ctx context.Context,
	out io.Writer,
	logger *zap.Logger,
	cfg *config.Config,
	d directive.Directive,
	opts runOptions,
	deps runDeps,
) error {
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	driver, closeDriver, err := deps.newDriver(ctx, opts.Driver, cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("failed to start automation engine: %w", err)
	}
	defer closeDriver()

	if opts.URL != "" {
		navCtx, cancel := context.WithTimeout(ctx, cfg.Browser.NavigationTimeout)
		err := driver.Navigate(navCtx, opts.URL)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", opts.URL, err)
		}
	}

	var (
		translator schemas.TaskTranslator
		promoter   schemas.Promoter
		recorder   schemas.ThoughtRecorder
	)
	if opts.CompanionURL != "" {
		client := companion.NewClient(opts.CompanionURL, nil, logger)
		if err := client.WaitReady(ctx, companionWait); err != nil {
			return fmt.Errorf("companion endpoint is not reachable: %w", err)
		}
		translator, promoter, recorder = client, client, client
	} else if !opts.Steps {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cache, cleanup, err := deps.caches.Open(ctx, cfg.Cache, logger, metrics)
		if err != nil {
			return err
		}
		defer cleanup()
		backend, err := deps.newClient(ctx, cfg.Translator, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize translation backend: %w", err)
		}
		instructions, _ := llmclient.ReadAgentInstructions(cfg.Project.Root, logger)
		service := translate.NewService(backend, cache, translateSettings(cfg, instructions), logger, metrics)
		translator, promoter = service, service
		recorder = rewrite.New(cfg.Project.Root, logger)
	} else {
		// A generated block never reaches the translator.
		translator, promoter = noTranslation{}, noTranslation{}
	}

	thinkerOpts := []orchestrator.ThinkerOption{
		orchestrator.WithTest(opts.Spec, opts.Test),
		orchestrator.WithMetrics(metrics),
	}
	if opts.Rewrite && opts.Spec != "" && recorder != nil {
		thinkerOpts = append(thinkerOpts, orchestrator.WithRecorder(recorder))
	}
	interp := browser.NewInterpreter(driver, logger, browser.WithRetryTimeout(cfg.Browser.CommandTimeout))
	thinker, err := orchestrator.NewThinker(translator, promoter, interp, logger, thinkerOpts...)
	if err != nil {
		return err
	}

	subject := thinker.Document()
	if opts.Within != "" {
		subject = thinker.Get(opts.Within)
	}
	callOpts := []orchestrator.Option{orchestrator.WithPlaceholders(opts.Placeholders)}
	if opts.Steps {
		subject = subject.Steps(ctx, d.Source(), callOpts...)
	} else {
		subject = subject.Think(ctx, d, callOpts...)
	}

	if outcome := subject.Last(); outcome != nil {
		if err := printOutcome(out, outcome); err != nil {
			return err
		}
	}
	return subject.Err()
}

// printOutcome writes one line per step followed by a token summary.
func printOutcome(w io.Writer, o *orchestrator.Outcome) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATE\tSOURCE\tACTION")
	for _, s := range o.Steps {
		source := "backend"
		if s.FromCache {
			source = "cache"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Index+1, s.State, source, strings.ReplaceAll(s.Action, "\n", " "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "tokens used: %d, tokens saved: %d\n", o.TokensUsed, o.TokensSaved)
	return err
}

// noTranslation satisfies the translation interfaces for runs that only execute generated
// blocks.
type noTranslation struct{}

func (noTranslation) Translate(context.Context, schemas.TaskRequest) (*schemas.TaskResponse, error) {
	return nil, errors.New("translation is not available when executing generated steps")
}

func (noTranslation) Abandon(context.Context, string) error { return nil }

func (noTranslation) Promote(context.Context, string) (bool, error) { return false, nil }
