package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/spboyer/promptbench/internal/graders"
	"github.com/spboyer/promptbench/internal/models"
	"github.com/spboyer/promptbench/internal/orchestration"
	"github.com/spboyer/promptbench/internal/validation"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// promptModels is a test hook for replacing the interactive model picker.
// It returns nil when no terminal is attached.
var promptModels = defaultPromptModels

func defaultPromptModels(in io.Reader, out io.Writer, options []string) ([]string, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) || len(options) == 0 {
		return nil, nil
	}

	var selected []string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Models to run").
				Options(huh.NewOptions(options...)...).
				Value(&selected),
		),
	).WithInput(in).WithOutput(out).Run()
	if err != nil {
		return nil, err
	}
	return selected, nil
}

type runOptions struct {
	models         []string
	vars           []string
	validate       bool
	validatorModel string
	jsonOutput     bool
}

func newRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <prompt.yaml>",
		Short: "Run a prompt file against one or more models",
		Long: `Run a prompt file against one or more models.

The prompt file's user (and optional system) template is rendered with its
variables, overridden by --var, and sent to every model concurrently. Models
come from --model, then the file's models list, then an interactive picker
when a terminal is attached.

With --validate, completed results are graded by the validator model and the
command exits with code 1 when any verdict fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrompt(cmd, args[0], &opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.models, "model", "m", nil, "Model to run (repeatable)")
	cmd.Flags().StringArrayVar(&opts.vars, "var", nil, "Template variable as key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.validate, "validate", false, "Grade completed results with the validator model")
	cmd.Flags().StringVar(&opts.validatorModel, "validator-model", "", "Model used by --validate (default: defaults.validator_model)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the final run as JSON")

	return cmd
}

func runPrompt(cmd *cobra.Command, path string, opts *runOptions) error {
	violations, err := validation.ValidatePromptFile(path)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return fmt.Errorf("invalid prompt file %s:\n  %s", path, strings.Join(violations, "\n  "))
	}

	pf, err := models.LoadPromptFile(path)
	if err != nil {
		return err
	}

	vars, err := parseVars(pf.Variables, opts.vars)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The CLI is the only subscriber, so there is nothing to wait for after
	// the done event.
	a, err := loadApp(ctx, orchestration.WithDoneGrace(0))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = a.Close(shutdownCtx)
	}()

	specs, err := resolveModels(ctx, cmd, a, opts.models, pf.Models)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	run, sub, err := a.orchestrator.CreateRunAndSubscribe(ctx, orchestration.CreateRunRequest{
		PromptID:      pf.ID,
		PromptVersion: pf.Version,
		Variables:     vars,
		Models:        specs,
		SystemPrompt:  pf.System,
		UserPrompt:    pf.User,
		OutputSchema:  pf.OutputSchema,
	})
	if err != nil {
		return err
	}
	defer a.orchestrator.Unsubscribe(sub)

	if !opts.jsonOutput {
		fmt.Fprintf(out, "Run %s: %d model(s)\n", run.ID, len(specs)) //nolint:errcheck
	}

	fatal, err := drainEvents(ctx, sub.Events(), func(evt models.Event) {
		if !opts.jsonOutput {
			printEvent(out, evt)
		}
	})
	if err != nil {
		return err
	}
	if fatal != "" {
		return fmt.Errorf("run %s did not complete: %s", run.ID, fatal)
	}

	run, err = a.orchestrator.GetRun(ctx, run.ID)
	if err != nil {
		return err
	}

	var failed int
	if opts.validate {
		stopSpinner := startSpinner(cmd.ErrOrStderr(), "Grading completed results…")
		resp, err := a.validator.Validate(ctx, graders.ValidateRequest{
			RunID:          run.ID,
			ValidatorModel: opts.validatorModel,
			Schema:         pf.OutputSchema,
		})
		stopSpinner()
		if err != nil {
			return fmt.Errorf("validating run %s: %w", run.ID, err)
		}
		for _, v := range resp.Results {
			if !v.Passed {
				failed++
			}
		}
		if run, err = a.orchestrator.GetRun(ctx, run.ID); err != nil {
			return err
		}
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run); err != nil {
			return err
		}
	} else {
		printResults(out, run)
		if opts.validate {
			printVerdicts(out, run.Validation.Results)
		}
	}

	if failed > 0 {
		return &TestFailureError{
			Message: fmt.Sprintf("validation failed for %d of %d graded result(s)", failed, len(run.Validation.Results)),
		}
	}
	return nil
}

// drainEvents passes every progress event to fn until the done event arrives
// or the subscription closes. It returns the error carried by the done event.
func drainEvents(ctx context.Context, events <-chan models.Event, fn func(models.Event)) (string, error) {
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return "", errors.New("event stream closed before the run finished")
			}
			if evt.Done {
				return evt.Error, nil
			}
			fn(evt)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// resolveModels picks the model specs for a run: flags first, then the
// prompt file, then the interactive picker.
func resolveModels(ctx context.Context, cmd *cobra.Command, a *app, flagModels []string, fileModels []models.ModelSpec) ([]models.ModelSpec, error) {
	if len(flagModels) > 0 {
		specs := make([]models.ModelSpec, 0, len(flagModels))
		for _, m := range flagModels {
			spec, err := parseModelFlag(m)
			if err != nil {
				return nil, err
			}
			specs = append(specs, spec)
		}
		return specs, nil
	}
	if len(fileModels) > 0 {
		return fileModels, nil
	}

	available, err := a.catalog.ListModels(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	ids := make([]string, len(available))
	for i, m := range available {
		ids[i] = m.ID
	}

	selected, err := promptModels(cmd.InOrStdin(), cmd.ErrOrStderr(), ids)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, errors.New("no models selected: pass --model or list models in the prompt file")
	}

	specs := make([]models.ModelSpec, len(selected))
	for i, id := range selected {
		specs[i] = models.ModelSpec{Model: id}
	}
	return specs, nil
}

// parseModelFlag accepts "model" or "model:online" for web search.
func parseModelFlag(v string) (models.ModelSpec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return models.ModelSpec{}, errors.New("--model must not be empty")
	}
	if name, ok := strings.CutSuffix(v, ":online"); ok {
		return models.ModelSpec{Model: name, WebSearch: true}, nil
	}
	return models.ModelSpec{Model: v}, nil
}

// parseVars overlays key=value flags on the prompt file's variables.
func parseVars(defaults map[string]any, flags []string) (map[string]any, error) {
	vars := make(map[string]any, len(defaults)+len(flags))
	for k, v := range defaults {
		vars[k] = v
	}
	for _, kv := range flags {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", kv)
		}
		vars[k] = v
	}
	return vars, nil
}
