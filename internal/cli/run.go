package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/flyxxxxx/prototype-sub001/internal/bootstrap"
	"github.com/flyxxxxx/prototype-sub001/internal/engine"
	"github.com/flyxxxxx/prototype-sub001/internal/filters"
	"github.com/flyxxxxx/prototype-sub001/internal/store"
)

// Run error codes.
const (
	ErrCodeInvoke   = "E010" // the invocation could not be dispatched
	ErrCodeJournal  = "E011" // journal database could not be opened
	ErrCodeInvoked  = "E012" // the invocation failed or was rejected
	ErrCodeShutdown = "E013" // the engine did not drain in time
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string // journal database path
	Redis    string // redis address for cache advisors
	Metrics  bool   // print collected metrics after the run
}

// RunResult is the outcome of one invocation.
type RunResult struct {
	ID        string         `json:"id"`
	Class     string         `json:"class"`
	Operation string         `json:"operation"`
	State     engine.State   `json:"state"`
	Value     any            `json:"value,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metrics   []MetricSample `json:"metrics,omitempty"`
}

// MetricSample is one collected series.
type MetricSample struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <manifest> <class> <operation> [args...]",
		Short: "Invoke one operation through its compiled plan",
		Long: `Start an engine for the manifest, invoke one operation and wait for every
asynchronous target to finish.

Each argument is decoded as JSON into the matching parameter; a plain word is
accepted for string parameters. The overload taking as many parameters as
arguments were given is chosen.

Examples:
  prototype run ./manifest Shop Checkout '{"id":"o1","sku":"widget","qty":1,"amount":10}'
  prototype run ./manifest Shop Route '{"id":"r1","rush":true}' --db ./journal.db
  prototype run ./manifest Newsletter Subscribe ada@example.com --metrics`,
		Args:          cobra.MinimumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(opts, args[0], args[1], args[2], args[3:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal every event to this SQLite database")
	cmd.Flags().StringVar(&opts.Redis, "redis", "", "redis address backing cache advisors")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "report collected metrics")

	return cmd
}

func runInvoke(opts *RunOptions, path, class, operation string, raw []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions, formatter, path)
	if err != nil {
		return err
	}

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return commandError(formatter, ErrCodeJournal, fmt.Sprintf("opening journal: %v", err))
		}
		defer st.Close()
		cfg.Journal = st
		cfg.DB = st.DB()
	}

	if opts.Redis != "" {
		client := redis.NewClient(&redis.Options{Addr: opts.Redis})
		defer client.Close()
		cfg.Redis = client
	}

	var registry *prometheus.Registry
	if opts.Metrics {
		registry = prometheus.NewRegistry()
		cfg.Metrics = filters.NewMetrics(registry, "prototype")
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return reportLoadError(formatter, err)
	}

	outcome, invokeErr := invoke(ctx, rt, class, operation, raw)
	if invokeErr == nil {
		rt.Engine.Wait()
	}
	if err := rt.Close(context.WithoutCancel(ctx)); err != nil {
		return commandError(formatter, ErrCodeShutdown, fmt.Sprintf("closing engine: %v", err))
	}
	if invokeErr != nil {
		return commandError(formatter, ErrCodeInvoke, invokeErr.Error())
	}

	result := RunResult{
		ID:        outcome.ID,
		Class:     outcome.Class,
		Operation: outcome.Operation,
		State:     outcome.State,
		Value:     outcome.Value,
	}
	if outcome.Err != nil {
		result.Error = outcome.Err.Error()
	}
	if registry != nil {
		samples, err := gatherMetrics(registry)
		if err != nil {
			return commandError(formatter, bootstrap.ErrCodeGeneric, fmt.Sprintf("gathering metrics: %v", err))
		}
		result.Metrics = samples
	}

	return outputRunResult(formatter, result)
}

func invoke(ctx context.Context, rt *bootstrap.Runtime, class, operation string, raw []string) (*engine.Outcome, error) {
	instance, err := rt.Instance(class)
	if err != nil {
		return nil, err
	}
	outcome, err := rt.Invoke(ctx, instance, operation, len(raw), func(i int, ptr any) error {
		return decodeArg(raw[i], ptr)
	})
	if outcome == nil {
		if err == nil {
			err = errors.New("no outcome")
		}
		return nil, err
	}
	// Never dispatched: no invocation ID was issued.
	var rerr *engine.RuntimeError
	if outcome.ID == "" && errors.As(outcome.Err, &rerr) {
		return nil, rerr
	}
	return outcome, nil
}

// decodeArg decodes one command line argument as strict JSON. A string
// parameter also accepts the bare word.
func decodeArg(raw string, ptr any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	err := dec.Decode(ptr)
	if err == nil {
		return nil
	}
	if s, ok := ptr.(*string); ok {
		*s = raw
		return nil
	}
	return err
}

// gatherMetrics flattens every gathered counter and histogram. Histograms
// report their sample count.
func gatherMetrics(g prometheus.Gatherer) ([]MetricSample, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	var samples []MetricSample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			samples = append(samples, MetricSample{
				Name:   mf.GetName(),
				Labels: labelMap(m.GetLabel()),
				Value:  sampleValue(mf.GetType(), m),
			})
		}
	}
	return samples, nil
}

func labelMap(pairs []*dto.LabelPair) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	labels := make(map[string]string, len(pairs))
	for _, p := range pairs {
		labels[p.GetName()] = p.GetValue()
	}
	return labels
}

func sampleValue(t dto.MetricType, m *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	case dto.MetricType_HISTOGRAM:
		return float64(m.GetHistogram().GetSampleCount())
	}
	return 0
}

// outputRunResult prints the outcome. Failed and rejected invocations exit
// with ExitFailure.
func outputRunResult(formatter *OutputFormatter, result RunResult) error {
	failed := result.State != engine.StateCompleted
	var exitErr error
	if failed {
		exitErr = NewExitError(ExitFailure, fmt.Sprintf("%s.%s %s: %s",
			shortName(result.Class), result.Operation, result.State, result.Error))
	}

	if formatter.JSON() {
		var err error
		if failed {
			err = formatter.Failure(ErrCodeInvoked, result.Error, result)
		} else {
			err = formatter.Success(result)
		}
		if err != nil {
			return err
		}
		return exitErr
	}

	w := formatter.Writer
	mark := "✓"
	if failed {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s.%s %s (%s)\n", mark, shortName(result.Class), result.Operation, result.State, result.ID)
	if result.Value != nil && result.Error == "" {
		fmt.Fprintf(w, "  value: %v\n", result.Value)
	}
	if result.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", result.Error)
	}
	if len(result.Metrics) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Metrics ===")
		for _, s := range result.Metrics {
			fmt.Fprintf(w, "  %s%s %g\n", s.Name, formatLabels(s.Labels), s.Value)
		}
	}
	return exitErr
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// shortName returns the type name of a fully-qualified class name.
func shortName(class string) string {
	if i := strings.LastIndexByte(class, '.'); i >= 0 {
		return class[i+1:]
	}
	return class
}
