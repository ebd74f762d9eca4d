package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/manifold-flow/manifold/pkg/flow"
	"github.com/manifold-flow/manifold/pkg/flow/nodes"
	"github.com/manifold-flow/manifold/pkg/value"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:   "manifold",
		Short: "Manifold — workflow orchestration engine",
		Long: `Manifold compiles declarative workflow graphs (JSON, YAML, or DOT)
into executable node networks and runs them with checkpointed, resumable
state. Node parameters may reference other nodes' outputs with ${node.key}
template tokens, resolved just before each node executes.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(runCmd())
	root.AddCommand(resumeCmd())
	root.AddCommand(lintCmd())
	root.AddCommand(graphCmd())
	return root
}

// ─── run ──────────────────────────────────────────────────────────────────────

func runCmd() *cobra.Command {
	var (
		inputs    []string
		statePath string
		workdir   string
		model     string
	)

	cmd := &cobra.Command{
		Use:   "run <workflow.{json,yaml,dot}>",
		Short: "Compile and execute a workflow from the beginning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputVals, err := parseInputs(inputs)
			if err != nil {
				return err
			}
			compiled, err := compileWorkflow(args[0], workdir, model, inputVals)
			if err != nil {
				return err
			}
			eng, err := flow.NewEngine(compiled, flow.Options{
				Inputs:    inputVals,
				StatePath: statePath,
			})
			if err != nil {
				return err
			}
			return finishRun(eng.Run(signalContext(cmd.Context())))
		},
	}

	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "execution input as name=value (value may be JSON); repeatable")
	cmd.Flags().StringVar(&statePath, "state", "", "path for the resumable run-state JSON (optional)")
	cmd.Flags().StringVar(&workdir, "workdir", ".", "working directory for exec and file nodes")
	cmd.Flags().StringVar(&model, "model", "claude-sonnet-4-5", "default model for llm nodes")
	return cmd
}

// ─── resume ───────────────────────────────────────────────────────────────────

func resumeCmd() *cobra.Command {
	var (
		inputs  []string
		workdir string
		model   string
	)

	cmd := &cobra.Command{
		Use:   "resume <workflow.{json,yaml,dot}> <state.json>",
		Short: "Re-run a workflow, replaying checkpointed nodes from a saved state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputVals, err := parseInputs(inputs)
			if err != nil {
				return err
			}
			compiled, err := compileWorkflow(args[0], workdir, model, inputVals)
			if err != nil {
				return err
			}
			eng, err := flow.Resume(compiled, args[1], flow.Options{Inputs: inputVals})
			if err != nil {
				return err
			}
			return finishRun(eng.Run(signalContext(cmd.Context())))
		},
	}

	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "execution input as name=value; repeatable")
	cmd.Flags().StringVar(&workdir, "workdir", ".", "working directory for exec and file nodes")
	cmd.Flags().StringVar(&model, "model", "claude-sonnet-4-5", "default model for llm nodes")
	return cmd
}

// ─── lint ─────────────────────────────────────────────────────────────────────

func lintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint <workflow.{json,yaml,dot}>",
		Short: "Compile a workflow without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ir, err := flow.LoadFile(args[0])
			if err != nil {
				return err
			}
			reg := nodes.Default(nodes.Config{})
			compiled, err := flow.Compile(ir, reg, flow.CompileOptions{})
			if err != nil {
				return err
			}
			for _, w := range compiled.Warnings {
				fmt.Printf("warning: %s\n", w)
			}
			fmt.Printf("OK: workflow %q is valid (%d nodes, start %q)\n",
				compiled.Name, len(compiled.Nodes), compiled.Start)
			return nil
		},
	}
	return cmd
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func compileWorkflow(path, workdir, model string, inputs map[string]value.Value) (*flow.CompiledFlow, error) {
	ir, err := flow.LoadFile(path)
	if err != nil {
		return nil, err
	}
	reg := nodes.Default(nodes.Config{Workdir: workdir, DefaultModel: model})
	return flow.Compile(ir, reg, flow.CompileOptions{Inputs: inputs})
}

// parseInputs turns repeated name=value flags into input values. Values
// that parse as JSON keep their structure; everything else is a string.
func parseInputs(pairs []string) (map[string]value.Value, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]value.Value, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --input %q: want name=value", p)
		}
		if v, err := value.DecodeJSON([]byte(raw)); err == nil {
			out[name] = v
		} else {
			out[name] = value.String(raw)
		}
	}
	return out, nil
}

// finishRun prints the final store and propagates any run failure.
func finishRun(store *flow.SharedStore, err error) error {
	if store != nil {
		flat := store.Flatten()
		keys := make([]string, 0, len(flat))
		for k := range flat {
			if !strings.Contains(k, ".") {
				keys = append(keys, k)
			}
		}
		if len(keys) > 0 {
			sort.Strings(keys)
			fmt.Println("final store:")
			for _, k := range keys {
				fmt.Printf("  %s = %s\n", k, flat[k].Stringify())
			}
		}
	}
	return err
}

// signalContext returns a context cancelled on SIGINT or SIGTERM. The
// engine honors cancellation between nodes.
func signalContext(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-ch:
			fmt.Fprintln(os.Stderr, "\n[manifold] interrupted — cancelling after current node")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
