package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manifold-flow/manifold/pkg/flow"
)

func graphCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph <workflow.{json,yaml,dot}>",
		Short: "Print a human-readable summary of a workflow graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ir, err := flow.LoadFile(args[0])
			if err != nil {
				return err
			}
			switch strings.ToLower(format) {
			case "dot":
				fmt.Print(renderDOT(ir))
			case "text", "":
				fmt.Print(renderText(ir))
			default:
				return fmt.Errorf("unknown format %q: use text or dot", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or dot")
	return cmd
}

// walkOrder returns node ids in BFS order from the start node; unreachable
// nodes are appended in sorted order at the end.
func walkOrder(ir *flow.WorkflowIR) []string {
	start := ir.Start
	if start == "" && len(ir.Nodes) > 0 {
		start = ir.Nodes[0].ID
	}

	visited := map[string]bool{}
	var order []string

	if start != "" {
		queue := []string{start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if visited[cur] {
				continue
			}
			visited[cur] = true
			order = append(order, cur)
			for _, e := range ir.OutgoingEdges(cur) {
				if !visited[e.To] {
					queue = append(queue, e.To)
				}
			}
		}
	}

	var rest []string
	for _, n := range ir.Nodes {
		if !visited[n.ID] {
			rest = append(rest, n.ID)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

func renderText(ir *flow.WorkflowIR) string {
	var b strings.Builder
	fmt.Fprintf(&b, "workflow %q: %d nodes, %d edges\n", ir.Name, len(ir.Nodes), len(ir.Edges))
	for _, id := range walkOrder(ir) {
		n := ir.Node(id)
		if n == nil {
			continue
		}
		fmt.Fprintf(&b, "  %s [%s]\n", n.ID, n.Type)
		for _, e := range ir.OutgoingEdges(id) {
			action := e.Action
			if action == "" {
				action = flow.DefaultAction
			}
			fmt.Fprintf(&b, "    --%s--> %s\n", action, e.To)
		}
	}
	return b.String()
}

func renderDOT(ir *flow.WorkflowIR) string {
	var b strings.Builder
	name := ir.Name
	if name == "" {
		name = "workflow"
	}
	fmt.Fprintf(&b, "digraph %q {\n", name)
	for _, id := range walkOrder(ir) {
		n := ir.Node(id)
		if n == nil {
			continue
		}
		fmt.Fprintf(&b, "  %q [type=%q]\n", n.ID, n.Type)
	}
	for _, e := range ir.Edges {
		if e.Action != "" && e.Action != flow.DefaultAction {
			fmt.Fprintf(&b, "  %q -> %q [label=%q]\n", e.From, e.To, e.Action)
		} else {
			fmt.Fprintf(&b, "  %q -> %q\n", e.From, e.To)
		}
	}
	b.WriteString("}\n")
	return b.String()
}
