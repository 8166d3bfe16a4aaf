package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/Tsinling0525/canvasflow/app"
	"github.com/Tsinling0525/canvasflow/format/n8n"
	"github.com/Tsinling0525/canvasflow/model"
)

type cli struct {
	app *app.App
	out io.Writer
}

// loadWorkflow reads a workflow file in the native format or as an n8n
// export. Inputs come from the n8n data envelope when present.
func loadWorkflow(path, format string) (model.Workflow, map[model.ID]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return model.Workflow{}, nil, err
	}
	switch format {
	case "n8n":
		return n8n.Parse(b)
	case "native", "":
		var wf model.Workflow
		if err := json.Unmarshal(b, &wf); err != nil {
			return model.Workflow{}, nil, fmt.Errorf("decode workflow: %w", err)
		}
		return wf, nil, nil
	default:
		return model.Workflow{}, nil, fmt.Errorf("unknown format %q", format)
	}
}

// parseInputs decodes a JSON object mapping entry node ids to their input.
func parseInputs(raw string) (map[model.ID]any, error) {
	if raw == "" {
		return nil, nil
	}
	var inputs map[model.ID]any
	if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
		return nil, fmt.Errorf("invalid --input: %w", err)
	}
	return inputs, nil
}

func (c *cli) run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	file := fs.String("file", "", "Path to workflow JSON")
	format := fs.String("format", "native", "Workflow format: native or n8n")
	input := fs.String("input", "", "JSON object of entry node inputs")
	save := fs.Bool("save", false, "Store the workflow before running it")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *file == "" {
		fmt.Fprintln(c.out, "--file is required")
		return errUsage
	}

	wf, inputs, err := loadWorkflow(*file, *format)
	if err != nil {
		return err
	}
	if *input != "" {
		if inputs, err = parseInputs(*input); err != nil {
			return err
		}
	}
	if *save {
		if err := c.app.Storage.Workflows.Save(ctx, &wf); err != nil {
			return err
		}
	}

	rec, err := c.app.Engine.Run(ctx, wf, inputs)
	if err != nil {
		return err
	}
	printRun(c.out, rec)
	if rec.Status == model.RunError {
		return errors.New(rec.ErrorMessage)
	}
	return nil
}

func (c *cli) runs(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	log := c.app.Storage.Runs
	switch args[0] {
	case "list":
		recs, err := log.List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tWORKFLOW\tSTATUS\tNODES\tDURATION\tSTARTED")
		for _, r := range recs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%dms\t%s\n", r.ID, r.WorkflowName, r.Status,
				r.NodesExecuted, r.TotalNodes, r.DurationMs, r.StartedAt.Local().Format(time.DateTime))
		}
		return tw.Flush()
	case "show":
		if len(args) < 2 {
			return errUsage
		}
		rec, err := log.Get(ctx, args[1])
		if err != nil {
			return err
		}
		printRun(c.out, rec)
		return nil
	case "delete":
		if len(args) < 2 {
			return errUsage
		}
		if err := log.Delete(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "deleted run %s\n", args[1])
		return nil
	case "clear":
		if err := log.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "run log cleared")
		return nil
	default:
		return errUsage
	}
}

func (c *cli) workflows(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	store := c.app.Storage.Workflows
	switch args[0] {
	case "list":
		wfs, err := store.List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tNODES\tEDGES\tUPDATED")
		for _, wf := range wfs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", wf.ID, wf.Name, len(wf.Nodes), len(wf.Edges),
				wf.UpdatedAt.Local().Format(time.DateTime))
		}
		return tw.Flush()
	case "show":
		if len(args) < 2 {
			return errUsage
		}
		wf, err := store.Get(ctx, model.ID(args[1]))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(wf)
	case "import":
		fs := flag.NewFlagSet("workflows import", flag.ContinueOnError)
		file := fs.String("file", "", "Path to workflow JSON")
		format := fs.String("format", "native", "Workflow format: native or n8n")
		if err := fs.Parse(args[1:]); err != nil || *file == "" {
			return errUsage
		}
		wf, _, err := loadWorkflow(*file, *format)
		if err != nil {
			return err
		}
		if err := store.Save(ctx, &wf); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "imported workflow %s (%s)\n", wf.ID, wf.Name)
		return nil
	case "delete":
		if len(args) < 2 {
			return errUsage
		}
		if err := store.Delete(ctx, model.ID(args[1])); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "deleted workflow %s\n", args[1])
		return nil
	default:
		return errUsage
	}
}

func (c *cli) nodeTypes() error {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tCATEGORY\tLABEL\tBRANCHING")
	for _, d := range c.app.Engine.Registry().List() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", d.Type, d.Category, d.Label, d.Branching)
	}
	return tw.Flush()
}

func printRun(w io.Writer, rec *model.RunRecord) {
	fmt.Fprintf(w, "run %s: %s (%d/%d nodes, %dms)\n", rec.ID, rec.Status, rec.NodesExecuted, rec.TotalNodes, rec.DurationMs)
	for _, e := range rec.PerNode {
		line := fmt.Sprintf("  %-8s %s [%s] %dms", e.Status, e.NodeName, e.NodeType, e.DurationMs)
		if e.Error != "" {
			line += ": " + e.Error
		}
		fmt.Fprintln(w, line)
	}
	if rec.ErrorMessage != "" {
		fmt.Fprintf(w, "error: %s\n", rec.ErrorMessage)
	}
}
