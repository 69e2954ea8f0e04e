package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/services"
)

type runOptions struct {
	kind        string
	file        string
	texts       []string
	variants    int
	style       string
	model       string
	aspectRatio string
	voice       string
	language    string
	captureMode string
	outputDir   string
	profile     string
}

func (o runOptions) request() domain.StartRequest {
	req := domain.StartRequest{
		Kind: domain.JobKind(o.kind),
		Options: domain.JobOptions{
			OutputDir:         o.outputDir,
			VariantsPerPrompt: o.variants,
			GlobalStyle:       o.style,
			CaptureMode:       domain.CaptureMode(o.captureMode),
			Profile:           o.profile,
			Parameters:        domain.Parameters{},
		},
	}
	if mode, ok := domain.ParseCaptureMode(o.captureMode); ok {
		req.Options.CaptureMode = mode
	}
	for key, v := range map[domain.ParamKey]string{
		domain.ParamModel:       o.model,
		domain.ParamAspectRatio: o.aspectRatio,
		domain.ParamVoice:       o.voice,
		domain.ParamLanguage:    o.language,
	} {
		if v != "" {
			req.Options.Parameters[key] = v
		}
	}
	for i, text := range o.texts {
		req.Items = append(req.Items, domain.PromptItem{ID: "prompt_" + strconv.Itoa(i+1), Payload: text})
	}
	return req
}

func newRunCommand(c *cli) *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one job in the foreground",
		Example: `  firewerk run --file prompts/batch.csv --aspect-ratio square
  firewerk run --kind speech --text "Hello there" --voice Aria`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			logger := c.newLogger(true)

			req := opts.request()

			// The manager keeps running until the job has released its
			// session; signals only ask the job to stop.
			runCtx, cancelRun := context.WithCancel(context.Background())
			defer cancelRun()

			a, err := buildApp(cmd.Context(), logger, cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if opts.file != "" {
				path, err := filepath.Abs(opts.file)
				if err != nil {
					return err
				}
				items, err := a.prompts.Load(cmd.Context(), path)
				if err != nil {
					return err
				}
				req.Items = append(items, req.Items...)
			}

			managerDone := make(chan error, 1)
			go func() { managerDone <- a.manager.Run(runCtx) }()
			defer func() {
				cancelRun()
				<-managerDone
			}()

			events, unsub := a.eventBus.SubscribeGlobal()
			defer unsub()

			job, err := a.manager.StartJob(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d items) -> %s\n", bold("job"), cyan(string(job.ID)), job.TotalItems, job.OutputLocation)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sig)
			finished := make(chan struct{})
			defer close(finished)
			go func() {
				select {
				case <-sig:
					if _, err := a.manager.StopJob(context.Background(), job.ID); err == nil {
						fmt.Fprintln(cmd.ErrOrStderr(), yellow("\nstopping after the current variant..."))
					}
				case <-finished:
				}
			}()

			go printProgress(cmd.OutOrStdout(), job.ID, events)

			final, err := a.manager.Wait(context.Background(), job.ID)
			if err != nil {
				return err
			}
			arts, err := a.manager.Artifacts(context.Background(), job.ID)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), final, arts)
			if final.Status == domain.JobStatusFailed {
				return fmt.Errorf("job %s failed", final.ID)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.kind, "kind", string(domain.JobKindImage), "job kind: image or speech")
	f.StringVarP(&opts.file, "file", "f", "", "prompt file (.csv, .json or .xlsx)")
	f.StringArrayVarP(&opts.texts, "text", "t", nil, "prompt text (repeatable)")
	f.IntVar(&opts.variants, "variants", 0, "variants per prompt (overrides the file)")
	f.StringVar(&opts.style, "style", "", "style appended to every prompt")
	f.StringVar(&opts.model, "model", "", "model for items that do not set one")
	f.StringVar(&opts.aspectRatio, "aspect-ratio", "", "aspect ratio for items that do not set one")
	f.StringVar(&opts.voice, "voice", "", "voice for speech items")
	f.StringVar(&opts.language, "language", "", "language for speech items")
	f.StringVar(&opts.captureMode, "capture-mode", "", "preferred capture mode: network, element or download")
	f.StringVarP(&opts.outputDir, "output-dir", "o", "", "output directory for this job")
	f.StringVar(&opts.profile, "profile", "", "selector profile name")
	return cmd
}

func printProgress(w io.Writer, id domain.JobID, events <-chan services.Event) {
	for evt := range events {
		if evt.JobID != id {
			continue
		}
		switch evt.Type {
		case services.EventTypeProgress:
			var p struct {
				ItemID    string `json:"item_id"`
				Completed int    `json:"completed_items"`
				Total     int    `json:"total_items"`
			}
			if json.Unmarshal([]byte(evt.Data), &p) == nil {
				fmt.Fprintf(w, "[%d/%d] %s done\n", p.Completed, p.Total, p.ItemID)
			}
		case services.EventTypeArtifact:
			var a domain.Artifact
			if json.Unmarshal([]byte(evt.Data), &a) == nil {
				fmt.Fprintf(w, "  %s %s\n", green("saved"), a.Path)
			}
		case services.EventTypeLog:
			fmt.Fprintf(w, "  %s %s\n", yellow("warn"), evt.Data)
		}
	}
}

func printSummary(w io.Writer, job domain.Job, arts []domain.Artifact) {
	status := string(job.Status)
	switch job.Status {
	case domain.JobStatusCompleted:
		status = green(status)
	case domain.JobStatusFailed:
		status = red(status)
	default:
		status = yellow(status)
	}
	fmt.Fprintf(w, "\n%s %s: %d/%d items, %d artifacts, %d failed variants\n",
		bold("job"), status, job.CompletedItems, job.TotalItems, job.Artifacts, job.FailedVariants)
	if job.Error != nil {
		fmt.Fprintf(w, "%s %s\n", red("error:"), *job.Error)
	}
	if len(arts) == 0 {
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Item", "Variant", "Mode", "Size", "Path"})
	for _, a := range arts {
		table.Append([]string{a.ItemID, strconv.Itoa(a.Variant), string(a.Mode), strconv.FormatInt(a.SizeBytes, 10), a.Path})
	}
	table.Render()
}

