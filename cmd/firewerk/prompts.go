package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/manthysbr/firewerk/internal/adapters/prompts"
	"github.com/manthysbr/firewerk/internal/core/domain"
)

func newPromptsCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect prompt files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "inspect <file>",
		Short: "Load a prompt file and print its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			items, err := prompts.NewLoader(filepath.Dir(path)).Load(cmd.Context(), path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s: %d items, kind %s\n", bold("file"), filepath.Base(path), len(items), cyan(string(prompts.GuessKind(items))))

			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"ID", "Variants", "Parameters", "Prompt"})
			table.SetAutoWrapText(false)
			for _, it := range items {
				table.Append([]string{it.ID, strconv.Itoa(it.VariantCount), formatParams(it.Parameters), truncate(it.Payload, 60)})
			}
			table.Render()
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List prompt files in the configured prompts directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			files, err := prompts.NewLoader(cfg.Storage.PromptsDir).List(cmd.Context())
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"File", "Kind", "Items", "Error"})
			for _, f := range files {
				table.Append([]string{f.Name, string(f.Kind), strconv.Itoa(f.Count), f.Error})
			}
			table.Render()
			return nil
		},
	})
	return cmd
}

func formatParams(p domain.Parameters) string {
	parts := make([]string, 0, len(p))
	for _, key := range domain.KnownParams {
		if v := p.Get(key); v != "" {
			parts = append(parts, string(key)+"="+v)
		}
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
