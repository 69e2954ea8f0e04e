package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/manthysbr/firewerk/internal/core/domain"
)

// apiClient talks to a running `firewerk serve`.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: 15 * time.Second}}
}

func (c *apiClient) do(method, path string, out any) error {
	req, err := http.NewRequest(method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}

func newJobsCommand() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and stop jobs on a running server",
	}
	cmd.PersistentFlags().StringVarP(&server, "server", "s", "http://localhost:8080", "server base URL")

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp struct {
				Jobs []domain.Job `json:"jobs"`
			}
			if err := newAPIClient(server).do("GET", "/v1/jobs?limit="+strconv.Itoa(limit), &resp); err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"ID", "Kind", "Status", "Items", "Artifacts", "Failed", "Created"})
			for _, j := range resp.Jobs {
				table.Append([]string{
					string(j.ID),
					string(j.Kind),
					string(j.Status),
					fmt.Sprintf("%d/%d", j.CompletedItems, j.TotalItems),
					strconv.Itoa(j.Artifacts),
					strconv.Itoa(j.FailedVariants),
					j.CreatedAt.Local().Format(time.DateTime),
				})
			}
			table.Render()
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "maximum jobs to show")

	status := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var job domain.Job
			if err := newAPIClient(server).do("GET", "/v1/jobs/"+url.PathEscape(args[0]), &job); err != nil {
				return err
			}
			printJob(cmd.OutOrStdout(), job)
			return nil
		},
	}

	stop := &cobra.Command{
		Use:   "stop <job-id>",
		Short: "Stop a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Job domain.Job `json:"job"`
			}
			if err := newAPIClient(server).do("POST", "/v1/jobs/"+url.PathEscape(args[0])+"/stop", &resp); err != nil {
				return err
			}
			printJob(cmd.OutOrStdout(), resp.Job)
			return nil
		},
	}

	cmd.AddCommand(list, status, stop)
	return cmd
}

func printJob(w io.Writer, j domain.Job) {
	fmt.Fprintf(w, "%s   %s\n", bold("id:"), j.ID)
	fmt.Fprintf(w, "%s %s\n", bold("kind:"), j.Kind)
	fmt.Fprintf(w, "%s %s\n", bold("status:"), j.Status)
	fmt.Fprintf(w, "%s %d/%d\n", bold("items:"), j.CompletedItems, j.TotalItems)
	fmt.Fprintf(w, "%s %d (%d failed variants)\n", bold("artifacts:"), j.Artifacts, j.FailedVariants)
	fmt.Fprintf(w, "%s %s\n", bold("output:"), j.OutputLocation)
	if j.Error != nil {
		fmt.Fprintf(w, "%s %s\n", red("error:"), *j.Error)
	}
}
