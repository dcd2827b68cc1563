package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var psCmd = &cobra.Command{
	Use:   "ps [execution-id]",
	Short: "list executions, or show one execution's services",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPs,
}

func init() {
	psCmd.Flags().String("status", "", "filter by execution status")
	psCmd.Flags().String("user", "", "filter by owning user ID")
}

type executionSummary struct {
	ID     string `json:"ID"`
	Name   string `json:"Name"`
	UserID string `json:"UserID"`
	Status string `json:"Status"`
}

type serviceSummary struct {
	ID            string `json:"ID"`
	Name          string `json:"Name"`
	Status        string `json:"Status"`
	BackendStatus string `json:"BackendStatus"`
	NodeName      string `json:"NodeName"`
}

type executionDetail struct {
	executionSummary
	Services []serviceSummary `json:"Services"`
}

func runPs(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient(cmd)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		var exec executionDetail
		if err := client.getJSON("/api/v1/execution/"+args[0], &exec); err != nil {
			return err
		}
		return printServices(exec.Services)
	}

	query := ""
	if status, _ := cmd.Flags().GetString("status"); status != "" {
		query += "?status=" + status
	}
	if user, _ := cmd.Flags().GetString("user"); user != "" {
		if query == "" {
			query = "?user_id=" + user
		} else {
			query += "&user_id=" + user
		}
	}

	var executions []executionSummary
	if err := client.getJSON("/api/v1/execution"+query, &executions); err != nil {
		return err
	}
	return printExecutions(executions)
}

func printExecutions(executions []executionSummary) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tUSER\tSTATUS")
	for _, e := range executions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.Name, e.UserID, e.Status)
	}
	return w.Flush()
}

func printServices(services []serviceSummary) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tBACKEND\tNODE")
	for _, s := range services {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Status, s.BackendStatus, s.NodeName)
	}
	return w.Flush()
}
