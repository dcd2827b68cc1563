package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit <name> <application.json>",
	Short: "submit a ZApp description and start it running",
	Args:  cobra.ExactArgs(2),
	RunE:  runSubmit,
}

type submitRequest struct {
	Name        string          `json:"name"`
	Application json.RawMessage `json:"application"`
}

type submitResponse struct {
	Execution struct {
		ID     string `json:"ID"`
		Status string `json:"Status"`
	} `json:"execution"`
	Warning string `json:"warning"`
}

func runSubmit(cmd *cobra.Command, args []string) error {
	name, path := args[0], args[1]

	application, err := os.ReadFile(path)
	if err != nil {
		return &cliError{exitUserError, fmt.Errorf("read %s: %w", path, err)}
	}

	client, err := newAPIClient(cmd)
	if err != nil {
		return err
	}

	var resp submitResponse
	if err := client.postJSON("/api/v1/execution", submitRequest{Name: name, Application: application}, &resp); err != nil {
		return err
	}

	fmt.Printf("execution %s submitted, status: %s\n", resp.Execution.ID, resp.Execution.Status)
	if resp.Warning != "" {
		fmt.Fprintln(os.Stderr, "warning: "+resp.Warning)
	}
	return nil
}
