package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var terminateCmd = &cobra.Command{
	Use:   "terminate <execution-id>",
	Short: "terminate a running execution, or delete a terminated one",
	Args:  cobra.ExactArgs(1),
	RunE:  runTerminate,
}

func runTerminate(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient(cmd)
	if err != nil {
		return err
	}

	if err := client.delete("/api/v1/execution/" + args[0]); err != nil {
		return err
	}

	fmt.Println("execution " + args[0] + " terminated")
	return nil
}
