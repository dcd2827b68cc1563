package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// apiClient talks to a running zoe server's REST API. Every method maps a
// non-2xx response to a cliError carrying the exit code the caller should
// use, so subcommands never have to inspect status codes themselves.
type apiClient struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

// cliError carries the process exit code a failure should produce.
type cliError struct {
	exitCode int
	err      error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func newAPIClient(cmd *cobra.Command) (*apiClient, error) {
	master, _ := cmd.Flags().GetString("master")
	if master == "" {
		master = os.Getenv("ZOE_MASTER_ADDRESS")
	}
	if master == "" {
		return nil, &cliError{exitUserError, fmt.Errorf("no master address: pass --master or set ZOE_MASTER_ADDRESS")}
	}

	username, _ := cmd.Flags().GetString("username")
	if username == "" {
		username = os.Getenv("ZOE_USERNAME")
	}
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = os.Getenv("ZOE_PASSWORD")
	}

	return &apiClient{
		baseURL:  master,
		username: username,
		password: password,
		http:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *apiClient) do(method, path string, body io.Reader, accept string) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, &cliError{exitUserError, err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &cliError{exitBackendError, fmt.Errorf("request %s %s: %w", method, path, err)}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, &cliError{exitAuthError, fmt.Errorf("%s %s: %s", method, path, resp.Status)}
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		defer resp.Body.Close()
		var apiErr struct {
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return nil, &cliError{exitUserError, fmt.Errorf("%s %s: %s", method, path, apiErr.Message)}
	}
	if resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, &cliError{exitBackendError, fmt.Errorf("%s %s: %s", method, path, resp.Status)}
	}
	return resp, nil
}

func (c *apiClient) postJSON(path string, body, out interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return &cliError{exitUserError, err}
	}
	resp, err := c.do(http.MethodPost, path, &buf, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	return decodeJSON(resp, out)
}

func (c *apiClient) getJSON(path string, out interface{}) error {
	resp, err := c.do(http.MethodGet, path, nil, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, out)
}

func (c *apiClient) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil, "")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func decodeJSON(resp *http.Response, out interface{}) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &cliError{exitBackendError, fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func exitCodeFor(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.exitCode
	}
	return exitUserError
}
