package main

import (
	"fmt"
	"strconv"

	"github.com/cuemby/warren-agent/pkg/health"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single health probe",
	Long: `Run one probe the way a health check worker would and print the
result. The exit status is 1 when the target is unhealthy.`,
}

var checkHTTPCmd = &cobra.Command{
	Use:   "http ADDRESS PORT",
	Short: "Probe GET http://ADDRESS:PORT/URI",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := parsePort(args[1])
		if err != nil {
			return err
		}
		uri, _ := cmd.Flags().GetString("uri")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		res := health.CheckHTTPStatus(cmd.Context(), args[0], port, uri, timeout)
		return printResult(cmd, res)
	},
}

var checkTCPCmd = &cobra.Command{
	Use:   "tcp ADDRESS PORT",
	Short: "Probe a TCP connect to ADDRESS:PORT",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := parsePort(args[1])
		if err != nil {
			return err
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")

		res := health.CheckTCPStatus(cmd.Context(), args[0], port, timeout)
		return printResult(cmd, res)
	},
}

func init() {
	defaults := health.DefaultConfig()

	checkHTTPCmd.Flags().String("uri", defaults.URI, "Request path")
	checkHTTPCmd.Flags().Duration("timeout", defaults.Timeout, "Probe timeout")
	checkTCPCmd.Flags().Duration("timeout", defaults.Timeout, "Probe timeout")

	checkCmd.AddCommand(checkHTTPCmd)
	checkCmd.AddCommand(checkTCPCmd)
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}

func printResult(cmd *cobra.Command, res health.Result) error {
	out, err := yaml.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to render result: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))

	if !res.Healthy() {
		return errUnhealthy
	}
	return nil
}
