// Package main provides the adw binary entry point.
// ADW drives an AI coding agent through the phases of resolving a
// tracked issue: plan, build, test, review, document and patch.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "adw"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Automated development workflow runner",
		Long: `ADW drives an AI coding agent through the phases of resolving a
tracked issue. Each phase is a subcommand; state persists under the
agents directory so phases can run independently or chained.

Phases:
- plan      classify the issue, create a branch and a plan document
- build     implement the plan
- test      run tests, with one automatic resolution attempt
- review    review the implementation against the plan
- document  update documentation for the change
- patch     plan and implement a review change request
- sdlc      run a composite workflow of the above`,
		SilenceUsage: true,
	}

	cmd.AddCommand(
		planCmd(),
		buildCmd(),
		testCmd(),
		reviewCmd(),
		documentCmd(),
		patchCmd(),
		sdlcCmd(),
		versionCmd(),
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}
