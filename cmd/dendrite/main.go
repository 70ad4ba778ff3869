// Command dendrite is the CLI surface for the goal-execution engine: ask a
// single goal, run the scripted demo, serve the autonomous loop, or report
// status (spec §6).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gradrix/dendrite/internal/config"
)

// Exit codes per spec §6: 0 success, 2 goal failed after recovery exhausted
// its budget, 3 engine-level error (bad config, storage unavailable, …).
const (
	exitOK            = 0
	exitGoalFailed    = 2
	exitEngineFailure = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string

	root := &cobra.Command{
		Use:   "dendrite",
		Short: "self-improving goal-execution engine",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML config overlay path")

	root.AddCommand(
		newAskCommand(&configPath),
		newDemoCommand(&configPath),
		newServeCommand(&configPath),
		newStatusCommand(&configPath),
	)

	code := exitOK
	root.SilenceUsage = true
	root.SilenceErrors = true
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dendrite:", err)
		code = exitEngineFailure
	}
	return code
}

func loadConfig(path *string) (config.Config, error) {
	cfg := config.New()
	if *path == "" {
		return cfg, nil
	}
	return config.ApplyYAMLFile(cfg, *path)
}

func newAskCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [goal text]",
		Short: "execute a single goal and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a := newApp(cfg)
			ctx := context.Background()
			if err := a.bootstrap(ctx); err != nil {
				return err
			}
			goalText := args[0]
			for _, extra := range args[1:] {
				goalText += " " + extra
			}
			result, err := a.executeGoal(ctx, goalText)
			if err != nil {
				return err
			}
			if !result.Success {
				msg := "unknown failure"
				if result.Error != nil {
					msg = result.Error.Message
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "goal failed: %s\n", msg)
				os.Exit(exitGoalFailed)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "result: %v\n", result.Output)
			return nil
		},
	}
}

func newDemoCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "run the scripted demo scenarios against the in-memory stack",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a := newApp(cfg)
			ctx := context.Background()
			if err := a.bootstrap(ctx); err != nil {
				return err
			}
			goals := []string{
				"add 2 and 3",
				"count the words in hello world from dendrite",
				"reverse the text dendrite",
				"add 2 and 3", // second run should hit the pathway cache.
			}
			for _, goal := range goals {
				result, err := a.executeGoal(ctx, goal)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "goal %q errored: %v\n", goal, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "goal %q -> success=%v cache=%v output=%v\n",
					goal, result.Success, result.UsedCache, result.Output)
			}
			return nil
		},
	}
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the autonomous loop until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a := newApp(cfg)
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := a.bootstrap(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "dendrite: autonomous loop running, press ctrl-c to stop")
			a.loop.Run(ctx)
			a.monitor.StopAll()
			return nil
		},
	}
}

func newStatusCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "report tool catalogue and pathway cache size",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a := newApp(cfg)
			ctx := context.Background()
			if err := a.bootstrap(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tools registered: %d\n", a.registry.Count())
			fmt.Fprintf(cmd.OutOrStdout(), "pathways cached: %d\n", a.cache.Len())
			executions, err := a.store.CountGoalExecutions(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "goal executions recorded: %d\n", executions)
			return nil
		},
	}
}
