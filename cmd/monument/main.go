package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/AppachchiCodes/The-Human-Monument/internal/admission"
	"github.com/AppachchiCodes/The-Human-Monument/internal/config"
	"github.com/AppachchiCodes/The-Human-Monument/internal/database"
	"github.com/AppachchiCodes/The-Human-Monument/internal/model"
	"github.com/AppachchiCodes/The-Human-Monument/internal/repository"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "monument: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "monument",
		Short:        "Human Monument development CLI",
		Long:         `The monument CLI wraps common development workflows: running the API server and cleanup worker, seeding the canvas with welcome tiles, and running the test suite.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newRunCmd(),
		newSeedCmd(),
		newTestCmd(),
	)
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run individual Go binaries directly",
	}
	cmd.AddCommand(
		newServiceRunner("server", "./cmd/server"),
		newServiceRunner("worker", "./cmd/worker"),
	)
	return cmd
}

func newServiceRunner(name, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("go run %s", path),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			goArgs := []string{"run", path}
			goArgs = append(goArgs, args...)
			return runCommand(ctx, "go", goArgs...)
		},
	}
}

func newTestCmd() *cobra.Command {
	var race bool
	var cover bool
	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run Go tests (defaults to ./...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pkgs := args
			if len(pkgs) == 0 {
				pkgs = []string{"./..."}
			}
			goArgs := []string{"test"}
			if race {
				goArgs = append(goArgs, "-race")
			}
			if cover {
				goArgs = append(goArgs, "-cover")
			}
			goArgs = append(goArgs, pkgs...)
			return runCommand(ctx, "go", goArgs...)
		},
	}
	cmd.Flags().BoolVar(&race, "race", false, "Enable Go race detector")
	cmd.Flags().BoolVar(&cover, "cover", false, "Collect coverage data")
	return cmd
}

var welcomeTiles = []string{
	"Welcome to The Human Monument! This is the first tile.",
	"Every tile tells a story. What's yours?",
	"From every corner of the world, we build together.",
	"Leave something small. It stays forever.",
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the welcome tiles through the normal admission path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logrus.New()
			log.SetOutput(io.Discard)

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			pool, err := database.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()
			if err := database.EnsureSchema(ctx, pool); err != nil {
				return err
			}
			repo := repository.New(pool)

			// Text tiles only, so no blob store or cleanup queue is needed.
			svc := admission.New(repo, nil, nil, cfg, log)
			for _, text := range welcomeTiles {
				c, err := svc.Submit(ctx, admission.Request{Kind: model.KindText, Content: text})
				if err != nil {
					return fmt.Errorf("seed tile: %w", err)
				}
				fmt.Printf("seeded %s at (%d, %d)\n", c.PublicCode, c.X, c.Y)
			}
			return nil
		},
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}
