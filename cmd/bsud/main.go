package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/outscale/bsud/pkg/cloudvolume"
	"github.com/outscale/bsud/pkg/config"
	"github.com/outscale/bsud/pkg/executil"
	"github.com/outscale/bsud/pkg/log"
	"github.com/outscale/bsud/pkg/ratelimit"
	"github.com/outscale/bsud/pkg/reconciler"
	"github.com/outscale/bsud/pkg/supervisor"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bsud",
	Short: "bsud - elastic block-storage daemon",
	Long: `bsud grows and shrinks a block-storage-backed filesystem on a cloud
VM by orchestrating cloud block volumes, LVM, and a resizable filesystem,
keeping used space within a configured range without operator intervention.`,
	Version: Version,
	RunE:    runDaemon,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"bsud version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("config", "c", "/etc/osc/bsud.json", "Path to the configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// preflight verifies the host carries the tools bsud shells out to, the
// same way a missing lvm2/btrfs-progs install would fail the original
// Rust daemon's very first command instead of failing confusingly deep
// inside a reconcile pass.
func preflight(ctx context.Context) error {
	if _, err := executil.RunStrict(ctx, "lvm", "fullreport", "--reportformat", "json"); err != nil {
		return fmt.Errorf("lvm2 tools unavailable: %w", err)
	}
	if _, err := executil.RunStrict(ctx, "btrfs", "filesystem", "show"); err != nil {
		return fmt.Errorf("btrfs-progs unavailable: %w", err)
	}
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := log.WithComponent("main")

	if err := preflight(ctx); err != nil {
		logger.Error().Err(err).Msg("preflight check failed")
		return err
	}

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error().Err(err).Str("path", configPath).Msg("failed to load configuration")
		return err
	}

	vm, err := config.DiscoverVM(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to discover VM identity from instance metadata")
		return err
	}
	logger.Info().Str("vm_id", vm.VMID).Str("region", vm.Region).Str("subregion", vm.Subregion).Msg("discovered VM identity")

	gate := ratelimit.New()
	cloud := cloudvolume.NewClient(cloudvolume.Config{
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Region:    vm.Region,
		Subregion: vm.Subregion,
		VMID:      vm.VMID,
	}, gate)

	sup := supervisor.New(*cfg, vm.VMID, cloud, reconciler.NewLVM(), reconciler.NewFS())
	logger.Info().Strs("drives", sup.DriveNames()).Msg("starting drive workers")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("signal received, shutting down")
		cancel()
	}()

	sup.Run(ctx)
	logger.Info().Msg("bsud stopped")
	return nil
}
