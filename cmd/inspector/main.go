package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/devlongs/mev-inspect/internal/config"
	"github.com/devlongs/mev-inspect/internal/output"
)

func main() {
	root := &cobra.Command{
		Use:          "inspector",
		Short:        "Detect DEX arbitrage in EVM transactions",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("rpc.url", "", "Ethereum RPC URL")
	root.PersistentFlags().Uint64("inspector.chain_id", 0, "chain id, 0 asks the node")
	root.PersistentFlags().StringSlice("inspector.protocols", nil, "enabled protocols (comma-separated)")
	root.PersistentFlags().Bool("inspector.only_profitable", false, "only report arbitrages in the native asset")
	root.PersistentFlags().String("storage.postgres_dsn", "", "Postgres DSN for pools and detections")
	root.PersistentFlags().String("logging.level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("logging.format", "console", "log format (console, json)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the chain and inspect new blocks",
		Args:  cobra.NoArgs,
		RunE:  runInspector,
	}
	runCmd.Flags().Uint64("inspector.start_block", 0, "first block to inspect, 0 means latest")
	runCmd.Flags().Int("inspector.batch_size", 100, "blocks per batch")
	runCmd.Flags().String("metrics.listen", "", "Prometheus listen address, empty disables")
	root.AddCommand(runCmd)

	blockCmd := &cobra.Command{
		Use:   "block <number>",
		Short: "Inspect a single block",
		Args:  cobra.ExactArgs(1),
		RunE:  runBlock,
	}
	root.AddCommand(blockCmd)

	txCmd := &cobra.Command{
		Use:   "tx <hash>",
		Short: "Inspect a single transaction",
		Args:  cobra.ExactArgs(1),
		RunE:  runTx,
	}
	root.AddCommand(txCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds an inspector bound to a context that
// ends on SIGINT or SIGTERM
func setup(cmd *cobra.Command) (context.Context, *Inspector, func(), error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, nil, err
	}
	output.Setup(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	inspector, err := NewInspector(ctx, cfg)
	if err != nil {
		stop()
		return nil, nil, nil, fmt.Errorf("create inspector: %w", err)
	}

	cleanup := func() {
		inspector.Close()
		stop()
	}
	return ctx, inspector, cleanup, nil
}

func runInspector(cmd *cobra.Command, _ []string) error {
	ctx, inspector, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	inspector.ServeMetrics(ctx)

	if err := inspector.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info().Msg("MEV Inspector stopped")
	return nil
}

func runBlock(cmd *cobra.Command, args []string) error {
	number, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid block number %q: %w", args[0], err)
	}

	ctx, inspector, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	arbs, err := inspector.processBlockRange(ctx, number, number)
	if err != nil {
		return err
	}
	log.Info().Uint64("block", number).Int("arbitrages", len(arbs)).Msg("Block inspected")
	return nil
}

func runTx(cmd *cobra.Command, args []string) error {
	txHash, err := parseTxHash(args[0])
	if err != nil {
		return err
	}

	ctx, inspector, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	arbs, err := inspector.ProcessTransaction(ctx, txHash)
	if err != nil {
		return err
	}
	log.Info().Str("txHash", txHash.Hex()).Int("arbitrages", len(arbs)).Msg("Transaction inspected")
	return nil
}

func parseTxHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid transaction hash %q", s)
	}
	return common.BytesToHash(b), nil
}
