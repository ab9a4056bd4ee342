package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/spf13/cobra"

	"xmbl-ledger/core"
	"xmbl-ledger/pkg/config"
	"xmbl-ledger/pkg/utils"
)

func main() {
	rootCmd := &cobra.Command{Use: "xmbl"}
	rootCmd.AddCommand(nodeCmd())
	rootCmd.AddCommand(txCmd())
	rootCmd.AddCommand(ledgerCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadRuntimeConfig(configDir string) config.Config {
	cfg, err := config.LoadFromEnv(configDir)
	if err != nil {
		fmt.Printf("warning: using defaults (%v)\n", err)
		d := config.Defaults()
		return d
	}
	return *cfg
}

func newRuntime(cfg config.Config) *core.Runtime {
	capacity := cfg.Storage.Capacity
	if capacity == 0 {
		capacity = utils.EnvOrDefaultUint64("XMBL_STORAGE_CAPACITY", 1<<30)
	}
	// XMBL_RAW_TTL / XMBL_PROCESSING_TTL override the config-file TTLs,
	// accepting either a duration string ("45s") or bare milliseconds.
	rawTTL := utils.EnvOrDefaultDuration("XMBL_RAW_TTL",
		time.Duration(cfg.Consensus.RawTTLMillis)*time.Millisecond)
	processingTTL := utils.EnvOrDefaultDuration("XMBL_PROCESSING_TTL",
		time.Duration(cfg.Consensus.ProcessingTTLMillis)*time.Millisecond)
	return core.NewRuntime(core.RuntimeConfig{
		RequiredValidations: cfg.Consensus.RequiredValidations,
		RawTTL:              rawTTL,
		ProcessingTTL:       processingTTL,
		StorageNodeCount:    utils.EnvOrDefaultInt("XMBL_STORAGE_NODES", 1),
		StorageCapacity:     capacity,
		ShardK:              int(cfg.StateMachine.TotalShards),
		ShardM:              1,
	}, nil, nil, nil, nil)
}

func nodeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "node"}
	start := &cobra.Command{
		Use:   "start [configDir]",
		Short: "start an XMBL node with the in-process defaults",
		Run: func(cmd *cobra.Command, args []string) {
			configDir := "."
			if len(args) > 0 {
				configDir = args[0]
			}
			cfg := loadRuntimeConfig(configDir)
			rt := newRuntime(cfg)
			fmt.Printf("xmbl node started: leaders=%v port=%d\n", rt.Leaders(), cfg.Network.Port)
			select {}
		},
	}
	cmd.AddCommand(start)
	return cmd
}

func txCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tx"}
	submit := &cobra.Command{
		Use:   "submit",
		Short: "sign and submit a utxo transaction",
		Run: func(cmd *cobra.Command, args []string) {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			amt, _ := cmd.Flags().GetInt64("amt")

			cfg := config.Defaults()
			rt := newRuntime(cfg)

			sigs := core.NewECDSAProvider()
			pubKey, secKey, err := sigs.Keygen()
			if err != nil {
				fmt.Printf("keygen error: %v\n", err)
				os.Exit(1)
			}
			fromAddr := from
			if fromAddr == "" {
				fromAddr = sigs.DeriveAddress(pubKey)
			}

			tx := &core.Transaction{
				Type:      core.TxUTXO,
				From:      fromAddr,
				To:        to,
				Amount:    big.NewInt(amt),
				Fee:       big.NewInt(0),
				Stake:     big.NewInt(0),
				Timestamp: time.Now().UnixMilli(),
				Outputs:   []core.Output{{Address: to, Amount: big.NewInt(amt)}},
			}
			ctx := context.Background()
			if err := tx.Sign(ctx, sigs, pubKey, secKey); err != nil {
				fmt.Printf("sign error: %v\n", err)
				os.Exit(1)
			}

			rawTxID, err := rt.SubmitTransaction(ctx, tx)
			if err != nil {
				fmt.Printf("submit error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("submitted rawTxId=%s\n", rawTxID.Hex())
		},
	}
	submit.Flags().String("from", "", "from address (derived from a freshly generated key if omitted)")
	submit.Flags().String("to", "", "to address")
	submit.Flags().Int64("amt", 0, "amount, minor units")
	cmd.AddCommand(submit)
	return cmd
}

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "ledger"}
	status := &cobra.Command{
		Use:   "status",
		Short: "print the current state root and completed cube count",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Defaults()
			rt := newRuntime(cfg)
			fmt.Printf("stateRoot=%s completedCubes=%d\n", rt.State.Root().Hex(), len(rt.Ledger.GetCubes()))
		},
	}
	cmd.AddCommand(status)
	return cmd
}
