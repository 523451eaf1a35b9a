package main

import (
	"encoding/json"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"synnergy-network/bandsim/core"
	"synnergy-network/bandsim/pkg/config"
	"synnergy-network/bandsim/pkg/utils"
)

func main() {
	rootCmd := &cobra.Command{Use: "bandsim"}
	rootCmd.AddCommand(runCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [config.yaml]",
		Short: "run a bandwidth scheduling scenario and print its stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if len(args) > 0 {
				loaded, err := config.Load(args[0])
				if err != nil {
					return err
				}
				cfg = *loaded
			}

			cfg.RandomSeed = utils.EnvOrDefaultUint64("BANDSIM_SEED", cfg.RandomSeed)
			cfg.Heights = utils.EnvOrDefaultInt("BANDSIM_HEIGHTS", cfg.Heights)

			sim := buildSimulation(cfg)
			run := sim.RunFor(cfg.Heights)
			stats := core.NewTestStats(run)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
	return cmd
}

func buildSimulation(cfg config.ScenarioConfig) *core.Simulation {
	builder := core.NewSimulationBuilder(cfg.NumShards).
		RandomSeed(cfg.RandomSeed).
		MissingBlockProbability(cfg.MissingBlockProbability)

	if cfg.MissingChunkProbability > 0 {
		p := cfg.MissingChunkProbability
		builder = builder.MissingChunkGenerator(func(_ uint64, _ core.ShardID, rng *rand.Rand) bool {
			return rng.Float64() < p
		})
	}

	builder = builder.DefaultSenderFactory(senderFactory(cfg))

	return builder.Build()
}

func senderFactory(cfg config.ScenarioConfig) core.ReceiptSenderFactory {
	switch cfg.SenderMix {
	case config.SenderMixNone:
		return func(*rand.Rand) core.ReceiptSender { return core.NoReceiptSender{} }
	case config.SenderMixOneSize:
		size := cfg.OneSizeReceiptBytes
		if size <= 0 {
			size = core.MinReceiptSize
		}
		return func(*rand.Rand) core.ReceiptSender {
			return core.FullSpeedReceiptSender{Generator: core.OneSizeReceiptGenerator{Size: size}}
		}
	case config.SenderMixRandomSize:
		return func(*rand.Rand) core.ReceiptSender {
			return core.FullSpeedReceiptSender{
				Generator: core.RandomSizeReceiptGenerator{Min: core.MinReceiptSize, Max: core.MaxReceiptSize},
			}
		}
	case config.SenderMixTypical:
		fallthrough
	default:
		return func(*rand.Rand) core.ReceiptSender {
			return core.FullSpeedReceiptSender{Generator: core.NewTypicalReceiptGenerator()}
		}
	}
}
