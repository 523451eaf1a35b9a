// Package config loads bandwidth simulation scenarios from YAML files.
//
// Version: v0.1.0
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"synnergy-network/bandsim/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// SenderMix names the distribution of receipt-size generators used by a
// scenario's default sender factory.
type SenderMix string

const (
	SenderMixTypical    SenderMix = "typical"
	SenderMixRandomSize SenderMix = "random_size"
	SenderMixOneSize    SenderMix = "one_size"
	SenderMixNone       SenderMix = "none"
)

// ScenarioConfig describes a simulation run: shard count, traffic shape, and
// the failure injection knobs exposed by SimulationBuilder.
type ScenarioConfig struct {
	NumShards               int       `yaml:"num_shards"`
	RandomSeed              uint64    `yaml:"random_seed"`
	Heights                 int       `yaml:"heights"`
	SenderMix               SenderMix `yaml:"sender_mix"`
	OneSizeReceiptBytes     int       `yaml:"one_size_receipt_bytes"`
	MissingBlockProbability float64   `yaml:"missing_block_probability"`
	MissingChunkProbability float64   `yaml:"missing_chunk_probability"`
}

// Default returns a ScenarioConfig matching the original implementation's
// "typical" test case: 6 shards, a small-biased receipt mix, and light
// failure injection.
func Default() ScenarioConfig {
	return ScenarioConfig{
		NumShards:               6,
		RandomSeed:              0,
		Heights:                 1000,
		SenderMix:               SenderMixTypical,
		MissingBlockProbability: 0.05,
		MissingChunkProbability: 0.05,
	}
}

// Load reads a scenario configuration from a YAML file at path, falling back
// to Default for any field the file leaves unset.
func Load(path string) (*ScenarioConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.Wrap(err, "read scenario config")
	}

	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal scenario config")
	}
	return &cfg, nil
}
