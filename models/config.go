// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package models

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/strataml/strata/layers"
)

// Config describes a Transformer language model.
type Config struct {
	// VocabSize is the vocabulary size.
	VocabSize int `json:"vocab_size"`
	// DModel is the embedding and residual-stream dimension.
	DModel int `json:"d_model"`
	// DFF is the hidden dimension of the feed-forward blocks.
	DFF int `json:"d_ff"`
	// NLayers is the number of decoder blocks.
	NLayers int `json:"n_layers"`
	// NHeads is the number of attention heads.
	NHeads int `json:"n_heads"`
	// MaxLen is the maximum supported sequence length.
	MaxLen int `json:"max_len"`
	// Dropout is the dropout rate applied in Train mode.
	Dropout float64 `json:"dropout"`
	// Mode selects full-sequence (train/eval) or incremental (predict)
	// execution.
	Mode layers.Mode `json:"mode"`
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxLen == 0 {
		out.MaxLen = 2048
	}
	if out.Mode == "" {
		out.Mode = layers.Train
	}
	return out
}

// Validate reports the first structural problem with the config.
func (c *Config) Validate() error {
	switch {
	case c.VocabSize <= 0:
		return fmt.Errorf("vocab_size must be positive, got %d", c.VocabSize)
	case c.DModel <= 0:
		return fmt.Errorf("d_model must be positive, got %d", c.DModel)
	case c.DFF <= 0:
		return fmt.Errorf("d_ff must be positive, got %d", c.DFF)
	case c.NLayers <= 0:
		return fmt.Errorf("n_layers must be positive, got %d", c.NLayers)
	case c.NHeads <= 0:
		return fmt.Errorf("n_heads must be positive, got %d", c.NHeads)
	case c.DModel%c.NHeads != 0:
		return fmt.Errorf("d_model %d is not divisible by n_heads %d", c.DModel, c.NHeads)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("dropout must be in [0, 1), got %f", c.Dropout)
	}
	return nil
}

// LoadConfig reads a model configuration from a JSON file.
func LoadConfig(filePath string) (Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return Config{}, fmt.Errorf("failed to decode model config %q: %w", filePath, err)
	}
	return config, nil
}
