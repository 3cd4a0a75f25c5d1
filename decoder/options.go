// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultDecodingOptions are sensible generation defaults: greedy
// decoding, up to 64 tokens.
func DefaultDecodingOptions() DecodingOptions {
	return DecodingOptions{
		MaxLen:     64,
		MinLen:     1,
		EndTokenID: 0,
		Temp:       1,
		TopK:       0,
		TopP:       1,
	}
}

// LoadDecodingOptions reads decoding options from a YAML file.
func LoadDecodingOptions(filePath string) (DecodingOptions, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return DecodingOptions{}, err
	}
	opts := DefaultDecodingOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return DecodingOptions{}, fmt.Errorf("failed to decode decoding options %q: %w", filePath, err)
	}
	return opts, nil
}
