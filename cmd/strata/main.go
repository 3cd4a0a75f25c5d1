// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/strataml/strata"
	"github.com/strataml/strata/decoder"
	"github.com/strataml/strata/history"
	"github.com/strataml/strata/layers"
	"github.com/strataml/strata/models"
	"github.com/strataml/strata/shapes"
	"github.com/urfave/cli/v2"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)

	app := &cli.App{
		Name:  "strata",
		Usage: "Operate a Transformer language model built on the strata layer framework",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "set log level (trace, debug, info, warn, error, fatal, panic)",
				Action: func(c *cli.Context, s string) error {
					return setLogLevel(s)
				},
				Value:   "info",
				EnvVars: []string{"STRATA_LOGLEVEL"},
			},
			&cli.StringFlag{
				Name:     "config",
				Usage:    "path of the model configuration (JSON)",
				Required: true,
			},
			&cli.Uint64Flag{
				Name:  "seed",
				Usage: "seed for weight initialization",
				Value: 0,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "Generate a token continuation of a prompt",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "prompt",
						Usage:    "comma-separated prompt token ids",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "decoding-config",
						Usage: "path of the decoding options (YAML)",
					},
					&cli.Uint64Flag{
						Name:  "sample-seed",
						Usage: "seed for sampling",
						Value: 0,
					},
					&cli.StringFlag{
						Name:  "history-db",
						Usage: "path of the SQLite generation-history database",
					},
				},
				Action: func(c *cli.Context) error {
					if err := generate(c); err != nil {
						log.Fatal().Err(err).Send()
					}
					return nil
				},
			},
			{
				Name:  "describe",
				Usage: "Print the model's layer tree and output shape",
				Action: func(c *cli.Context) error {
					if err := describe(c); err != nil {
						log.Fatal().Err(err).Send()
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func setLogLevel(level string) error {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	log.Logger = log.Level(parsed)
	return nil
}

func generate(c *cli.Context) error {
	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	prompt, err := parsePrompt(c.String("prompt"))
	if err != nil {
		return err
	}
	opts := decoder.DefaultDecodingOptions()
	if path := c.String("decoding-config"); path != "" {
		opts, err = decoder.LoadDecodingOptions(path)
		if err != nil {
			return err
		}
	}

	lm, err := strata.NewLM(cfg, c.Uint64("seed"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	steps := make(chan decoder.StepResult)
	go func() {
		for step := range steps {
			fmt.Printf("%d ", step.TokenID)
		}
		fmt.Println()
	}()

	start := time.Now()
	result, err := lm.Generate(ctx, prompt, opts, c.Uint64("sample-seed"), steps)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	log.Info().
		Int("tokens", len(result.Sequence)).
		Float64("score", result.Score).
		Dur("elapsed", elapsed).
		Msg("generation complete")

	if path := c.String("history-db"); path != "" {
		return record(path, c.Uint64("sample-seed"), prompt, result, elapsed)
	}
	return nil
}

func record(path string, seed uint64, prompt []int, result *decoder.Result, elapsed time.Duration) error {
	store, err := history.Open(path, log.Logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Record(&history.Run{
		CreatedAt: time.Now(),
		Seed:      seed,
		Prompt:    joinInts(prompt),
		Output:    joinInts(result.Sequence),
		Score:     result.Score,
		Elapsed:   elapsed,
	})
}

func describe(c *cli.Context) error {
	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	cfg.Mode = layers.Eval
	model, err := models.TransformerLM(cfg)
	if err != nil {
		return err
	}
	fmt.Print(layers.DebugString(model))

	sig := shapes.SignatureOf(shapes.New([]int{1, 8}, shapes.Int32))
	shape, err := layers.CheckShapeAgreement(model, sig)
	if err != nil {
		return err
	}
	fmt.Printf("output shape for [1, 8] tokens: %v\n", shape)
	return nil
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, " ")
}

func parsePrompt(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid prompt token %q: %w", p, err)
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty prompt")
	}
	return out, nil
}
