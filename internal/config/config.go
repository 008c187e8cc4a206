// Package config loads simulation settings from a YAML file and the
// environment, and expands them into ensemble plans.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/reptation/internal/chain"
	"github.com/talgya/reptation/internal/ensemble"
	"github.com/talgya/reptation/internal/lattice"
	"github.com/talgya/reptation/internal/sampler"
)

// Environment overrides.
const (
	EnvOutput   = "REPTATION_OUTPUT"
	EnvDatabase = "REPTATION_DB"
	EnvWorkers  = "REPTATION_WORKERS"
	EnvSeed     = "REPTATION_SEED"
)

// Config is the full simulation setup. Reptons and Epsilons are swept:
// one ensemble runs per (reptons, epsilon) pair.
type Config struct {
	Topology    string            `yaml:"topology"`
	LinkLength  float64           `yaml:"link_length"`
	Metric      string            `yaml:"metric"` // squared | legacy
	Rates       lattice.RateModel `yaml:"rates"`
	Reptons     []int             `yaml:"reptons"`
	Epsilons    []float64         `yaml:"epsilons"`
	Steps       int               `yaml:"steps"`
	Repeats     int               `yaml:"repeats"`
	Seed        int64             `yaml:"seed"` // 0 = draw a fresh seed at startup
	Workers     int               `yaml:"workers"`
	Init        string            `yaml:"init"` // freely-jointed | conditioned
	History     bool              `yaml:"history"`
	Observables []string          `yaml:"observables"`
	WallClock   time.Duration     `yaml:"wall_clock"`
	LogEvery    int               `yaml:"log_every"`
	Output      string            `yaml:"output"`
	Database    string            `yaml:"database"` // empty = no SQLite store
}

// Default returns a small square-lattice drift/diffusion sweep.
func Default() Config {
	return Config{
		Topology:    "square",
		LinkLength:  1.0,
		Metric:      "squared",
		Rates:       lattice.RateModel{Kind: lattice.RatesField},
		Reptons:     []int{5},
		Epsilons:    []float64{0.1},
		Steps:       100000,
		Repeats:     10,
		Seed:        42,
		Init:        "freely-jointed",
		Observables: []string{sampler.KindDriftVelocity, sampler.KindDiffusion},
		Output:      "data",
	}
}

// Load reads a YAML file over the defaults, then applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from REPTATION_* variables.
func (c *Config) ApplyEnv() {
	c.Output = envOrDefault(EnvOutput, c.Output)
	c.Database = envOrDefault(EnvDatabase, c.Database)
	c.Workers = envIntOrDefault(EnvWorkers, c.Workers)
	if v := os.Getenv(EnvSeed); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Seed = n
		}
	}
}

// Validate checks every field that can be checked without building a plan.
func (c Config) Validate() error {
	var errs []error
	if _, err := lattice.TopologyByName(c.Topology); err != nil {
		errs = append(errs, err)
	}
	if _, err := lattice.ParseMetric(c.Metric); err != nil {
		errs = append(errs, err)
	}
	if _, err := chain.ParseInitPolicy(c.Init); err != nil {
		errs = append(errs, err)
	}
	if c.LinkLength <= 0 {
		errs = append(errs, fmt.Errorf("link_length must be positive, got %v", c.LinkLength))
	}
	if len(c.Reptons) == 0 {
		errs = append(errs, fmt.Errorf("reptons must list at least one chain length"))
	}
	for _, n := range c.Reptons {
		if n < 1 {
			errs = append(errs, fmt.Errorf("reptons entries must be at least 1, got %d", n))
		}
	}
	if len(c.Epsilons) == 0 {
		errs = append(errs, fmt.Errorf("epsilons must list at least one field strength"))
	}
	if c.Steps < 1 {
		errs = append(errs, fmt.Errorf("steps must be at least 1, got %d", c.Steps))
	}
	if c.Repeats < 1 {
		errs = append(errs, fmt.Errorf("repeats must be at least 1, got %d", c.Repeats))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.Output == "" {
		errs = append(errs, fmt.Errorf("output directory is required"))
	}
	for _, name := range c.Observables {
		if _, err := sampler.Lookup(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Plans expands the sweep into one plan per (reptons, epsilon) pair. The
// rate model's field strength follows the swept epsilon, and each plan gets
// its own seed block so no two ensembles share run seeds.
func (c Config) Plans() ([]ensemble.Plan, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	topo, _ := lattice.TopologyByName(c.Topology)
	metric, _ := lattice.ParseMetric(c.Metric)
	policy, _ := chain.ParseInitPolicy(c.Init)

	plans := make([]ensemble.Plan, 0, len(c.Reptons)*len(c.Epsilons))
	for _, n := range c.Reptons {
		for _, eps := range c.Epsilons {
			rates := c.Rates
			rates.Epsilon = eps
			plans = append(plans, ensemble.Plan{
				Topology:    topo,
				LinkLength:  c.LinkLength,
				Metric:      metric,
				Rates:       rates,
				Reptons:     n,
				Epsilon:     eps,
				Steps:       c.Steps,
				Repeats:     c.Repeats,
				Seed:        c.Seed + int64(len(plans))*int64(c.Repeats),
				Init:        policy,
				UseHistory:  c.History,
				Observables: append([]string(nil), c.Observables...),
				WallClock:   c.WallClock,
				LogEvery:    c.LogEvery,
			})
		}
	}
	return plans, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
