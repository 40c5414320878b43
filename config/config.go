// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/gorse-io/itemcf/dataset"
	"github.com/gorse-io/itemcf/model"
	"github.com/gorse-io/itemcf/model/knn"
	"github.com/gorse-io/itemcf/model/mf"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

// Config is the configuration of an offline evaluation run.
type Config struct {
	Dataset  DatasetConfig  `mapstructure:"dataset"`
	Split    SplitConfig    `mapstructure:"split"`
	KNN      KNNConfig      `mapstructure:"knn"`
	ALS      ALSConfig      `mapstructure:"als"`
	Evaluate EvaluateConfig `mapstructure:"evaluate"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// DatasetConfig describes where ratings come from. Source is either a path to a
// CSV file or a database URL (mysql://, postgres://, sqlite://, mongodb://).
type DatasetConfig struct {
	Source    string  `mapstructure:"source" validate:"required"`
	Table     string  `mapstructure:"table" validate:"required"`
	Header    bool    `mapstructure:"header"`
	Separator string  `mapstructure:"separator" validate:"len=1"`
	MinRating float64 `mapstructure:"min_rating"`
	MaxRating float64 `mapstructure:"max_rating" validate:"gtefield=MinRating"`
}

func (c *DatasetConfig) CSVOptions() dataset.CSVOptions {
	return dataset.CSVOptions{
		Header:    c.Header,
		Separator: []rune(c.Separator)[0],
		MinRating: c.MinRating,
		MaxRating: c.MaxRating,
	}
}

type SplitConfig struct {
	TestRatio float64 `mapstructure:"test_ratio" validate:"gt=0,lt=1"`
	Seed      int64   `mapstructure:"seed"`
}

type KNNConfig struct {
	Neighbors int `mapstructure:"neighbors" validate:"gte=1"`
	Jobs      int `mapstructure:"jobs" validate:"gte=1"`
}

func (c *KNNConfig) GetConfig() *knn.Config {
	return knn.NewConfig().
		SetNeighbors(c.Neighbors).
		SetJobs(c.Jobs)
}

type ALSConfig struct {
	Enable      bool    `mapstructure:"enable"`
	NFactors    int     `mapstructure:"n_factors" validate:"gte=1"`
	NEpochs     int     `mapstructure:"n_epochs" validate:"gte=0"`
	Reg         float64 `mapstructure:"reg" validate:"gt=0"`
	InitMean    float64 `mapstructure:"init_mean"`
	InitStdDev  float64 `mapstructure:"init_std" validate:"gte=0"`
	RandomState int64   `mapstructure:"random_state"`
	Jobs        int     `mapstructure:"jobs" validate:"gte=1"`
	Verbose     int     `mapstructure:"verbose" validate:"gte=0"`
}

func (c *ALSConfig) GetParams() model.Params {
	return model.Params{
		model.NFactors:    c.NFactors,
		model.NEpochs:     c.NEpochs,
		model.Reg:         c.Reg,
		model.InitMean:    c.InitMean,
		model.InitStdDev:  c.InitStdDev,
		model.RandomState: c.RandomState,
	}
}

func (c *ALSConfig) GetFitConfig() *mf.FitConfig {
	return mf.NewFitConfig().
		SetJobs(c.Jobs).
		SetVerbose(c.Verbose)
}

type EvaluateConfig struct {
	ColdStart     string  `mapstructure:"cold_start" validate:"oneof=exclude default"`
	DefaultRating float64 `mapstructure:"default_rating"`
}

func (c *EvaluateConfig) GetColdStart() model.ColdStart {
	return model.ColdStart{
		Policy:        model.ColdStartPolicy(c.ColdStart),
		DefaultRating: c.DefaultRating,
	}
}

type MetricsConfig struct {
	PushGateway string `mapstructure:"push_gateway" validate:"omitempty,url"`
	Job         string `mapstructure:"job" validate:"required"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Table:     "ratings",
			Header:    true,
			Separator: ",",
			MinRating: 0,
			MaxRating: 5,
		},
		Split: SplitConfig{
			TestRatio: 0.2,
			Seed:      0,
		},
		KNN: KNNConfig{
			Neighbors: 20,
			Jobs:      1,
		},
		ALS: ALSConfig{
			Enable:      true,
			NFactors:    10,
			NEpochs:     10,
			Reg:         0.1,
			InitMean:    0,
			InitStdDev:  0.1,
			RandomState: 0,
			Jobs:        1,
			Verbose:     1,
		},
		Evaluate: EvaluateConfig{
			ColdStart:     string(model.ColdStartExclude),
			DefaultRating: 0,
		},
		Metrics: MetricsConfig{
			Job: "gorse_cf",
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [dataset]
	v.SetDefault("dataset.source", defaultConfig.Dataset.Source)
	v.SetDefault("dataset.table", defaultConfig.Dataset.Table)
	v.SetDefault("dataset.header", defaultConfig.Dataset.Header)
	v.SetDefault("dataset.separator", defaultConfig.Dataset.Separator)
	v.SetDefault("dataset.min_rating", defaultConfig.Dataset.MinRating)
	v.SetDefault("dataset.max_rating", defaultConfig.Dataset.MaxRating)
	// [split]
	v.SetDefault("split.test_ratio", defaultConfig.Split.TestRatio)
	v.SetDefault("split.seed", defaultConfig.Split.Seed)
	// [knn]
	v.SetDefault("knn.neighbors", defaultConfig.KNN.Neighbors)
	v.SetDefault("knn.jobs", defaultConfig.KNN.Jobs)
	// [als]
	v.SetDefault("als.enable", defaultConfig.ALS.Enable)
	v.SetDefault("als.n_factors", defaultConfig.ALS.NFactors)
	v.SetDefault("als.n_epochs", defaultConfig.ALS.NEpochs)
	v.SetDefault("als.reg", defaultConfig.ALS.Reg)
	v.SetDefault("als.init_mean", defaultConfig.ALS.InitMean)
	v.SetDefault("als.init_std", defaultConfig.ALS.InitStdDev)
	v.SetDefault("als.random_state", defaultConfig.ALS.RandomState)
	v.SetDefault("als.jobs", defaultConfig.ALS.Jobs)
	v.SetDefault("als.verbose", defaultConfig.ALS.Verbose)
	// [evaluate]
	v.SetDefault("evaluate.cold_start", defaultConfig.Evaluate.ColdStart)
	v.SetDefault("evaluate.default_rating", defaultConfig.Evaluate.DefaultRating)
	// [metrics]
	v.SetDefault("metrics.push_gateway", defaultConfig.Metrics.PushGateway)
	v.SetDefault("metrics.job", defaultConfig.Metrics.Job)
}

// LoadConfig loads configuration from a TOML file. Every key can be overridden by an
// environment variable such as GORSE_CF_DATASET_SOURCE for dataset.source. An empty
// path loads defaults and environment variables only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	v.SetEnvPrefix("GORSE_CF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate checks every field and reports the first violation in plain English.
func (config *Config) Validate() error {
	validate := validator.New()
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return errors.Trace(err)
	}
	err := validate.Struct(config)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			for _, e := range validationErrors {
				return errors.NotValidf("%s: %s", e.Namespace(), e.Translate(trans))
			}
		}
		return errors.Trace(err)
	}
	return nil
}
