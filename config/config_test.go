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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorse-io/itemcf/model"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig("config.toml")
	require.NoError(t, err)

	// [dataset]
	assert.Equal(t, "ratings.csv", config.Dataset.Source)
	assert.Equal(t, "ratings", config.Dataset.Table)
	assert.True(t, config.Dataset.Header)
	assert.Equal(t, ",", config.Dataset.Separator)
	assert.Equal(t, 0.0, config.Dataset.MinRating)
	assert.Equal(t, 5.0, config.Dataset.MaxRating)
	// [split]
	assert.Equal(t, 0.2, config.Split.TestRatio)
	assert.Equal(t, int64(0), config.Split.Seed)
	// [knn]
	assert.Equal(t, 20, config.KNN.Neighbors)
	assert.Equal(t, 1, config.KNN.Jobs)
	// [als]
	assert.True(t, config.ALS.Enable)
	assert.Equal(t, 10, config.ALS.NFactors)
	assert.Equal(t, 10, config.ALS.NEpochs)
	assert.Equal(t, 0.1, config.ALS.Reg)
	assert.Equal(t, 0.0, config.ALS.InitMean)
	assert.Equal(t, 0.1, config.ALS.InitStdDev)
	assert.Equal(t, int64(0), config.ALS.RandomState)
	assert.Equal(t, 1, config.ALS.Jobs)
	assert.Equal(t, 1, config.ALS.Verbose)
	// [evaluate]
	assert.Equal(t, "exclude", config.Evaluate.ColdStart)
	assert.Equal(t, 0.0, config.Evaluate.DefaultRating)
	// [metrics]
	assert.Empty(t, config.Metrics.PushGateway)
	assert.Equal(t, "gorse_cf", config.Metrics.Job)

	// the template only restates defaults
	defaultConfig := GetDefaultConfig()
	defaultConfig.Dataset.Source = "ratings.csv"
	assert.Equal(t, defaultConfig, config)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("GORSE_CF_DATASET_SOURCE", "sqlite:///tmp/ratings.db")
	t.Setenv("GORSE_CF_KNN_NEIGHBORS", "5")
	t.Setenv("GORSE_CF_EVALUATE_COLD_START", "default")
	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite:///tmp/ratings.db", config.Dataset.Source)
	assert.Equal(t, 5, config.KNN.Neighbors)
	assert.Equal(t, model.ColdStart{Policy: model.ColdStartDefault}, config.Evaluate.GetColdStart())
}

func TestLoadConfig_Invalid(t *testing.T) {
	data, err := os.ReadFile("config.toml")
	require.NoError(t, err)
	for _, replace := range [][2]string{
		{"source = \"ratings.csv\"", "source = \"\""},
		{"neighbors = 20", "neighbors = 0"},
		{"test_ratio = 0.2", "test_ratio = 1.0"},
		{"max_rating = 5", "max_rating = -1"},
		{"cold_start = \"exclude\"", "cold_start = \"drop\""},
		{"reg = 0.1", "reg = 0"},
		{"separator = \",\"", "separator = \",;\""},
		{"push_gateway = \"\"", "push_gateway = \"not a url\""},
	} {
		text := strings.Replace(string(data), replace[0], replace[1], 1)
		assert.NotEqual(t, string(data), text)
		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte(text), 0644))
		_, err = LoadConfig(path)
		assert.True(t, errors.Is(err, errors.NotValid), replace[1])
	}

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestConfig_Convert(t *testing.T) {
	config := GetDefaultConfig()
	config.Dataset.Separator = "\t"
	opts := config.Dataset.CSVOptions()
	assert.Equal(t, '\t', opts.Separator)
	assert.True(t, opts.Header)
	assert.Equal(t, 5.0, opts.MaxRating)

	knnConfig := config.KNN.GetConfig()
	assert.Equal(t, 20, knnConfig.Neighbors)
	assert.Equal(t, 1, knnConfig.Jobs)

	params := config.ALS.GetParams()
	assert.Equal(t, 10, params.GetInt(model.NFactors, 0))
	assert.Equal(t, 0.1, params.GetFloat64(model.Reg, 0))
	assert.Equal(t, int64(0), params.GetInt64(model.RandomState, -1))
	fitConfig := config.ALS.GetFitConfig()
	assert.Equal(t, 1, fitConfig.Jobs)
	assert.Equal(t, 1, fitConfig.Verbose)
}
