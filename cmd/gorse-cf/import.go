// Copyright 2022 gorse Project Authors
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

package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/gorse-io/itemcf/base/log"
	"github.com/gorse-io/itemcf/dataset"
	"github.com/gorse-io/itemcf/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const importBatchSize = 1000

var importCommand = &cobra.Command{
	Use:   "import <csv file>",
	Short: "Import ratings from a CSV file into the configured rating source.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig(cmd)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		opts := conf.Dataset.CSVOptions()
		ratings, err := dataset.LoadCSVFile(args[0], opts)
		if err != nil {
			log.Logger().Fatal("failed to load ratings", zap.String("path", args[0]), zap.Error(err))
		}
		source, err := storage.Open(conf.Dataset.Source, conf.Dataset.Table, opts)
		if err != nil {
			log.Logger().Fatal("failed to open rating source", zap.Error(err))
		}
		defer source.Close()
		if err = importRatings(ctx, source, ratings); err != nil {
			log.Logger().Fatal("failed to import ratings", zap.Error(err))
		}
		log.Logger().Info("import ratings complete",
			zap.String("source", log.RedactDBURL(conf.Dataset.Source)),
			zap.Int("n_ratings", len(ratings)))
	},
}

func importRatings(ctx context.Context, source storage.Source, ratings []dataset.Rating) error {
	if err := source.Init(ctx); err != nil {
		return errors.Trace(err)
	}
	bar := progressbar.Default(int64(len(ratings)), "import")
	defer bar.Close()
	for _, batch := range lo.Chunk(ratings, importBatchSize) {
		if err := source.Insert(ctx, batch); err != nil {
			return errors.Trace(err)
		}
		_ = bar.Add(len(batch))
	}
	return nil
}
