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
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"

	"github.com/gorse-io/itemcf/base/log"
	"github.com/gorse-io/itemcf/cmd/version"
	"github.com/gorse-io/itemcf/config"
	"github.com/gorse-io/itemcf/engine"
	"github.com/gorse-io/itemcf/model"
	"github.com/gorse-io/itemcf/model/knn"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "gorse-cf",
	Short: "Offline evaluation of item-based collaborative filtering against ALS.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
	},
	Run: func(cmd *cobra.Command, args []string) {
		// Show version
		if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
			fmt.Println(version.BuildInfo())
			return
		}

		conf := loadConfig(cmd)
		if pushGateway, _ := cmd.Flags().GetString("push-gateway"); pushGateway != "" {
			conf.Metrics.PushGateway = pushGateway
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		offline := engine.NewOffline(conf)
		offline.Progress, _ = cmd.Flags().GetBool("progress")
		report, err := offline.Run(ctx)
		if err != nil {
			log.Logger().Fatal("failed to evaluate", zap.Error(err))
		}
		printReport(report)

		if output, _ := cmd.Flags().GetString("output"); output != "" {
			if err = writeReport(report, output); err != nil {
				log.Logger().Fatal("failed to write predictions", zap.String("output", output), zap.Error(err))
			}
		}
		if conf.Metrics.PushGateway != "" {
			if err = engine.PushMetrics(conf.Metrics.PushGateway, conf.Metrics.Job); err != nil {
				log.Logger().Error("failed to push metrics", zap.String("push_gateway", conf.Metrics.PushGateway), zap.Error(err))
			}
		}
	},
}

var neighborsCommand = &cobra.Command{
	Use:   "neighbors <user> <item>",
	Short: "Show the neighbors used to predict the rating of an item by a user.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		userId, err := strconv.Atoi(args[0])
		if err != nil {
			log.Logger().Fatal("invalid user id", zap.String("user_id", args[0]))
		}
		itemId, err := strconv.Atoi(args[1])
		if err != nil {
			log.Logger().Fatal("invalid item id", zap.String("item_id", args[1]))
		}
		conf := loadConfig(cmd)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		data, err := engine.NewOffline(conf).Load(ctx)
		if err != nil {
			log.Logger().Fatal("failed to load dataset", zap.Error(err))
		}
		itemKNN, err := knn.Fit(ctx, data, conf.KNN.GetConfig())
		if err != nil {
			log.Logger().Fatal("failed to fit item knn", zap.Error(err))
		}
		if actual, ok := itemKNN.Matrix().Get(userId, itemId); ok {
			fmt.Printf("user %d rated item %d: %v\n", userId, itemId, actual)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Item", "Similarity", "Rating")
		for _, neighbor := range itemKNN.Neighbors(userId, itemId) {
			_ = table.Append([]string{
				strconv.Itoa(neighbor.ItemId),
				formatFloat(neighbor.Similarity),
				formatFloat(neighbor.Rating),
			})
		}
		_ = table.Render()
		if predicted, ok := itemKNN.Predict(userId, itemId); ok {
			fmt.Printf("predicted rating: %v\n", predicted)
		} else {
			fmt.Println("predicted rating: not available (empty neighborhood)")
		}
	},
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.Flags().BoolP("version", "v", false, "gorse-cf version")
	rootCommand.Flags().StringP("output", "o", "", "write predictions of held-out ratings to a CSV file")
	rootCommand.Flags().Bool("progress", false, "show progress bars")
	rootCommand.Flags().String("push-gateway", "", "push metrics to a Prometheus Pushgateway")
	rootCommand.AddCommand(neighborsCommand, importCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}

func loadConfig(cmd *cobra.Command) *config.Config {
	// without a config file, defaults and GORSE_CF_* environment variables are used
	configPath, _ := cmd.Flags().GetString("config")
	log.Logger().Info("load config", zap.String("config", configPath))
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		log.Logger().Fatal("failed to load config", zap.Error(err))
	}
	return conf
}

func printReport(report *engine.Report) {
	fmt.Printf("ratings: %d (train %d, test %d, cold start %d)\n",
		report.Summary.Count, report.TrainSize, report.TestSize, report.ColdStart)
	fmt.Printf("users: %d, items: %d, density: %.4f\n",
		report.Summary.Users, report.Summary.Items, report.Summary.Density)
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Predictor", "RMSE", "MAE", "R2", "Ratings", "Fallbacks")
	scores := []lo.Tuple2[string, *model.Score]{lo.T2(engine.PredictorKNN, &report.KNN)}
	if report.ALS != nil {
		scores = append(scores, lo.T2(engine.PredictorALS, report.ALS))
	}
	for _, s := range scores {
		_ = table.Append([]string{
			s.A,
			formatFloat(s.B.RMSE),
			formatFloat(s.B.MAE),
			formatFloat(s.B.R2),
			strconv.Itoa(s.B.Count),
			strconv.Itoa(s.B.Fallbacks),
		})
	}
	_ = table.Render()
}

func writeReport(report *engine.Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer f.Close()
	return report.WriteCSV(f)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', 5, 64)
}
