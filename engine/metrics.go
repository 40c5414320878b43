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

package engine

import (
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	LabelStep      = "step"
	LabelSet       = "set"
	LabelPredictor = "predictor"
)

// Registry holds the metrics of offline runs.
var Registry = prometheus.NewRegistry()

var (
	OfflineStepSecondsVec = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gorse",
		Subsystem: "cf",
		Name:      "offline_step_seconds",
	}, []string{LabelStep})
	OfflineTotalSeconds = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "gorse",
		Subsystem: "cf",
		Name:      "offline_total_seconds",
	})
	RatingsTotalVec = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gorse",
		Subsystem: "cf",
		Name:      "ratings_total",
	}, []string{LabelSet})
	DegenerateSimilaritiesTotal = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "gorse",
		Subsystem: "cf",
		Name:      "degenerate_similarities_total",
	})
	FallbacksTotalVec = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gorse",
		Subsystem: "cf",
		Name:      "fallbacks_total",
	}, []string{LabelPredictor})
	RMSEVec = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gorse",
		Subsystem: "cf",
		Name:      "rmse",
	}, []string{LabelPredictor})
	MAEVec = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gorse",
		Subsystem: "cf",
		Name:      "mae",
	}, []string{LabelPredictor})
	R2Vec = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gorse",
		Subsystem: "cf",
		Name:      "r2",
	}, []string{LabelPredictor})
)

// PushMetrics pushes the metrics of offline runs to a Prometheus Pushgateway.
func PushMetrics(gateway, job string) error {
	return errors.Trace(push.New(gateway, job).Gatherer(Registry).Push())
}
