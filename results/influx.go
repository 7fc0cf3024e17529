package results

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"advbnn/logging"
)

// Measurement is the InfluxDB measurement written by the exporter.
const Measurement = "attack_results"

// InfluxConfig locates the target bucket.
type InfluxConfig struct {
	URL    string `mapstructure:"url" yaml:"url"`
	Token  string `mapstructure:"token" yaml:"token"`
	Org    string `mapstructure:"org" yaml:"org"`
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
}

type InfluxExporter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	bucket   string
	org      string
}

// NewInfluxExporter connects to InfluxDB and checks its health.
func NewInfluxExporter(ctx context.Context, cfg InfluxConfig) (*InfluxExporter, error) {
	logger := logging.GetLogger()

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		logger.WithField("url", cfg.URL).WithError(err).Error("Failed to connect to InfluxDB")
		return nil, err
	}
	if health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("influxdb health check at %s: status %s", cfg.URL, health.Status)
	}

	logger.WithFields(logrus.Fields{
		"url":    cfg.URL,
		"bucket": cfg.Bucket,
		"org":    cfg.Org,
	}).Info("Connected to InfluxDB")

	return &InfluxExporter{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
		org:      cfg.Org,
	}, nil
}

// Points converts a table into InfluxDB points tagged with the sweep coordinates and runID.
// Row i is stamped at ts + i ns so rows of identical series do not overwrite each other.
func Points(t *Table, runID string, ts time.Time) []*write.Point {
	points := make([]*write.Point, 0, len(t.Records))
	for i, r := range t.Records {
		points = append(points, influxdb2.NewPoint(Measurement,
			map[string]string{
				"run_id":        runID,
				"model":         r.Kind,
				"dataset":       r.Dataset,
				"hidden_size":   strconv.Itoa(r.Hidden),
				"activation":    r.Activation,
				"architecture":  r.Architecture,
				"attack_method": r.Method,
				"n_samples":     strconv.Itoa(r.NSamples),
			},
			map[string]interface{}{
				"epochs":      r.Epochs,
				"lr":          r.LR,
				"n_inputs":    r.Inputs,
				"seed":        r.Seed,
				"epsilon":     r.Epsilon,
				"input_idx":   r.InputIdx,
				"test_acc":    r.TestAcc,
				"adv_acc":     r.AdvAcc,
				"softmax_rob": r.SoftmaxRob,
			},
			ts.Add(time.Duration(i)),
		))
	}
	return points
}

// Export writes every record of t in batches.
func (e *InfluxExporter) Export(ctx context.Context, t *Table, runID string) error {
	const batchSize = 5000
	points := Points(t, runID, time.Now())
	for start := 0; start < len(points); start += batchSize {
		end := min(start+batchSize, len(points))
		if err := e.writeAPI.WritePoint(ctx, points[start:end]...); err != nil {
			return fmt.Errorf("failed to write data points: %w", err)
		}
	}
	logging.GetLogger().WithFields(logrus.Fields{
		"run_id": runID,
		"points": len(points),
		"bucket": e.bucket,
	}).Info("exported results")
	return nil
}

func (e *InfluxExporter) Close() {
	if e.client != nil {
		e.client.Close()
	}
}
