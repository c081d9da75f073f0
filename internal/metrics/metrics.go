// Package metrics publishes per-check counters.
package metrics

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"ExtremaSentinel/internal/logger"
)

// CheckMetrics are the counters produced by one check.
type CheckMetrics struct {
	Symbol           string
	Checks           int
	Alerts           int
	SourceFailures   int
	DeliveryFailures int
}

// Publisher ships CheckMetrics somewhere.
type Publisher interface {
	Publish(ctx context.Context, m CheckMetrics) error
}

// NoopPublisher discards metrics.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, CheckMetrics) error { return nil }

type putMetricDataAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchPublisher sends counters with PutMetricData, one datum per
// counter, dimensioned by symbol.
type CloudWatchPublisher struct {
	client    putMetricDataAPI
	namespace string
}

// NewCloudWatchPublisher loads the default AWS configuration for region.
func NewCloudWatchPublisher(ctx context.Context, region, namespace string) (*CloudWatchPublisher, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if namespace == "" {
		namespace = "ExtremaSentinel"
	}
	logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{
		"region":    cfg.Region,
		"namespace": namespace,
	}).Info("initialized CloudWatch client")
	return &CloudWatchPublisher{client: cloudwatch.NewFromConfig(cfg), namespace: namespace}, nil
}

func (p *CloudWatchPublisher) Publish(ctx context.Context, m CheckMetrics) error {
	data := datums(m)
	if _, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	}); err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	logger.GetLogger().WithComponent("cloudwatch").WithField("count", len(data)).Debug("published metrics to CloudWatch")
	return nil
}

func datums(m CheckMetrics) []cwtypes.MetricDatum {
	dims := []cwtypes.Dimension{{Name: aws.String("symbol"), Value: aws.String(m.Symbol)}}
	counters := []struct {
		name  string
		value int
	}{
		{"Checks", m.Checks},
		{"Alerts", m.Alerts},
		{"SourceFailures", m.SourceFailures},
		{"DeliveryFailures", m.DeliveryFailures},
	}
	data := make([]cwtypes.MetricDatum, 0, len(counters))
	for _, c := range counters {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(c.name),
			Dimensions: dims,
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(c.value)),
		})
	}
	return data
}
