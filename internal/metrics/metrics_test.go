package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
)

type fakeCW struct {
	in  *cloudwatch.PutMetricDataInput
	err error
}

func (f *fakeCW) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.in = in
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func TestCloudWatchPublish(t *testing.T) {
	fake := &fakeCW{}
	p := &CloudWatchPublisher{client: fake, namespace: "Test"}
	err := p.Publish(context.Background(), CheckMetrics{Symbol: "PETRONET.NS", Checks: 1, Alerts: 2, DeliveryFailures: 1})
	if err != nil {
		t.Fatal(err)
	}
	if *fake.in.Namespace != "Test" {
		t.Errorf("namespace = %s", *fake.in.Namespace)
	}
	got := map[string]float64{}
	for _, d := range fake.in.MetricData {
		got[*d.MetricName] = *d.Value
		if len(d.Dimensions) != 1 || *d.Dimensions[0].Value != "PETRONET.NS" {
			t.Errorf("dimensions = %+v", d.Dimensions)
		}
	}
	want := map[string]float64{"Checks": 1, "Alerts": 2, "SourceFailures": 0, "DeliveryFailures": 1}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestCloudWatchPublishError(t *testing.T) {
	p := &CloudWatchPublisher{client: &fakeCW{err: errors.New("throttled")}, namespace: "Test"}
	if err := p.Publish(context.Background(), CheckMetrics{Symbol: "X"}); err == nil {
		t.Fatal("expected error")
	}
}
