package aws

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Datum is one metric observation.
type Datum struct {
	Name       string
	Value      float64
	Unit       cwtypes.StandardUnit
	Dimensions map[string]string
	Timestamp  time.Time
}

// MetricsEmitter publishes metric data to a CloudWatch namespace.
type MetricsEmitter struct {
	client    CloudWatchAPI
	namespace string
}

func NewMetricsEmitter(client CloudWatchAPI, namespace string) *MetricsEmitter {
	return &MetricsEmitter{client: client, namespace: namespace}
}

// maxDatumsPerCall is the PutMetricData batch limit.
const maxDatumsPerCall = 1000

// Emit sends data in batches. An empty slice is a no-op.
func (m *MetricsEmitter) Emit(ctx context.Context, data []Datum) error {
	for start := 0; start < len(data); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(data))

		batch := make([]cwtypes.MetricDatum, 0, end-start)
		for _, d := range data[start:end] {
			md := cwtypes.MetricDatum{
				MetricName: sdkaws.String(d.Name),
				Value:      sdkaws.Float64(d.Value),
				Unit:       d.Unit,
			}
			if !d.Timestamp.IsZero() {
				md.Timestamp = sdkaws.Time(d.Timestamp)
			}
			for k, v := range d.Dimensions {
				md.Dimensions = append(md.Dimensions, cwtypes.Dimension{
					Name:  sdkaws.String(k),
					Value: sdkaws.String(v),
				})
			}
			batch = append(batch, md)
		}

		_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  sdkaws.String(m.namespace),
			MetricData: batch,
		})
		if err != nil {
			return fmt.Errorf("put metric data: %w", err)
		}
	}
	return nil
}
