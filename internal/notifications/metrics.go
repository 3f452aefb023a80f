package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"reportnotify/internal/types"
)

// Metrics records delivery, token refresh and scheduler tick outcomes.
// Implementations must not fail the caller; emission errors are logged.
type Metrics interface {
	RecordDelivery(ctx context.Context, trigger string, result types.DispatchResult)
	RecordTokenRefresh(ctx context.Context, err error)
	RecordTick(ctx context.Context, duration time.Duration, notified int)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordDelivery(context.Context, string, types.DispatchResult) {}
func (NoopMetrics) RecordTokenRefresh(context.Context, error) {}
func (NoopMetrics) RecordTick(context.Context, time.Duration, int) {}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ Metrics = (*CloudWatchMetrics)(nil)

// CloudWatchMetrics emits to AWS CloudWatch.
//
// Metrics emitted:
//   - DeliveryAttempt plus one of DeliverySuccess/DeliverySkipped/DeliveryFailed:
//     Dims {Channel, Trigger}
//   - TokenRefresh or TokenRefreshError: no dims
//   - DeadlineTickDuration (ms) and RequestsNotified: no dims
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing under namespace,
// or types.MetricNamespace when namespace is empty.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

func resultMetricName(result types.DispatchResult) string {
	switch result {
	case types.DispatchSent:
		return types.MetricDeliverySuccess
	case types.DispatchSkippedNoIdentifier:
		return types.MetricDeliverySkipped
	default:
		return types.MetricDeliveryFailed
	}
}

// RecordDelivery emits DeliveryAttempt and the per-result counter.
func (m *CloudWatchMetrics) RecordDelivery(ctx context.Context, trigger string, result types.DispatchResult) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimChannel), Value: aws.String(types.ChannelZalo)},
		{Name: aws.String(types.DimTrigger), Value: aws.String(trigger)},
	}
	m.put(ctx, "delivery",
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricDeliveryAttempt),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(resultMetricName(result)),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
	)
}

// RecordTokenRefresh emits TokenRefresh on success, TokenRefreshError otherwise.
func (m *CloudWatchMetrics) RecordTokenRefresh(ctx context.Context, err error) {
	name := types.MetricTokenRefresh
	if err != nil {
		name = types.MetricTokenRefreshError
	}
	m.put(ctx, "token_refresh", cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
	})
}

// RecordTick emits the tick duration in milliseconds and the number of
// requests notified during the tick.
func (m *CloudWatchMetrics) RecordTick(ctx context.Context, duration time.Duration, notified int) {
	m.put(ctx, "tick",
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricTickDuration),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricRequestsNotified),
			Value:      aws.Float64(float64(notified)),
			Unit:       cwtypes.StandardUnitCount,
		},
	)
}

func (m *CloudWatchMetrics) put(ctx context.Context, kind string, data ...cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.WarnContext(ctx, "failed to emit metric",
			"kind", kind,
			"error", err,
		)
	}
}
