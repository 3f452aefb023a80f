package types

// Telemetry metric names. All components MUST use these constants.
const (
	// Metric Names
	MetricDeliveryAttempt   = "DeliveryAttempt"
	MetricDeliverySuccess   = "DeliverySuccess"
	MetricDeliverySkipped   = "DeliverySkipped"
	MetricDeliveryFailed    = "DeliveryFailed"
	MetricTokenRefresh      = "TokenRefresh"
	MetricTokenRefreshError = "TokenRefreshError"
	MetricTickDuration      = "DeadlineTickDuration"
	MetricRequestsNotified  = "RequestsNotified"

	// Dimension Keys
	DimChannel = "Channel"
	DimTrigger = "Trigger"

	// Channel and trigger values
	ChannelZalo   = "zalo"
	TriggerAuto   = "auto"
	TriggerManual = "manual"

	// Metric Namespace
	MetricNamespace = "ReportNotify"
)
