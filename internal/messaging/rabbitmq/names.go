package rabbitmq

// Wire-exact broker names. The sweeper and workers standardize on
// notify.email/notify.push for main routing and email/push for DLX
// routing.
const (
	ExchangeMain = "notifications.direct"
	ExchangeDLX  = "notifications.dlx"

	QueueIngress  = "notifications"
	QueueEmail    = "email.queue"
	QueuePush     = "push.queue"
	QueueFailed   = "failed.queue"
	QueueEmailDLQ = "email.dlq"
	QueuePushDLQ  = "push.dlq"

	RouteEmail = "notify.email"
	RoutePush  = "notify.push"

	DLXRouteEmail = "email"
	DLXRoutePush  = "push"

	FailedQueueTTLMillis = 86400000 // 24h
	FailedQueueMaxLength = 10000
)

const (
	HeaderRetryCount       = "x-retry-count"
	HeaderLastError        = "x-last-error"
	HeaderFailedTime       = "x-failed-time"
	HeaderFinalFailureTime = "x-final-failure-time"
)
