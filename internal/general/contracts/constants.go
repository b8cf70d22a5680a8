package contracts

// Exchanges
const (
	ExchangeRideTopic      = "ride_topic"      // topic: ride lifecycle events
	ExchangeDispatchNotify = "dispatch_notify" // fanout: cross-instance notification relay
)

// Queues
const (
	QueueRideStatus           = "ride_status"
	QueueDispatchNotifyPrefix = "dispatch_notify." // {instance_id}, exclusive per instance
)

// Routing patterns
const (
	RouteRideStatusPrefix = "ride.status." // {status}
	RouteRideStatusAll    = "ride.status.*"
)
