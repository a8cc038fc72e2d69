// README: Canonical topic taxonomy; the single source of truth for every topic string.
package topics

import (
	"strings"

	"dishpatch/internal/types"
)

// Segments are joined by "/". The broker side maps them to "."-separated
// routing keys; see RoutingKey.
const sep = "/"

// Kind names the three order event categories carried on the global topics.
type Kind string

const (
	KindCreated         Kind = "created"
	KindStatusUpdated   Kind = "status_updated"
	KindCourierAssigned Kind = "courier_assigned"
)

// OrderEvents is the global kind-scoped topic, e.g. orders/events/created.
func OrderEvents(k Kind) string {
	return join("orders", "events", string(k))
}

// OrderStatus carries lightweight status pings for one order.
func OrderStatus(orderID types.ID) string {
	return join("orders", string(orderID), "status")
}

// RestaurantOrders carries new orders for a restaurant.
func RestaurantOrders(restaurantID types.ID) string {
	return join("restaurants", string(restaurantID), "orders")
}

// RestaurantOrderUpdates carries updates to a restaurant's existing orders.
func RestaurantOrderUpdates(restaurantID types.ID) string {
	return join("restaurants", string(restaurantID), "orders", "updated")
}

// UserOrderStatus carries status updates for one customer's order.
func UserOrderStatus(userID, orderID types.ID) string {
	return join("users", string(userID), "orders", string(orderID), "status")
}

// CourierAssignments carries new assignments for a courier.
func CourierAssignments(courierID types.ID) string {
	return join("couriers", string(courierID), "assignments")
}

// Restaurant is the umbrella prefix matching all of a restaurant's sub-topics.
func Restaurant(restaurantID types.ID) string {
	return join("restaurants", string(restaurantID))
}

// User is the umbrella prefix for all of a user's sub-topics.
func User(userID types.ID) string {
	return join("users", string(userID))
}

// Match reports whether a subscription covers a concrete topic. A
// subscription matches exactly, or as a segment-aligned prefix: a
// session subscribed to restaurants/5 receives restaurants/5/orders but
// not restaurants/55/orders.
func Match(subscription, topic string) bool {
	if subscription == topic {
		return true
	}
	return strings.HasPrefix(topic, subscription+sep)
}

// RoutingKey maps a topic to an AMQP routing key ("/" segments become ".").
func RoutingKey(topic string) string {
	return strings.ReplaceAll(topic, sep, ".")
}

// BindingKey maps a subscription to an AMQP binding key; prefix
// subscriptions bind with a trailing "#" wildcard so the broker matches
// every sub-topic.
func BindingKey(subscription string) string {
	return RoutingKey(subscription) + ".#"
}

// FromRoutingKey is the inverse of RoutingKey, used when a broker
// delivery carries only the "."-separated key.
func FromRoutingKey(key string) string {
	return strings.ReplaceAll(key, ".", sep)
}

func join(segments ...string) string {
	return strings.Join(segments, sep)
}
