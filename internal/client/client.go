// README: Consumer-side SDK; REST with timeout+retry, query-shape cache, live event merge via the bridge.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"dishpatch/internal/bridge"
	"dishpatch/internal/events"
	"dishpatch/internal/modules/order"
	"dishpatch/internal/types"
)

// ErrTimeout surfaces after the single retry also misses the deadline.
var ErrTimeout = errors.New("request timed out")

// APIError is a structured non-2xx response from the order API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type Config struct {
	BaseURL     string
	BridgeURL   string
	CacheTTL    time.Duration
	HTTPTimeout time.Duration
}

// Client is an explicit, constructible service object: open with New,
// tear down with Close. Nothing here is process-global.
type Client struct {
	baseURL   string
	bridgeURL string
	http      *http.Client
	cache     *Cache
	log       *logrus.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed chan struct{}
}

func New(cfg Config, log *logrus.Logger) *Client {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		bridgeURL: cfg.BridgeURL,
		http:      &http.Client{Timeout: cfg.HTTPTimeout},
		cache:     NewCache(cfg.CacheTTL),
		log:       log,
		closed:    make(chan struct{}),
	}
}

// Cache exposes the underlying cache, mostly for tests and diagnostics.
func (c *Client) Cache() *Cache { return c.cache }

type CreateOrderInput struct {
	RestaurantID    types.ID         `json:"restaurant_id"`
	UserID          types.ID         `json:"user_id"`
	Items           []OrderItemInput `json:"items"`
	DeliveryAddress string           `json:"delivery_address"`
	DeliveryLat     float64          `json:"delivery_lat"`
	DeliveryLng     float64          `json:"delivery_lng"`
}

type OrderItemInput struct {
	MenuItemID types.ID `json:"menu_item_id"`
	Name       string   `json:"name"`
	UnitPrice  float64  `json:"unit_price"`
	Quantity   int      `json:"quantity"`
}

func (c *Client) CreateOrder(ctx context.Context, in CreateOrderInput) (*order.Order, error) {
	var o order.Order
	if err := c.do(ctx, http.MethodPost, "/orders", in, &o); err != nil {
		return nil, err
	}
	c.cache.InvalidateOrder(&o)
	return &o, nil
}

func (c *Client) GetOrder(ctx context.Context, id types.ID) (*order.Order, error) {
	if cached, ok := c.cache.Get(ByID, string(id)); ok && len(cached) == 1 {
		return cached[0], nil
	}
	var o order.Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(string(id)), nil, &o); err != nil {
		return nil, err
	}
	c.cache.Put(ByID, string(id), []*order.Order{&o})
	return &o, nil
}

func (c *Client) OrdersByUser(ctx context.Context, userID types.ID) ([]*order.Order, error) {
	return c.collection(ctx, ByUser, string(userID), "/orders?user_id="+url.QueryEscape(string(userID)))
}

func (c *Client) OrdersByRestaurant(ctx context.Context, restaurantID types.ID) ([]*order.Order, error) {
	return c.collection(ctx, ByRestaurant, string(restaurantID), "/orders?restaurant_id="+url.QueryEscape(string(restaurantID)))
}

func (c *Client) OrdersByCourier(ctx context.Context, courierID types.ID) ([]*order.Order, error) {
	return c.collection(ctx, ByCourier, string(courierID), "/orders?courier_id="+url.QueryEscape(string(courierID)))
}

func (c *Client) OrdersByStatus(ctx context.Context, statuses []order.Status) ([]*order.Order, error) {
	key := StatusKey(statuses)
	return c.collection(ctx, ByStatus, key, "/orders?status="+url.QueryEscape(key))
}

func (c *Client) UpdateStatus(ctx context.Context, id types.ID, status order.Status) (*order.Order, error) {
	var o order.Order
	body := map[string]string{"status": string(status)}
	if err := c.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(string(id))+"/status", body, &o); err != nil {
		return nil, err
	}
	c.cache.InvalidateOrder(&o)
	return &o, nil
}

func (c *Client) AssignCourier(ctx context.Context, id, courierID types.ID) (*order.Order, error) {
	var o order.Order
	body := map[string]string{"courier_id": string(courierID)}
	if err := c.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(string(id))+"/courier", body, &o); err != nil {
		return nil, err
	}
	c.cache.InvalidateOrder(&o)
	return &o, nil
}

type VerifyPINResult struct {
	Success bool         `json:"success"`
	Order   *order.Order `json:"order,omitempty"`
	Message string       `json:"message,omitempty"`
}

func (c *Client) VerifyPIN(ctx context.Context, id types.ID, pin string) (VerifyPINResult, error) {
	var res VerifyPINResult
	body := map[string]string{"pin": pin}
	if err := c.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(string(id))+"/verify-pin", body, &res); err != nil {
		return VerifyPINResult{}, err
	}
	if res.Order != nil {
		c.cache.InvalidateOrder(res.Order)
	}
	return res, nil
}

func (c *Client) collection(ctx context.Context, shape Shape, key, path string) ([]*order.Order, error) {
	if cached, ok := c.cache.Get(shape, key); ok {
		return cached, nil
	}
	var out []*order.Order
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	c.cache.Put(shape, key, out)
	return out, nil
}

// do issues one JSON request with the configured timeout and exactly
// one retry when the deadline is missed.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	for attempt := 0; attempt < 2; attempt++ {
		err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		if !isTimeout(err) {
			return err
		}
		c.log.WithFields(logrus.Fields{"path": path, "attempt": attempt + 1}).Warn("request timed out")
	}
	return ErrTimeout
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		msg := apiErr.Error
		if msg == "" {
			msg = apiErr.Message
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Watch connects to the gateway bridge, subscribes to the given topics,
// and merges incoming events into the cache until Close. The connection
// is re-dialed with backoff after a drop; the REST layer remains the
// authority throughout.
func (c *Client) Watch(ctx context.Context, subscriptions ...string) error {
	conn, err := c.dialAndSubscribe(subscriptions)
	if err != nil {
		return err
	}
	go c.readLoop(ctx, conn, subscriptions)
	return nil
}

func (c *Client) dialAndSubscribe(subscriptions []string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(c.bridgeURL, nil)
	if err != nil {
		return nil, err
	}
	for _, topic := range subscriptions {
		if err := conn.WriteJSON(bridge.Frame{Type: "subscribe", Topic: topic}); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, subscriptions []string) {
	for {
		var d bridge.Delivery
		if err := conn.ReadJSON(&d); err != nil {
			select {
			case <-c.closed:
				return
			case <-ctx.Done():
				return
			default:
			}
			c.log.WithError(err).Warn("bridge connection lost, reconnecting")
			next, derr := c.redial(ctx, subscriptions)
			if derr != nil {
				return
			}
			conn = next
			continue
		}
		c.apply(d)
	}
}

func (c *Client) redial(ctx context.Context, subscriptions []string) (*websocket.Conn, error) {
	for {
		select {
		case <-c.closed:
			return nil, errors.New("client closed")
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
		conn, err := c.dialAndSubscribe(subscriptions)
		if err == nil {
			return conn, nil
		}
		c.log.WithError(err).Warn("bridge redial failed")
	}
}

// apply merges one bridge delivery. Full envelopes merge their order
// snapshot; status pings only invalidate, forcing the next read to hit
// the authoritative query layer.
func (c *Client) apply(d bridge.Delivery) {
	var ev events.Event
	if err := json.Unmarshal(d.Message, &ev); err == nil && ev.Order != nil {
		c.cache.MergeEvent(ev.Order)
		return
	}
	var ping events.StatusPing
	if err := json.Unmarshal(d.Message, &ping); err == nil && ping.OrderID != "" {
		c.cache.Invalidate(ByID, string(ping.OrderID))
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return
	default:
		close(c.closed)
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}
