// README: REST surface tests over the in-memory store.
package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"dishpatch/internal/modules/order"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewOrderHandler(order.NewService(order.NewMemStore(), nil))
	r.POST("/orders", h.Create)
	r.GET("/orders", h.List)
	r.GET("/orders/:id", h.Get)
	r.PUT("/orders/:id/status", h.UpdateStatus)
	r.PUT("/orders/:id/courier", h.AssignCourier)
	r.POST("/orders/:id/verify-pin", h.VerifyPIN)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createTestOrder(t *testing.T, r *gin.Engine) map[string]any {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/orders", map[string]any{
		"restaurant_id": "r1",
		"user_id":       "u1",
		"items": []map[string]any{
			{"menu_item_id": "m1", "name": "Slice", "unit_price": 5.00, "quantity": 2},
			{"menu_item_id": "m2", "name": "Soda", "unit_price": 3.00, "quantity": 1},
		},
		"delivery_address": "123 Elm St",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var o map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &o); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return o
}

func TestCreateRevealsPINAndTotal(t *testing.T) {
	r := newTestRouter(t)
	o := createTestOrder(t, r)

	pin, _ := o["delivery_pin"].(string)
	if len(pin) != 4 {
		t.Fatalf("delivery_pin = %q", pin)
	}
	if total := o["total_price"].(float64); total != 13.00 {
		t.Fatalf("total_price = %v", total)
	}
	if o["status"] != string(order.StatusCreated) {
		t.Fatalf("status = %v", o["status"])
	}

	id := o["id"].(string)
	w := doJSON(t, r, http.MethodGet, "/orders/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var fetched map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &fetched)
	if fetched["delivery_pin"] != pin {
		t.Fatalf("delivery_pin drifted: %v", fetched["delivery_pin"])
	}
}

func TestCreateRejectsEmptyItems(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/orders", map[string]any{
		"restaurant_id": "r1",
		"user_id":       "u1",
		"items":         []map[string]any{},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUpdateStatusConflictNamesBothStatuses(t *testing.T) {
	r := newTestRouter(t)
	o := createTestOrder(t, r)
	id := o["id"].(string)

	w := doJSON(t, r, http.MethodPut, "/orders/"+id+"/status", map[string]string{"status": "delivered"})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["current_status"] != string(order.StatusCreated) {
		t.Fatalf("current_status = %v", resp["current_status"])
	}
	if resp["requested_status"] != string(order.StatusDelivered) {
		t.Fatalf("requested_status = %v", resp["requested_status"])
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	r := newTestRouter(t)
	o := createTestOrder(t, r)
	id := o["id"].(string)

	w := doJSON(t, r, http.MethodPut, "/orders/"+id+"/status", map[string]string{"status": "teleported"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestAssignCourierTwiceConflicts(t *testing.T) {
	r := newTestRouter(t)
	o := createTestOrder(t, r)
	id := o["id"].(string)

	w := doJSON(t, r, http.MethodPut, "/orders/"+id+"/courier", map[string]string{"courier_id": "c1"})
	if w.Code != http.StatusOK {
		t.Fatalf("first assign = %d, body = %s", w.Code, w.Body.String())
	}
	var assigned map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &assigned)
	if assigned["status"] != string(order.StatusPickedUp) {
		t.Fatalf("status after assignment = %v", assigned["status"])
	}

	w = doJSON(t, r, http.MethodPut, "/orders/"+id+"/courier", map[string]string{"courier_id": "c2"})
	if w.Code != http.StatusConflict {
		t.Fatalf("second assign = %d, want 409", w.Code)
	}
}

func TestVerifyPINEndpoint(t *testing.T) {
	r := newTestRouter(t)
	o := createTestOrder(t, r)
	id := o["id"].(string)
	pin := o["delivery_pin"].(string)

	for _, next := range []order.Status{
		order.StatusAcceptedByRestaurant, order.StatusPreparing,
		order.StatusReadyForPickup, order.StatusPickedUp, order.StatusOnTheWay,
	} {
		w := doJSON(t, r, http.MethodPut, "/orders/"+id+"/status", map[string]string{"status": string(next)})
		if w.Code != http.StatusOK {
			t.Fatalf("transition to %s = %d, body = %s", next, w.Code, w.Body.String())
		}
	}

	// a mismatch is a 200 with success=false, not an error status
	w := doJSON(t, r, http.MethodPost, "/orders/"+id+"/verify-pin", map[string]string{"pin": "0000"})
	if w.Code != http.StatusOK {
		t.Fatalf("mismatch status = %d, want 200", w.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["success"] != false || resp["message"] != "Invalid PIN" {
		t.Fatalf("mismatch response = %v", resp)
	}

	w = doJSON(t, r, http.MethodPost, "/orders/"+id+"/verify-pin", map[string]string{"pin": pin})
	if w.Code != http.StatusOK {
		t.Fatalf("match status = %d", w.Code)
	}
	resp = map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["success"] != true {
		t.Fatalf("match response = %v", resp)
	}
	delivered := resp["order"].(map[string]any)
	if delivered["status"] != string(order.StatusDelivered) {
		t.Fatalf("order status = %v", delivered["status"])
	}
}

func TestListFilters(t *testing.T) {
	r := newTestRouter(t)
	createTestOrder(t, r)
	createTestOrder(t, r)

	w := doJSON(t, r, http.MethodGet, "/orders?user_id=u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list by user = %d", w.Code)
	}
	var list []map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 2 {
		t.Fatalf("list by user len = %d, want 2", len(list))
	}

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/orders?status=%s", order.StatusCreated), nil)
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 2 {
		t.Fatalf("list by status len = %d, want 2", len(list))
	}

	w = doJSON(t, r, http.MethodGet, "/orders?courier_id=nobody", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("empty list = %d", w.Code)
	}
	if body := w.Body.String(); body != "[]" && body != "[]\n" {
		t.Fatalf("empty list body = %q, want []", body)
	}
}

func TestListWithoutFilter(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/orders", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetMissingOrder(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/orders/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
