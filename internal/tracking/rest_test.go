package tracking

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchOrders(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"orderId":"o1","status":"PREPARING","total_amount":12.5,"updated_at":1000},
			{"orderId":"o2","status":"EN_ROUTE","driverId":"d1","updated_at":2000}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok123")
	snaps, err := c.FetchOrders(context.Background(), "cust1")
	if err != nil {
		t.Fatalf("FetchOrders: %v", err)
	}
	if gotPath != "/customers/orders/cust1" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if len(snaps) != 2 || snaps[0].OrderID != "o1" || snaps[1].DriverID != "d1" {
		t.Errorf("snapshots = %+v", snaps)
	}
}

func TestFetchOrderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/orders/live/status" {
			w.Write([]byte(`{"data":{"status":"EN_ROUTE"}}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")

	status, found, err := c.FetchOrderStatus(context.Background(), "live")
	if err != nil || !found || status != StatusEnRoute {
		t.Errorf("live order: status=%q found=%v err=%v", status, found, err)
	}

	_, found, err = c.FetchOrderStatus(context.Background(), "gone")
	if err != nil {
		t.Fatalf("404 must not be an error: %v", err)
	}
	if found {
		t.Error("missing order reported as found")
	}
}

func TestFetchOrdersServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if _, err := c.FetchOrders(context.Background(), "cust1"); err == nil {
		t.Error("500 response did not error")
	}
}
