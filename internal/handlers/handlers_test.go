package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-marketplace-store/internal/codec"
	"github.com/imrishuroy/go-marketplace-store/internal/customers"
	"github.com/imrishuroy/go-marketplace-store/internal/model"
	"github.com/imrishuroy/go-marketplace-store/internal/orders"
	"github.com/imrishuroy/go-marketplace-store/internal/payments"
	"github.com/imrishuroy/go-marketplace-store/internal/products"
	"github.com/imrishuroy/go-marketplace-store/internal/projector"
	"github.com/imrishuroy/go-marketplace-store/internal/table"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := table.NewMemory(codec.MainSchema("market"), codec.PaymentsSchema("payments"))
	cs := customers.NewStore(mem, "market")
	ps := products.NewStore(mem, "market")
	ordStore := orders.NewStore(mem, "market")
	pay := payments.NewStore(mem, "payments")

	proj := projector.New(cs, nil, nil)
	mem.Subscribe(func(ch table.Change) {
		if err := proj.Handle(context.Background(), ch); err != nil {
			t.Errorf("projector: %v", err)
		}
	})

	r := gin.New()
	RegisterRoutes(r, Dependencies{
		Customers:   cs,
		Products:    ps,
		Orders:      ordStore,
		Placement:   orders.NewService(ordStore, ps),
		Payments:    pay,
		Coordinator: payments.NewCoordinator(mem, ordStore, pay, nil, nil),
	})
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func expect(t *testing.T, w *httptest.ResponseRecorder, status int, out any) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d, body %s", w.Code, status, w.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v", w.Body.String(), err)
		}
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)
	expect(t, do(t, r, http.MethodGet, "/health", nil), http.StatusOK, nil)
}

func TestOrderLifecycle(t *testing.T) {
	r := newTestRouter(t)

	expect(t, do(t, r, http.MethodPost, "/customers", `{"email":"ann@example.com","name":"Ann","address":{"country":"DE","city":"Berlin","streetAddress":"Main 1"}}`), http.StatusCreated, nil)
	expect(t, do(t, r, http.MethodPost, "/customers", `{"email":"ann@example.com","name":"Ann"}`), http.StatusConflict, nil)
	expect(t, do(t, r, http.MethodPost, "/products", `{"id":"P1","name":"Pen","price":"2.50","category":"office"}`), http.StatusCreated, nil)
	expect(t, do(t, r, http.MethodPost, "/products", `{"id":"P2","name":"Ink","price":"7","outOfStock":true}`), http.StatusCreated, nil)

	// unknown and out-of-stock products are refused
	expect(t, do(t, r, http.MethodPost, "/orders", `{"customerEmail":"ann@example.com","products":{"P9":1}}`), http.StatusUnprocessableEntity, nil)
	expect(t, do(t, r, http.MethodPost, "/orders", `{"customerEmail":"ann@example.com","products":{"P2":1}}`), http.StatusUnprocessableEntity, nil)

	var placed model.OrderDetails
	expect(t, do(t, r, http.MethodPost, "/orders", `{"customerEmail":"ann@example.com","products":{"P1":2}}`), http.StatusCreated, &placed)
	id := placed.Order.ID
	if !placed.Order.Total.Equal(decimal.RequireFromString("5")) || placed.Order.Status != model.StatusOpen {
		t.Fatalf("unexpected order %+v", placed.Order)
	}

	var cust model.Customer
	expect(t, do(t, r, http.MethodGet, "/customers/ann@example.com", nil), http.StatusOK, &cust)
	if cust.OrderCount != 1 {
		t.Fatalf("order count = %d, want 1", cust.OrderCount)
	}

	var owner model.Customer
	expect(t, do(t, r, http.MethodGet, "/customers?orderId="+id, nil), http.StatusOK, &owner)
	if owner.Email != "ann@example.com" {
		t.Fatalf("owner = %+v", owner)
	}

	var open struct{ Orders []model.Order }
	expect(t, do(t, r, http.MethodGet, "/orders?status=OPEN", nil), http.StatusOK, &open)
	if len(open.Orders) != 1 || open.Orders[0].ID != id {
		t.Fatalf("open orders = %+v", open.Orders)
	}

	expect(t, do(t, r, http.MethodPost, "/payments", `{"customerId":"ann@example.com","orderId":"`+id+`","amount":"0"}`), http.StatusBadRequest, nil)

	var res struct{ Result string }
	expect(t, do(t, r, http.MethodPost, "/payments", `{"customerId":"bob@example.com","orderId":"`+id+`","amount":"5"}`), http.StatusOK, &res)
	if res.Result != string(model.PaymentNotAllowed) {
		t.Fatalf("foreign payer result = %s", res.Result)
	}
	expect(t, do(t, r, http.MethodPost, "/payments", `{"customerId":"ann@example.com","orderId":"`+id+`","amount":"5"}`), http.StatusOK, &res)
	if res.Result != string(model.PaymentSuccess) {
		t.Fatalf("result = %s", res.Result)
	}
	expect(t, do(t, r, http.MethodPost, "/payments", `{"customerId":"ann@example.com","orderId":"`+id+`","amount":"5"}`), http.StatusOK, &res)
	if res.Result != string(model.PaymentSkipped) {
		t.Fatalf("second result = %s", res.Result)
	}

	var paid struct{ Payments []model.Payment }
	expect(t, do(t, r, http.MethodGet, "/customers/ann@example.com/payments", nil), http.StatusOK, &paid)
	if len(paid.Payments) != 1 {
		t.Fatalf("payments = %+v", paid.Payments)
	}

	var mine struct{ Orders []model.CustomerOrder }
	expect(t, do(t, r, http.MethodGet, "/customers/ann@example.com/orders", nil), http.StatusOK, &mine)
	if len(mine.Orders) != 1 || mine.Orders[0].Status != model.StatusPaid {
		t.Fatalf("customer orders = %+v", mine.Orders)
	}

	// PAID is terminal
	expect(t, do(t, r, http.MethodPost, "/orders/"+id+"/deliver", nil), http.StatusConflict, nil)

	var byProduct struct{ Orders []model.Order }
	expect(t, do(t, r, http.MethodGet, "/products/P1/orders", nil), http.StatusOK, &byProduct)
	if len(byProduct.Orders) != 1 || byProduct.Orders[0].Status != model.StatusPaid {
		t.Fatalf("orders by product = %+v", byProduct.Orders)
	}

	expect(t, do(t, r, http.MethodDelete, "/orders/"+id, nil), http.StatusOK, nil)
	expect(t, do(t, r, http.MethodGet, "/orders/"+id, nil), http.StatusNotFound, nil)
	expect(t, do(t, r, http.MethodGet, "/customers/ann@example.com", nil), http.StatusOK, &cust)
	if cust.OrderCount != 0 {
		t.Fatalf("order count after delete = %d, want 0", cust.OrderCount)
	}
}

func TestDeliverAndListByMonth(t *testing.T) {
	r := newTestRouter(t)
	expect(t, do(t, r, http.MethodPost, "/customers", `{"email":"ann@example.com","name":"Ann"}`), http.StatusCreated, nil)
	expect(t, do(t, r, http.MethodPost, "/products", `{"id":"P1","name":"Pen","price":"1"}`), http.StatusCreated, nil)

	var placed model.OrderDetails
	expect(t, do(t, r, http.MethodPost, "/orders", `{"customerEmail":"ann@example.com","products":{"P1":1}}`), http.StatusCreated, &placed)

	var delivered model.Order
	expect(t, do(t, r, http.MethodPost, "/orders/"+placed.Order.ID+"/deliver", nil), http.StatusOK, &delivered)
	if delivered.Status != model.StatusDelivered || delivered.DeliveredAt == nil {
		t.Fatalf("unexpected order %+v", delivered)
	}

	month := delivered.DeliveredAt.UTC().Format("2006_01")
	var list struct{ Orders []model.Order }
	expect(t, do(t, r, http.MethodGet, "/orders?status=DELIVERED&month="+month, nil), http.StatusOK, &list)
	if len(list.Orders) != 1 {
		t.Fatalf("delivered orders = %+v", list.Orders)
	}
	expect(t, do(t, r, http.MethodGet, "/orders?status=OPEN&month="+month, nil), http.StatusBadRequest, nil)
	expect(t, do(t, r, http.MethodGet, "/orders?status=GONE", nil), http.StatusBadRequest, nil)

	// a delivered order cannot be paid
	var res struct{ Result string }
	expect(t, do(t, r, http.MethodPost, "/payments", `{"customerId":"ann@example.com","orderId":"`+placed.Order.ID+`","amount":"1"}`), http.StatusOK, &res)
	if res.Result != string(model.PaymentNotAllowed) {
		t.Fatalf("result = %s", res.Result)
	}
}

func TestCustomerAndProductCRUD(t *testing.T) {
	r := newTestRouter(t)

	expect(t, do(t, r, http.MethodGet, "/customers/nobody@example.com", nil), http.StatusNotFound, nil)
	expect(t, do(t, r, http.MethodPost, "/customers", `{"email":"bad","name":"X"}`), http.StatusBadRequest, nil)
	expect(t, do(t, r, http.MethodPost, "/customers", `{"email":"ann@example.com","name":"Ann","address":{"country":"DE","city":"Berlin"}}`), http.StatusCreated, nil)

	var located struct{ Customers []model.Customer }
	expect(t, do(t, r, http.MethodGet, "/customers?country=DE&city=Berlin", nil), http.StatusOK, &located)
	if len(located.Customers) != 1 {
		t.Fatalf("located = %+v", located.Customers)
	}
	expect(t, do(t, r, http.MethodGet, "/customers", nil), http.StatusBadRequest, nil)

	var updated model.Customer
	expect(t, do(t, r, http.MethodPatch, "/customers/ann@example.com", `{"name":"Anna"}`), http.StatusOK, &updated)
	if updated.Name != "Anna" || updated.Address.City != "Berlin" {
		t.Fatalf("updated = %+v", updated)
	}
	expect(t, do(t, r, http.MethodPatch, "/customers/ann@example.com", `{}`), http.StatusBadRequest, nil)
	expect(t, do(t, r, http.MethodPatch, "/customers/zed@example.com", `{"name":"Zed"}`), http.StatusNotFound, nil)
	expect(t, do(t, r, http.MethodDelete, "/customers/ann@example.com", nil), http.StatusOK, nil)
	expect(t, do(t, r, http.MethodDelete, "/customers/ann@example.com", nil), http.StatusNotFound, nil)

	expect(t, do(t, r, http.MethodPost, "/products", `{"id":"P1","name":"Pen","price":"1.5","category":"office"}`), http.StatusCreated, nil)
	expect(t, do(t, r, http.MethodPost, "/products", `{"id":"P1","name":"Pen","price":"1.5"}`), http.StatusConflict, nil)

	var byCat struct{ Products []model.Product }
	expect(t, do(t, r, http.MethodGet, "/products?category=office", nil), http.StatusOK, &byCat)
	if len(byCat.Products) != 1 {
		t.Fatalf("by category = %+v", byCat.Products)
	}

	var p model.Product
	expect(t, do(t, r, http.MethodPatch, "/products/P1", `{"outOfStock":true}`), http.StatusOK, &p)
	if !p.OutOfStock {
		t.Fatalf("product = %+v", p)
	}
	var out struct{ Products []model.Product }
	expect(t, do(t, r, http.MethodGet, "/products?outOfStock=true", nil), http.StatusOK, &out)
	if len(out.Products) != 1 {
		t.Fatalf("out of stock = %+v", out.Products)
	}
	expect(t, do(t, r, http.MethodGet, "/products?outOfStock=false", nil), http.StatusBadRequest, nil)
	expect(t, do(t, r, http.MethodDelete, "/products/P1", nil), http.StatusOK, nil)
	expect(t, do(t, r, http.MethodGet, "/products/P1", nil), http.StatusNotFound, nil)
}
