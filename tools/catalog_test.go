package tools

import (
	"errors"
	"testing"

	"github.com/stockpilot/trigger-engine/types"
)

func TestCatalog_ItemLookup(t *testing.T) {
	cat := NewCatalog()

	item, err := cat.Item("usb-c cable")
	if err != nil {
		t.Fatalf("lookup should be case-insensitive: %v", err)
	}
	if item.Name != "USB-C Cable" || item.CurrentStock != 2 {
		t.Fatalf("unexpected item: %#v", item)
	}

	if _, err := cat.Item("Flux Capacitor"); err == nil {
		t.Fatal("expected error for unknown item")
	} else {
		var derr *types.DomainError
		if !errors.As(err, &derr) {
			t.Fatalf("expected DomainError, got %T", err)
		}
	}
}

func TestCatalog_AdjustStockFloorsAtZero(t *testing.T) {
	cat := NewCatalog()

	item, err := cat.AdjustStock("USB-C Cable", -10)
	if err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	if item.CurrentStock != 0 {
		t.Fatalf("stock should floor at zero, got %v", item.CurrentStock)
	}

	item, err = cat.AdjustStock("USB-C Cable", 30)
	if err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	if item.CurrentStock != 30 {
		t.Fatalf("expected 30 units, got %v", item.CurrentStock)
	}
}

func TestCatalog_SuppliersForSortedByRating(t *testing.T) {
	cat := NewCatalog()

	suppliers := cat.SuppliersFor("USB-C Cable")
	if len(suppliers) != 3 {
		t.Fatalf("expected 3 suppliers, got %d", len(suppliers))
	}
	for i := 1; i < len(suppliers); i++ {
		if suppliers[i].Rating > suppliers[i-1].Rating {
			t.Fatalf("suppliers not sorted by rating: %#v", suppliers)
		}
	}

	if got := cat.SuppliersFor("Laptop Stand"); len(got) != 2 {
		t.Fatalf("Laptop Stand should have 2 suppliers, got %d", len(got))
	}
}

func TestCatalog_OrderLifecycle(t *testing.T) {
	cat := NewCatalog()

	order, err := cat.CreateOrder("Webcam", "TechSupply Co", 10, 55)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.Status != "placed" || order.Total != 550 {
		t.Fatalf("unexpected order: %#v", order)
	}

	loaded, err := cat.Order(order.OrderID)
	if err != nil {
		t.Fatalf("Order lookup failed: %v", err)
	}
	if loaded.OrderID != order.OrderID {
		t.Fatalf("order identity mismatch: %#v", loaded)
	}

	cancelled, err := cat.CancelOrder(order.OrderID)
	if err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	if cancelled.Status != "cancelled" {
		t.Fatalf("expected cancelled status, got %q", cancelled.Status)
	}

	// A cancelled order cannot be cancelled again.
	if _, err := cat.CancelOrder(order.OrderID); err == nil {
		t.Fatal("expected error cancelling twice")
	}
}

func TestCatalog_CreateOrderUnknownEntities(t *testing.T) {
	cat := NewCatalog()

	if _, err := cat.CreateOrder("Flux Capacitor", "TechSupply Co", 5, 10); err == nil {
		t.Fatal("expected error for unknown item")
	}
	if _, err := cat.CreateOrder("Webcam", "Nobody Inc", 5, 10); err == nil {
		t.Fatal("expected error for unknown supplier")
	}
}

func TestCatalog_RecordSalesAppends(t *testing.T) {
	cat := NewCatalog()

	before, err := cat.SalesHistory("Webcam")
	if err != nil {
		t.Fatalf("SalesHistory failed: %v", err)
	}
	if err := cat.RecordSales("Webcam", 4); err != nil {
		t.Fatalf("RecordSales failed: %v", err)
	}
	after, err := cat.SalesHistory("Webcam")
	if err != nil {
		t.Fatalf("SalesHistory failed: %v", err)
	}
	if len(after) != len(before)+1 || after[len(after)-1] != 4 {
		t.Fatalf("sales not appended: %v", after)
	}
}

func TestCatalog_Notifications(t *testing.T) {
	cat := NewCatalog()
	cat.Notify("[ops] stockout risk")
	cat.Notify("[ops] order placed")

	got := cat.Notifications()
	if len(got) != 2 || got[0] != "[ops] stockout risk" {
		t.Fatalf("unexpected notifications: %v", got)
	}
}
