package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stockpilot/trigger-engine/types"
)

// Item is one tracked inventory position.
type Item struct {
	Name             string  `json:"name"`
	CurrentStock     float64 `json:"currentStock"`
	ReorderLevel     float64 `json:"reorderLevel"`
	DailyConsumption float64 `json:"dailyConsumption"`
	UnitCost         float64 `json:"unitCost"`
}

// DaysOfSupply returns how long current stock lasts at the observed
// consumption rate, or -1 when consumption is unknown.
func (i Item) DaysOfSupply() float64 {
	if i.DailyConsumption <= 0 {
		return -1
	}
	return i.CurrentStock / i.DailyConsumption
}

// Supplier is a purchasing source with delivery characteristics.
type Supplier struct {
	Name           string   `json:"name"`
	Rating         float64  `json:"rating"`
	LeadTimeDays   int      `json:"leadTimeDays"`
	CostMultiplier float64  `json:"costMultiplier"`
	Items          []string `json:"items"`
}

// PurchaseOrder is a created order awaiting fulfilment.
type PurchaseOrder struct {
	OrderID   string    `json:"orderId"`
	Item      string    `json:"item"`
	Supplier  string    `json:"supplier"`
	Quantity  float64   `json:"quantity"`
	UnitCost  float64   `json:"unitCost"`
	Total     float64   `json:"total"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Catalog is the in-memory business backend the tools operate on. A real
// deployment would swap this for ERP integrations; the tool surface stays
// the same.
type Catalog struct {
	mu        sync.RWMutex
	items     map[string]Item
	suppliers []Supplier
	sales     map[string][]float64
	orders    map[string]PurchaseOrder
	notices   []string
}

// NewCatalog returns a catalog seeded with representative demo data.
func NewCatalog() *Catalog {
	c := &Catalog{
		items:  make(map[string]Item),
		sales:  make(map[string][]float64),
		orders: make(map[string]PurchaseOrder),
	}
	for _, item := range []Item{
		{Name: "USB-C Cable", CurrentStock: 2, ReorderLevel: 25, DailyConsumption: 3, UnitCost: 12},
		{Name: "Wireless Mouse", CurrentStock: 45, ReorderLevel: 20, DailyConsumption: 2, UnitCost: 25},
		{Name: "Laptop Stand", CurrentStock: 15, ReorderLevel: 10, DailyConsumption: 1, UnitCost: 35},
		{Name: "HDMI Cable", CurrentStock: 8, ReorderLevel: 15, DailyConsumption: 2, UnitCost: 9.5},
		{Name: "Webcam", CurrentStock: 30, ReorderLevel: 12, DailyConsumption: 1.5, UnitCost: 55},
	} {
		c.items[normalizeName(item.Name)] = item
	}
	c.suppliers = []Supplier{
		{Name: "TechSupply Co", Rating: 4.5, LeadTimeDays: 3, CostMultiplier: 1.0,
			Items: []string{"USB-C Cable", "Wireless Mouse", "HDMI Cable", "Webcam"}},
		{Name: "Global Components", Rating: 4.1, LeadTimeDays: 7, CostMultiplier: 0.85,
			Items: []string{"USB-C Cable", "HDMI Cable", "Laptop Stand"}},
		{Name: "QuickShip Electronics", Rating: 3.8, LeadTimeDays: 1, CostMultiplier: 1.25,
			Items: []string{"USB-C Cable", "Wireless Mouse", "Laptop Stand", "Webcam"}},
	}
	c.sales = map[string][]float64{
		normalizeName("USB-C Cable"):    {3, 2, 4, 3, 5, 2, 3, 4, 3, 2, 4, 5, 3, 3},
		normalizeName("Wireless Mouse"): {2, 1, 3, 2, 2, 1, 2, 3, 2, 2, 1, 2, 2, 3},
		normalizeName("Laptop Stand"):   {1, 0, 1, 1, 2, 1, 0, 1, 1, 1, 2, 1, 1, 0},
		normalizeName("HDMI Cable"):     {2, 2, 1, 3, 2, 2, 3, 1, 2, 2, 2, 3, 2, 2},
		normalizeName("Webcam"):         {1, 2, 1, 1, 2, 2, 1, 1, 2, 1, 1, 2, 2, 1},
	}
	return c
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Item looks up an inventory position by name, case-insensitively.
func (c *Catalog) Item(name string) (Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[normalizeName(name)]
	if !ok {
		return Item{}, &types.DomainError{Op: "catalog.item", Reason: fmt.Sprintf("unknown item %q", name)}
	}
	return item, nil
}

// Items returns every tracked item sorted by name.
func (c *Catalog) Items() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Item, 0, len(c.items))
	for _, item := range c.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AdjustStock applies a delta to an item's stock level. Stock never goes
// negative.
func (c *Catalog) AdjustStock(name string, delta float64) (Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[normalizeName(name)]
	if !ok {
		return Item{}, &types.DomainError{Op: "catalog.adjust_stock", Reason: fmt.Sprintf("unknown item %q", name)}
	}
	item.CurrentStock += delta
	if item.CurrentStock < 0 {
		item.CurrentStock = 0
	}
	c.items[normalizeName(name)] = item
	return item, nil
}

// SuppliersFor returns suppliers that carry the item, best rating first.
func (c *Catalog) SuppliersFor(item string) []Supplier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Supplier
	for _, s := range c.suppliers {
		for _, carried := range s.Items {
			if normalizeName(carried) == normalizeName(item) {
				out = append(out, s)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	return out
}

// Supplier looks up a supplier by name.
func (c *Catalog) Supplier(name string) (Supplier, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.suppliers {
		if normalizeName(s.Name) == normalizeName(name) {
			return s, nil
		}
	}
	return Supplier{}, &types.DomainError{Op: "catalog.supplier", Reason: fmt.Sprintf("unknown supplier %q", name)}
}

// SalesHistory returns daily unit sales for an item, oldest first.
func (c *Catalog) SalesHistory(item string) ([]float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	history, ok := c.sales[normalizeName(item)]
	if !ok {
		return nil, &types.DomainError{Op: "catalog.sales", Reason: fmt.Sprintf("no sales history for %q", item)}
	}
	out := make([]float64, len(history))
	copy(out, history)
	return out, nil
}

// RecordSales appends a day of unit sales for an item.
func (c *Catalog) RecordSales(item string, units float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := normalizeName(item)
	if _, ok := c.items[key]; !ok {
		return &types.DomainError{Op: "catalog.record_sales", Reason: fmt.Sprintf("unknown item %q", item)}
	}
	c.sales[key] = append(c.sales[key], units)
	return nil
}

// CreateOrder registers a purchase order and returns it.
func (c *Catalog) CreateOrder(item, supplier string, quantity, unitCost float64) (PurchaseOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[normalizeName(item)]; !ok {
		return PurchaseOrder{}, &types.DomainError{Op: "catalog.create_order", Reason: fmt.Sprintf("unknown item %q", item)}
	}
	order := PurchaseOrder{
		OrderID:   "po-" + uuid.NewString()[:8],
		Item:      item,
		Supplier:  supplier,
		Quantity:  quantity,
		UnitCost:  unitCost,
		Total:     quantity * unitCost,
		Status:    "placed",
		CreatedAt: time.Now().UTC(),
	}
	c.orders[order.OrderID] = order
	return order, nil
}

// Order looks up a purchase order by id.
func (c *Catalog) Order(orderID string) (PurchaseOrder, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	order, ok := c.orders[orderID]
	if !ok {
		return PurchaseOrder{}, &types.DomainError{Op: "catalog.order", Reason: fmt.Sprintf("unknown order %q", orderID)}
	}
	return order, nil
}

// CancelOrder marks a placed order cancelled.
func (c *Catalog) CancelOrder(orderID string) (PurchaseOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	order, ok := c.orders[orderID]
	if !ok {
		return PurchaseOrder{}, &types.DomainError{Op: "catalog.cancel_order", Reason: fmt.Sprintf("unknown order %q", orderID)}
	}
	if order.Status != "placed" {
		return PurchaseOrder{}, &types.DomainError{Op: "catalog.cancel_order", Reason: fmt.Sprintf("order %q is %s", orderID, order.Status)}
	}
	order.Status = "cancelled"
	c.orders[orderID] = order
	return order, nil
}

// Notify appends a message to the notification log.
func (c *Catalog) Notify(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, message)
}

// Notifications returns the notification log.
func (c *Catalog) Notifications() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.notices))
	copy(out, c.notices)
	return out
}
