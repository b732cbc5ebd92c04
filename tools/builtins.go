package tools

func init() {
	// Inventory tools
	MustRegisterTool(
		"check_stock",
		"Look up current stock, reorder level, and days of supply for an item.",
		func(deps Deps) Tool { return NewCheckStock(deps.Catalog) },
	)
	MustRegisterTool(
		"update_stock",
		"Adjust the recorded stock level of an item.",
		func(deps Deps) Tool { return NewUpdateStock(deps.Catalog) },
	)
	MustRegisterTool(
		"list_low_stock",
		"List items whose stock is at or below the reorder level.",
		func(deps Deps) Tool { return NewListLowStock(deps.Catalog) },
	)

	// Supplier tools
	MustRegisterTool(
		"find_suppliers",
		"Find suppliers that carry an item, ranked by rating and learned preference.",
		func(deps Deps) Tool { return NewFindSuppliers(deps.Catalog, deps.Memory) },
	)
	MustRegisterTool(
		"get_supplier_quote",
		"Get a price quote for ordering a quantity of an item from a supplier.",
		func(deps Deps) Tool { return NewSupplierQuote(deps.Catalog) },
	)

	// Ordering tools
	MustRegisterTool(
		"create_purchase_order",
		"Place a purchase order for an item with a supplier.",
		func(deps Deps) Tool { return NewCreatePurchaseOrder(deps.Catalog) },
	)
	MustRegisterTool(
		"get_order_status",
		"Look up a purchase order by id.",
		func(deps Deps) Tool { return NewOrderStatus(deps.Catalog) },
	)
	MustRegisterTool(
		"cancel_purchase_order",
		"Cancel a placed purchase order.",
		func(deps Deps) Tool { return NewCancelPurchaseOrder(deps.Catalog) },
	)

	// Sales and forecasting tools
	MustRegisterTool(
		"get_sales_history",
		"Read daily unit sales for an item, oldest first.",
		func(deps Deps) Tool { return NewSalesHistory(deps.Catalog) },
	)
	MustRegisterTool(
		"record_sales",
		"Record a day of unit sales for an item and draw down stock.",
		func(deps Deps) Tool { return NewRecordSales(deps.Catalog) },
	)
	MustRegisterTool(
		"forecast_demand",
		"Project daily demand for an item over a horizon from sales history.",
		func(deps Deps) Tool { return NewForecastDemand(deps.Catalog) },
	)

	// Reporting tools
	MustRegisterTool(
		"send_notification",
		"Send a notification message to the operations channel.",
		func(deps Deps) Tool { return NewSendNotification(deps.Catalog) },
	)
	MustRegisterTool(
		"generate_inventory_report",
		"Summarize stock levels, low-stock items, and open notifications.",
		func(deps Deps) Tool { return NewInventoryReport(deps.Catalog) },
	)

	// Bundles
	MustRegisterBundle("inventory", "Inventory visibility tools", []string{
		"check_stock",
		"list_low_stock",
		"update_stock",
	})

	MustRegisterBundle("purchasing", "Supplier and ordering tools", []string{
		"find_suppliers",
		"get_supplier_quote",
		"create_purchase_order",
		"get_order_status",
		"cancel_purchase_order",
	})

	MustRegisterBundle("forecasting", "Sales and demand tools", []string{
		"get_sales_history",
		"record_sales",
		"forecast_demand",
	})

	MustRegisterBundle("reporting", "Notification and report tools", []string{
		"send_notification",
		"generate_inventory_report",
	})

	MustRegisterBundle("all", "All built-in business tools", []string{
		"check_stock",
		"update_stock",
		"list_low_stock",
		"find_suppliers",
		"get_supplier_quote",
		"create_purchase_order",
		"get_order_status",
		"cancel_purchase_order",
		"get_sales_history",
		"record_sales",
		"forecast_demand",
		"send_notification",
		"generate_inventory_report",
	})
}
