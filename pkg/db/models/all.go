package models

// All lists every persisted model in dependency order. Tests use it to build
// sqlite schemas; production schemas come from goose migrations.
func All() []any {
	return []any{
		&Product{},
		&Store{},
		&PickupAddress{},
		&InventoryRecord{},
		&Order{},
		&OrderLine{},
		&Allocation{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
