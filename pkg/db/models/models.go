package models

// All lists every persisted model, in dependency order, for schema bootstrap
// in tests and SQLite dev mode.
func All() []any {
	return []any{
		&Vendor{},
		&Product{},
		&Purchase{},
		&LedgerAccount{},
		&LedgerEntry{},
		&SettlementOperation{},
		&OutboxEvent{},
	}
}
