package models

// All lists every persisted model in dependency order, for schema bootstrap
// on stores the SQL migrations do not target.
func All() []any {
	return []any{
		&User{},
		&CreditLedgerEntry{},
		&Order{},
		&Subscription{},
		&ProviderEvent{},
		&ModelPricing{},
		&GenerationJob{},
	}
}
