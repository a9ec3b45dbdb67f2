package models

import "time"

// ItemKind distinguishes catalog entries by origin entity.
type ItemKind string

const (
	ItemKindItem         ItemKind = "ITEM"
	ItemKindComponent    ItemKind = "COMPONENT"
	ItemKindCounterparty ItemKind = "COUNTERPARTY"
)

// Item is an MDM catalog entry. NormalizedCode is the strong identifying
// attribute used by the link resolver to match external records.
type Item struct {
	ID             string    `db:"id" json:"id"`
	Code           string    `db:"code" json:"code"`
	NormalizedCode string    `db:"normalized_code" json:"normalizedCode"`
	Name           string    `db:"name" json:"name"`
	Description    string    `db:"description" json:"description"`
	Kind           ItemKind  `db:"kind" json:"kind"`
	Unit           string    `db:"unit" json:"unit"`
	Manufacturer   string    `db:"manufacturer" json:"manufacturer"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// ItemFilter constrains catalog listing queries.
type ItemFilter struct {
	Kind     ItemKind
	Search   string
	Page     int
	PageSize int
}
