package model

import "time"

// Capabilities are the per-document permissions a grant confers.
type Capabilities struct {
	CanRead   bool `db:"can_read" json:"can_read"`
	CanEdit   bool `db:"can_edit" json:"can_edit"`
	CanDelete bool `db:"can_delete" json:"can_delete"`
}

// ReadOnly is what a legacy grant row without flags amounts to.
var ReadOnly = Capabilities{CanRead: true}

// AccessGrant lets one user act on one document. At most one exists per pair.
type AccessGrant struct {
	UserID     int64 `db:"user_id" json:"user_id"`
	DocumentID int64 `db:"document_id" json:"document_id"`
	Capabilities
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentAccess pairs a document with the capabilities of whoever listed it.
type DocumentAccess struct {
	Document
	Capabilities
}
