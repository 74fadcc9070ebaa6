package model

import "time"

// Document is the metadata of an uploaded file. The bytes live in the blob
// store under StoredName, which is generated and never taken from user input.
type Document struct {
	ID           int64     `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Description  *string   `db:"description" json:"description,omitempty"`
	StoredName   string    `db:"stored_name" json:"-"`
	OriginalName string    `db:"original_name" json:"original_name"`
	ContentType  string    `db:"content_type" json:"content_type"`
	Size         int64     `db:"size" json:"size"`
	Checksum     string    `db:"checksum" json:"checksum"`
	UploadedBy   int64     `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentPatch carries the optional fields of a metadata update.
// A nil field is left unchanged.
type DocumentPatch struct {
	Title       *string
	Description *string
}
