package model

// Hash field names of the object index hash
const (
	FieldObjectClassID = "class_id"
)

// Object represents a work item belonging to exactly one class.
type Object struct {
	ID      string
	ClassID string
}
