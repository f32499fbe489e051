package model

import "strconv"

// Class status values as stored in the class hash
const (
	StatusIdle      = 0
	StatusInProcess = 1
)

// Hash field names shared by every class record
const (
	FieldClassID   = "class_id"
	FieldClassType = "class_type"
	FieldStatus    = "status"
)

// Class represents a work container tracked in the store.
// The store is the system of record; this struct is a per-call view
// of the class hash, never cached across calls.
type Class struct {
	ID     string
	Type   string
	Status int
	Fields map[string]string // additional attributes beyond the reserved fields
}

// Hash flattens the class into its store hash representation.
func (c *Class) Hash() map[string]string {
	fields := make(map[string]string, len(c.Fields)+3)
	for k, v := range c.Fields {
		fields[k] = v
	}
	fields[FieldClassID] = c.ID
	fields[FieldClassType] = c.Type
	fields[FieldStatus] = strconv.Itoa(c.Status)
	return fields
}

// ClassFromHash builds a Class from a store hash.
func ClassFromHash(hash map[string]string) *Class {
	c := &Class{Fields: make(map[string]string)}
	for k, v := range hash {
		switch k {
		case FieldClassID:
			c.ID = v
		case FieldClassType:
			c.Type = v
		case FieldStatus:
			if status, err := strconv.Atoi(v); err == nil {
				c.Status = status
			}
		default:
			c.Fields[k] = v
		}
	}
	return c
}
