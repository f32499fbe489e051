// Package keys maps logical tracker entities to their store key strings.
// The formats are part of the external contract: tools inspecting the
// store directly must recognize them verbatim.
package keys

import (
	"fmt"
	"strings"

	errs "github.com/crawlkit/tracker/internal/errors"
)

// ObjectCounter is the key of the global object-id counter hash.
// The counter value lives in its "id" field.
const ObjectCounter = "object::counter"

// CounterField is the hash field holding the counter value.
const CounterField = "id"

// Class returns the key of a class's attribute hash.
func Class(classID string) string {
	return fmt.Sprintf("class:%s", classID)
}

// Object returns the key of an object's index hash.
func Object(objectID string) string {
	return fmt.Sprintf("object:%s", objectID)
}

// ClassObjects returns the key of the unordered set indexing every
// object ever tracked for a class.
func ClassObjects(classID string) string {
	return fmt.Sprintf("class:%s:objects", classID)
}

// ObjectsInProcess returns the key of the sorted set of objects
// currently being worked on for a class.
func ObjectsInProcess(classID string) string {
	return fmt.Sprintf("objects-in-process:class:%s", classID)
}

// ProcessedObjects returns the key of the sorted set of objects whose
// processing has completed for a class.
func ProcessedObjects(classID string) string {
	return fmt.Sprintf("processed-objects:class:%s", classID)
}

// ClassesMonitored returns the key of the score-ordered queue of
// classes awaiting selection for a class type.
func ClassesMonitored(classType string) string {
	return fmt.Sprintf("classes-monitored:%s", classType)
}

// ClassesInProcess returns the key of the sorted set of claimed
// classes for a class type.
func ClassesInProcess(classType string) string {
	return fmt.Sprintf("classes-in-process:%s", classType)
}

// ValidateID rejects identifiers that would collide with the key
// delimiter. Keys are built by plain concatenation, so an identifier
// containing ':' could alias another entity's key.
func ValidateID(id string) error {
	if id == "" {
		return errs.InvalidArgument("identifier must not be empty")
	}
	if strings.ContainsRune(id, ':') {
		return errs.InvalidArgument(fmt.Sprintf("identifier %q must not contain ':'", id))
	}
	return nil
}
