package plate

import (
	"errors"
	"fmt"
)

// InvalidRecordError reports a raw record that cannot be normalized.
type InvalidRecordError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid record: %s: %s (%q)", e.Field, e.Reason, e.Value)
}

// IsInvalidRecord returns true if err (or any error in its chain) is an InvalidRecordError.
func IsInvalidRecord(err error) bool {
	var ire *InvalidRecordError
	return errors.As(err, &ire)
}
