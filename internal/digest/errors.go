package digest

import (
	"fmt"
	"strings"
)

// CategoryFailure is a category whose digest could not be delivered.
type CategoryFailure struct {
	Category Category
	Err      error
}

// SendError reports the categories that failed in one run. Categories not
// listed were delivered or had no subscribers.
type SendError struct {
	Total    int
	Failures []CategoryFailure
}

func (e *SendError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "digest: %d of %d categories failed", len(e.Failures), e.Total)
	for i, f := range e.Failures {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %v", f.Category.Name, f.Err)
	}
	return b.String()
}

// Unwrap exposes the per-category causes to errors.Is and errors.As.
func (e *SendError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}
