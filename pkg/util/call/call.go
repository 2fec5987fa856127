package call

import "errors"

// Call is a deferred error-returning function
type Call func() error

// Perform runs calls in order and stops on the first error
func Perform(calls ...Call) error {
	for _, call := range calls {
		if err := call(); err != nil {
			return err
		}
	}
	return nil
}

// All runs every call, even after one fails, and joins their errors
func All(calls ...Call) error {
	var errs []error
	for _, call := range calls {
		if err := call(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
