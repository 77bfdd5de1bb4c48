package cache

import "fmt"

// TranslationError reports a module that failed to translate. Failures are
// never cached; a later request for the same fingerprint retries.
type TranslationError struct {
	Fingerprint Fingerprint
	Err         error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translate module %s: %v", e.Fingerprint.Short(), e.Err)
}

func (e *TranslationError) Unwrap() error {
	return e.Err
}
