package browser

// Page returns the session's page as the engine-facing Page interface.
func (s *Session) Page() Page {
	return &pwPage{page: s.page}
}

// close releases page, context and browser, in that order, and returns the first
// error. Every step runs even when an earlier one fails.
func (s *Session) close() error {
	var first error
	for _, closeFn := range []func() error{
		func() error { return s.page.Close() },
		func() error { return s.context.Close() },
		func() error { return s.browser.Close() },
	} {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
