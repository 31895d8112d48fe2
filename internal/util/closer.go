package util

// DoOnErrOrPanic calls f if the value of err is not nil or if the goroutine is
// panicking. If there is a panic, it is rethrown.
//
// It must be deferred with a pointer to the named return error, so f sees the
// final value of the error:
//
//	func run() (retErr error) {
//		defer DoOnErrOrPanic(&retErr, func() {
//			logger.Errorf("the database may be in a dirty state")
//		})
//		...
//	}
func DoOnErrOrPanic(err *error, f func()) {
	p := recover()
	if *err != nil || p != nil {
		f()
	}
	if p != nil {
		panic(p)
	}
}
