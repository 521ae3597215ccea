// Package form is the state store for one schema instance. It owns the form
// values and the derived per-field state, and it orchestrates the predicate
// evaluator, the options resolver, the validation runner and the persistence
// manager whenever a value changes.
//
//	f, err := form.New(s, form.WithStorage(store), form.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//
//	_ = f.SetValue("role", "admin")
//	state, _ := f.State("adminCode") // state.Visible == true
//
// Asynchronous option providers and validators run in goroutines; Settle
// waits for them. Subscribers receive change events in order on a separate
// goroutine.
package form
