// Package mirror keeps an in-memory, always-latest copy of every site collection.
//
// [Mirror.Activate] opens one subscription per collection. Each delivered snapshot replaces the
// local copy of that collection wholesale; diary posts are stored newest first, everything else in
// arrival order, and the settings record is merged over the current local value so fields the store
// does not hold keep their defaults. Subscription errors leave the last good copy in place.
//
// Callbacks carry the generation they were registered under. [Mirror.Deactivate] bumps the
// generation, so a snapshot delivered after teardown (or after a later re-activation) is dropped
// without touching state.
//
// The first activation of a session increments the visitor counter once; the [SessionMarker]
// remembers that across re-activations.
package mirror
