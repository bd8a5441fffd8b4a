// Package overlap rewrites long text into dialogue one window at a time.
//
// Each window after the first overlaps its predecessor, is prompted with the
// last few turns already produced, and is told not to wrap up unless it is the
// last one. Sign-offs that slip through in middle windows are cut, and the
// first turns of every continuation are dropped to remove the repeated
// overlap. A window whose answer defeats the parser gets one repair request
// and then falls back to a single-speaker monologue.
package overlap
