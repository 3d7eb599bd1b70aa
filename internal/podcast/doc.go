// Package podcast defines the catalog entities: papers, episodes, and the
// episode status lifecycle. Entities can only be built through validating
// constructors and transitions, so an invalid episode never reaches storage.
package podcast
