package component

// Registerable is implemented by components that carry their own
// registry metadata, as an alternative to the package-level Register
// functions the built-in inputs, the join processor, and the outputs use.
type Registerable interface {
	Registration() Registration
}
