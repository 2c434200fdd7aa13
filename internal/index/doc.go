// Package index resolves and caches the operation surface of managed classes.
//
// A managed class is a Go struct type used through a pointer. Its "superclass
// chain" is the tree of exported embedded struct fields, walked depth-first;
// depth 0 is the class itself.
//
// Operations are exported methods with one of these shapes:
//
//	func (c *T) Op([ctx context.Context,] params...)
//	func (c *T) Op([ctx context.Context,] params...) R
//	func (c *T) Op([ctx context.Context,] params...) error
//	func (c *T) Op([ctx context.Context,] params...) (R, error)
//
// The logical name of an operation is its method name up to the first
// underscore, so Notify_Mail and Notify_Sms are two overloads of "Notify".
//
// Shadowing rules:
//   - An embedded method with the same name and signature as a shallower one
//     is hidden; both occurrences collapse into a single descriptor.
//   - An embedded method with the same name but another signature stays
//     visible and is invoked through its field path.
//
// Go reflection cannot tell a declared method from a promoted one, so a
// collapsed descriptor reports the deepest type that carries the signature
// as its declaring class. Dispatch still goes through the shallowest method
// set, which always selects the override.
//
// Thread-safety: an Index may be shared by any number of goroutines. Cache
// population races are resolved with sync.Map.LoadOrStore; every racer builds
// an equivalent value and readers never block.
package index
