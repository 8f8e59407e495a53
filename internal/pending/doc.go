// Package pending is the Pending-Operation Correlator.
//
// When a plugin answers "this will complete later", the runtime calls
// Begin and hands the returned operation id to the plugin. The
// dispatcher registers a resume callback with OnResolve; the plugin's
// completion callback (or the deadline) resolves the operation and the
// callback writes the response to the original client.
//
// Every operation is resolved exactly once. A second Resolve, or a
// Resolve after the deadline, returns false and is logged.
package pending
