// Package registry uploads published annul containers to an OCI registry.
//
// Each container becomes an OCI 1.1 artifact: an empty config, a single
// frames layer holding the container bytes, and a manifest tagged with the
// source file name.
package registry
