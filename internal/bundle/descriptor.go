// Package bundle covers documentation bundle metadata and lifecycle:
// descriptors, archive extraction, loading from remote storage, and
// hot-swapping new revisions into the registry.
package bundle

// Descriptor identifies a documentation bundle. Identifier is a
// reverse-DNS name ("com.example.docs"); DisplayName is what the
// renderer shows. Versioning policy (tag ordering, compatibility) is
// owned by the publishing pipeline, not this server - descriptors
// carry whatever tags they were given.
type Descriptor struct {
	DisplayName string `json:"displayName"`
	Identifier  string `json:"identifier"`
}
