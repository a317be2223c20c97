package subhub

import "github.com/xraph/subhub/id"

// ID is the identifier type for SubHub records.
type ID = id.ID

// Prefix identifies the record type encoded in a TypeID.
type Prefix = id.Prefix
