package corda

import "github.com/Lupupam/corda/id"

// ID is the primary identifier type for all Corda entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
