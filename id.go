package approve

import "github.com/xraph/approve/id"

// ID is the primary identifier type for all Approve entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
