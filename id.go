package cmdq

import "github.com/xraph/cmdq/id"

// ID is the primary identifier type for all cmdq entities.
type ID = id.ID

// Prefix identifies the entity type encoded in an ID.
type Prefix = id.Prefix
