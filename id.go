package atomizer

import "github.com/mnbuhl/atomizer/id"

// ID is the identifier type for all persisted Atomizer records.
type ID = id.ID
