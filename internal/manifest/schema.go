package manifest

import (
	_ "embed"
)

//go:embed schema/descriptor.cue
var descriptorSchemaCUE []byte
