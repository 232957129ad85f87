package settings

import "github.com/spf13/afero"

// fs is swapped for an in-memory filesystem in tests.
var fs = afero.NewOsFs()
