package value

import "os"

// statFunc is swappable in tests so file/dir warnings don't depend on the
// real filesystem.
var statFunc = os.Stat
