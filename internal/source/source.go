package source

import "time"

// now is swappable in tests that need deterministic sample timestamps.
var now = time.Now
