package wita

import "time"

// Zone is Central Indonesia Time (Asia/Makassar, UTC+8). A fixed zone keeps
// the binary independent of the host tzdata.
var Zone = time.FixedZone("WITA", 8*60*60)

// Now returns the current wall-clock time in WITA. All persisted timestamps
// use this clock so records sort the way the shop reads them.
func Now() time.Time {
	return time.Now().In(Zone)
}
