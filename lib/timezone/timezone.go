package timezone

import (
	"time"
	_ "time/tzdata"
)

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Africa/Harare")
	if err != nil {
		panic(err)
	}
}

// every branch and the VisionPlus server itself run on Harare time, dates
// rendered for the remote forms must use the same calendar day
func Now() time.Time {
	return time.Now().In(Location)
}
