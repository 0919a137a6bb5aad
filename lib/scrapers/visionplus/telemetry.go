package visionplus

import (
	"visionsync-backend/lib/restyutil"
	"visionsync-backend/lib/telemetry"
)

var tracer = telemetry.Tracer("visionsync.lib.scrapers.visionplus")
var restyInstrumentOutput restyutil.InstrumentOutput

// SetRestyInstrumentOutput makes every client created afterwards dump its raw
// exchanges to out.
func SetRestyInstrumentOutput(out restyutil.InstrumentOutput) {
	restyInstrumentOutput = out
}
