package vpsync

import (
	"visionsync-backend/lib/telemetry"
)

var tracer = telemetry.Tracer("visionsync.services.vpsync")
var meter = telemetry.Meter("visionsync.services.vpsync")

var syncOutcomes, _ = meter.Int64Counter("vpsync.sync_outcomes")
var authFailures, _ = meter.Int64Counter("vpsync.authentication_failures")
var escalations, _ = meter.Int64Counter("vpsync.escalations")
