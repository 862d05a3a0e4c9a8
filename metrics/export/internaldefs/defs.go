package internaldefs

import (
	"github.com/MrEthical07/sessionguard"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   sessionguard.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   sessionguard.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: sessionguard.MetricSignUpSuccess, Name: "sessionguard_signup_success_total", Help: "Successful sign-ups."},
	{ID: sessionguard.MetricSignUpFailure, Name: "sessionguard_signup_failure_total", Help: "Failed sign-ups."},
	{ID: sessionguard.MetricSignUpDuplicate, Name: "sessionguard_signup_duplicate_total", Help: "Sign-ups rejected because the e-mail is taken."},
	{ID: sessionguard.MetricSignInSuccess, Name: "sessionguard_signin_success_total", Help: "Successful sign-ins."},
	{ID: sessionguard.MetricSignInFailure, Name: "sessionguard_signin_failure_total", Help: "Failed sign-ins."},
	{ID: sessionguard.MetricSignInRateLimited, Name: "sessionguard_signin_rate_limited_total", Help: "Sign-ins refused by the throttle."},
	{ID: sessionguard.MetricRefreshSuccess, Name: "sessionguard_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: sessionguard.MetricRefreshFailure, Name: "sessionguard_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: sessionguard.MetricRefreshExpired, Name: "sessionguard_refresh_expired_total", Help: "Refreshes presenting an expired token."},
	{ID: sessionguard.MetricRefreshReuseDetected, Name: "sessionguard_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: sessionguard.MetricSignOut, Name: "sessionguard_signout_total", Help: "Single-session sign-outs."},
	{ID: sessionguard.MetricSignOutAll, Name: "sessionguard_signout_all_total", Help: "Sign-outs of every session of a user."},
	{ID: sessionguard.MetricAccountLocked, Name: "sessionguard_account_locked_total", Help: "Accounts locked by reuse or replay escalation."},
	{ID: sessionguard.MetricSelfServiceSend, Name: "sessionguard_selfservice_send_total", Help: "Self-service links sent."},
	{ID: sessionguard.MetricSelfServiceSendSilent, Name: "sessionguard_selfservice_send_silent_total", Help: "Self-service sends for unknown e-mails."},
	{ID: sessionguard.MetricSelfServiceRateLimited, Name: "sessionguard_selfservice_rate_limited_total", Help: "Self-service sends refused by the attempt limiter."},
	{ID: sessionguard.MetricSelfServiceConfirmSuccess, Name: "sessionguard_selfservice_confirm_success_total", Help: "Successful self-service confirmations."},
	{ID: sessionguard.MetricSelfServiceConfirmFailure, Name: "sessionguard_selfservice_confirm_failure_total", Help: "Failed self-service confirmations."},
	{ID: sessionguard.MetricSelfServiceConfirmDuplicate, Name: "sessionguard_selfservice_confirm_duplicate_total", Help: "Repeated confirmations inside the replay window."},
	{ID: sessionguard.MetricSelfServiceReplayDetected, Name: "sessionguard_selfservice_replay_detected_total", Help: "Confirm tokens replayed after the replay window."},
	{ID: sessionguard.MetricMailQueued, Name: "sessionguard_mail_queued_total", Help: "Mail jobs queued for delivery."},
	{ID: sessionguard.MetricMailSent, Name: "sessionguard_mail_sent_total", Help: "Mail jobs delivered."},
	{ID: sessionguard.MetricMailFailed, Name: "sessionguard_mail_failed_total", Help: "Mail jobs that failed delivery."},
	{ID: sessionguard.MetricMailDropped, Name: "sessionguard_mail_dropped_total", Help: "Mail jobs dropped because the queue was full."},
}

var HistogramDefs = []HistogramDef{
	{ID: sessionguard.MetricSignInLatency, Name: "sessionguard_signin_latency_seconds", Help: "Sign-in latency histogram."},
	{ID: sessionguard.MetricRefreshLatency, Name: "sessionguard_refresh_latency_seconds", Help: "Refresh latency histogram."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "sessionguard_audit_dropped_total"

// HistogramBounds are the upper bounds, in seconds, of the engine buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix spells HistogramBounds for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies a snapshot histogram into a fixed array. Missing
// buckets read as zero.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into le-style running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
