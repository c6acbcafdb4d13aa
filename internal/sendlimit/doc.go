// Package sendlimit computes effective sending allowances for email
// accounts, including the warmup ramp for new accounts, and hands out
// atomic send reservations backed by Redis counters.
package sendlimit
