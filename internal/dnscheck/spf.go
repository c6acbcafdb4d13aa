package dnscheck

import "strings"

// Mail-provider SPF includes accepted as covering Google Workspace senders.
var googleSPFIncludes = []string{
	"include:_spf.gmail.com",
	"include:_spf.google.com",
}

// DefaultSPFRecord is recommended when a domain has no SPF record at all.
const DefaultSPFRecord = "v=spf1 include:_spf.gmail.com ~all"

// hasProviderInclude reports whether the SPF record already covers the
// mail provider.
func hasProviderInclude(record string) bool {
	for _, inc := range googleSPFIncludes {
		if strings.Contains(record, inc) {
			return true
		}
	}
	return false
}

// MergeSPFRecord inserts a mechanism into an existing SPF record,
// immediately before the trailing "all" qualifier so evaluation order is
// preserved. When the record has no "all" qualifier, the mechanism is
// appended and a soft-fail "~all" is added.
//
//	MergeSPFRecord("v=spf1 a mx -all", "include:_spf.gmail.com")
//	  → "v=spf1 a mx include:_spf.gmail.com -all"
func MergeSPFRecord(existing, mechanism string) string {
	fields := strings.Fields(existing)

	allIdx := -1
	for i, f := range fields {
		if isAllQualifier(f) {
			allIdx = i
		}
	}

	if allIdx == -1 {
		return strings.Join(append(fields, mechanism, "~all"), " ")
	}

	merged := make([]string, 0, len(fields)+1)
	merged = append(merged, fields[:allIdx]...)
	merged = append(merged, mechanism)
	merged = append(merged, fields[allIdx:]...)
	return strings.Join(merged, " ")
}

// recommendSPF produces the suggested replacement for a broken SPF
// posture, starting from the first record found and ensuring provider
// coverage.
func recommendSPF(record string) string {
	if hasProviderInclude(record) {
		return record
	}
	return MergeSPFRecord(record, googleSPFIncludes[0])
}

func isAllQualifier(field string) bool {
	switch field {
	case "all", "+all", "-all", "~all", "?all":
		return true
	}
	return false
}
