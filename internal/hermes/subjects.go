package hermes

const (
	SubjectRosterReload = "cortex.roster.reload"
	SubjectLedgerReset  = "cortex.ledger.reset"

	StreamName   = "CORTEX_EVENTS"
	StreamMaxAge = "720h" // 30 days
)

func SubjectAssigned(modality string) string  { return "cortex.assignment." + modality + ".assigned" }
func SubjectUnmatched(modality string) string { return "cortex.assignment." + modality + ".unmatched" }
func SubjectReset(modality string) string     { return "cortex.ledger." + modality + ".reset" }
