package model

// Warning codes emitted by the pipeline. Warnings degrade the affected metric
// but never abort a run.
const (
	WarningOrphanedClose        = "orphaned_close"
	WarningPriceMissing         = "price_missing"
	WarningUnmappedCurrency     = "unmapped_currency"
	WarningFXRateMissing        = "fx_rate_missing"
	WarningOptionExpiredNoPrice = "option_expired_no_price"
	WarningUnresolvedInstrument = "unresolved_instrument"
	WarningProvidersExhausted   = "providers_exhausted"
	WarningSnapshotDivergence   = "snapshot_divergence"
	WarningSourceUnavailable    = "source_unavailable"
)

// Warning is a structured data-quality notice attached to a pipeline result.
// A non-empty warnings list is informative, not failing.
type Warning struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Instrument string `json:"instrument,omitempty"`
	Date       string `json:"date,omitempty"`
}
