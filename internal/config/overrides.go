package config

// Overrides carries the command-line values that were explicitly set.
// A nil field leaves the loaded configuration untouched.
type Overrides struct {
	Bin            *string
	Sancov         *string
	PySancov       *string
	LLVMSymbolizer *string
	Sanitizer      *string
	SancovBug      *bool
	MaxDepth       *int
	DDNum          *int
	Format         *string
	Ledger         *string
	NoStash        *bool
	CacheEntries   *int
	MetricsAddr    *string
}

// Apply merges the set overrides into c and re-validates the result.
func (c *Config) Apply(o Overrides) error {
	applyValue(&c.Tools.Bin, o.Bin)
	applyValue(&c.Tools.Sancov, o.Sancov)
	applyValue(&c.Tools.PySancov, o.PySancov)
	applyValue(&c.Tools.LLVMSymbolizer, o.LLVMSymbolizer)
	applyValue(&c.Sanitizer, o.Sanitizer)
	applyValue(&c.SancovBug, o.SancovBug)
	applyValue(&c.Ancestry.MaxDepth, o.MaxDepth)
	applyValue(&c.Analysis.DDNum, o.DDNum)
	applyValue(&c.Output.Format, o.Format)
	applyValue(&c.Output.Ledger, o.Ledger)
	applyValue(&c.Cache.MaxEntries, o.CacheEntries)
	applyValue(&c.Telemetry.MetricsAddr, o.MetricsAddr)

	if o.NoStash != nil {
		c.Stash.Enabled = !*o.NoStash
	}

	return c.Validate()
}

// applyValue sets *dst = *src when src is non-nil.
func applyValue[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
