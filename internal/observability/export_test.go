package observability

// Internal constructors exercised by the external tests.
var (
	BuildResource = buildResource
	SelectSampler = selectSampler
)
