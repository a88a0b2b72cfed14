package types

// CloudWatch metric names and dimensions.
const (
	MetricAPILatency         = "APILatency"
	MetricAPIRequests        = "APIRequests"
	MetricDegradedMode       = "DegradedMode"
	MetricExternalAPIFailure = "ExternalAPIFailure"
	MetricHighRiskAlert      = "HighRiskAlert"
	MetricSweepDistricts     = "SweepDistricts"

	DimEndpoint = "Endpoint"
	DimMethod   = "Method"
	DimStatus   = "StatusCode"
	DimSource   = "Source"
	DimProvider = "Provider"

	MetricNamespace = "KrishiSat"
)
