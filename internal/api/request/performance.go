package request

// PerformanceQuery carries the decoded query parameters of a performance
// computation request.
type PerformanceQuery struct {
	Institution string
	From        string
	To          string
}
