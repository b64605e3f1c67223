package quota

import "strings"

// InferPurpose guesses a task Purpose from message content when no
// explicit model was requested. text is the lowercase-concatenation of
// every message's text content.
func InferPurpose(text string) Purpose {
	lower := strings.ToLower(text)
	length := len(text)

	switch {
	case strings.Contains(lower, "critical") || strings.Contains(lower, "important"):
		return PurposeCriticalTask
	case strings.Contains(lower, "summarize") || strings.Contains(lower, "summary"):
		if length > 10000 {
			return PurposeBulkProcessing
		}
		return PurposeQuickSummary
	case strings.Contains(lower, "analyze") || strings.Contains(lower, "analysis"):
		if strings.Contains(lower, "detailed") || strings.Contains(lower, "comprehensive") {
			return PurposeDetailedAnalysis
		}
		return PurposeStandardAnalysis
	}

	switch {
	case length > 20000:
		return PurposeDetailedAnalysis
	case length < 5000:
		return PurposeQuickSummary
	default:
		return PurposeStandardAnalysis
	}
}
