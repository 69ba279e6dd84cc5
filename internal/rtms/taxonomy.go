package rtms

// Category is one of the fixed error categories every RTMS error carries.
type Category string

const (
	CategoryAuth       Category = "auth"
	CategoryMeeting    Category = "meeting"
	CategoryStream     Category = "stream"
	CategoryPermission Category = "permission"
	CategoryNetwork    Category = "network"
	CategoryServer     Category = "server"
	CategoryLimit      Category = "limit"
	CategoryMedia      Category = "media"
	CategoryProtocol   Category = "protocol"
	CategorySecurity   Category = "security"
	CategoryConnection Category = "connection"
	CategoryRequest    Category = "request"
	CategorySDK        Category = "sdk"
	CategoryConfig     Category = "config"
	CategoryUnknown    Category = "unknown"
)

// statusCategory maps a vendor handshake status_code to its error category.
// Fixed table per spec.md §7.
var statusCategory = map[int]Category{
	1:  CategoryAuth,
	2:  CategoryAuth,
	5:  CategoryMeeting,
	10: CategoryServer,
	11: CategoryServer,
	12: CategoryNetwork,
	13: CategoryMeeting,
	15: CategoryAuth,
	16: CategoryMedia,
	17: CategorySecurity,
	18: CategoryAuth,
}

// CategoryForStatus resolves a vendor status_code to its category, falling
// back to CategoryUnknown for codes not in the fixed table.
func CategoryForStatus(statusCode int) Category {
	if cat, ok := statusCategory[statusCode]; ok {
		return cat
	}
	return CategoryUnknown
}

// nonRetryableCategories disable reconnect and require the caller to stop
// routing traffic to the stream.
var nonRetryableCategories = map[Category]bool{
	CategoryAuth:     true,
	CategorySecurity: true,
	CategoryRequest:  true,
	CategoryMeeting:  true,
	CategoryStream:   true,
}

// Retryable reports whether a session should reconnect after an error in
// this category.
func Retryable(cat Category) bool {
	return !nonRetryableCategories[cat]
}
