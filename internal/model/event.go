package model

// Event levels
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// Event categories
const (
	EventCategoryAuth     = "auth"
	EventCategoryUser     = "user"
	EventCategorySecurity = "security"
	EventCategoryMail     = "mail"
	EventCategorySystem   = "system"
)
