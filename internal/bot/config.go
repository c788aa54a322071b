package bot

import (
	"golang.org/x/time/rate"
)

// Config binds the bot to one classroom
type Config struct {
	TeacherChatID int64
	StudentChatID int64
	// Intake size used when /session has no count
	IntakeSize int
	// Inbound updates allowed per second per chat, with burst
	RateLimit rate.Limit
	RateBurst int
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() Config {
	return Config{
		IntakeSize: 5,
		RateLimit:  2,
		RateBurst:  5,
	}
}
