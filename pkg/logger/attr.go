package logger

import (
	"log/slog"
	"time"
)

// Error records err under "error". A nil error yields an empty attr, which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

func CampaignID(id string) slog.Attr {
	return slog.String("campaign_id", id)
}

func PlanID(id string) slog.Attr {
	return slog.String("plan_id", id)
}

// Provider records the delivery backend name.
func Provider(name string) slog.Attr {
	return slog.String("provider", name)
}

func Recipient(addr string) slog.Attr {
	return slog.String("recipient", addr)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func EventType(t string) slog.Attr {
	return slog.String("event_type", t)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Count records an integer tally under the given key.
func Count(key string, n int) slog.Attr {
	return slog.Int(key, n)
}
