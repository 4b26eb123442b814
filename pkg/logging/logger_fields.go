package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Component field helpers for common component names
func Component(name string) Field {
	return String("component", name)
}

// SourceID identifies the edge source whose metadata row is being touched.
func SourceID(id uint64) Field {
	return Uint64("source_id", id)
}

// DestinationID identifies the edge destination in a write or read.
func DestinationID(id uint64) Field {
	return Uint64("destination_id", id)
}

// ShardID identifies the physical shard an operation or error belongs to.
func ShardID(id string) Field {
	return String("shard_id", id)
}

func Operation(op string) Field {
	return String("operation", op)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}

// Tries reports the retry attempt number for a deadlock or position-collision retry.
func Tries(n int) Field {
	return Int("tries", n)
}

// CursorValue reports the raw signed cursor integer carried in a paginated read.
func CursorValue(c int64) Field {
	return Int64("cursor", c)
}
