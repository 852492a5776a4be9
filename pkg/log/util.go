package log

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// toFields turns logr-style keysAndValues into zap fields. Ready-made
// zap.Fields and bare errors may appear anywhere in the list and take a
// single slot.
func toFields(args ...any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i < len(args); i++ {
		switch a := args[i].(type) {
		case zap.Field:
			fields = append(fields, a)
			continue
		case error:
			fields = append(fields, zap.Error(a))
			continue
		}

		if i+1 == len(args) {
			fields = append(fields, zap.Any("extra", args[i]))
			break
		}

		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("key(%v)", args[i])
		}
		fields = append(fields, field(key, args[i+1]))
		i++
	}
	return fields
}

// field picks a typed constructor for the values that show up on hot
// paths (ids, modes, counts, durations) and falls back to zap.Any.
func field(key string, val any) zap.Field {
	switch v := val.(type) {
	case string:
		return zap.String(key, v)
	case bool:
		return zap.Bool(key, v)
	case int:
		return zap.Int(key, v)
	case int64:
		return zap.Int64(key, v)
	case uint64:
		return zap.Uint64(key, v)
	case float64:
		return zap.Float64(key, v)
	case time.Duration:
		return zap.Duration(key, v)
	case time.Time:
		return zap.Time(key, v)
	case error:
		return zap.NamedError(key, v)
	case fmt.Stringer:
		return zap.Stringer(key, v)
	case []byte:
		return zap.ByteString(key, v)
	}
	return zap.Any(key, val)
}
