package queue

import (
	"fmt"
	"strings"
)

// qualifiedStructName names a payload type, e.g. "main.SendReport".
func qualifiedStructName(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}
