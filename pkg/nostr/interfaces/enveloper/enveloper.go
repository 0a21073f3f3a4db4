package enveloper

import (
	"encoding/json"
	"fmt"
)

// I is a protocol message: a JSON array whose first element is its label.
type I interface {
	Label() string
	fmt.Stringer
	json.Marshaler
	json.Unmarshaler
}
