package entity

import "fmt"

// Data is the new value of a metadata key: either a value or unset
type Data struct {
	value interface{}
	isSet bool
}

// Value returns Data which sets the key to v
func Value(v interface{}) Data {
	return Data{value: v, isSet: true}
}

// Unset returns Data which deletes the key
func Unset() Data {
	return Data{}
}

// DataOf converts a host value to Data. nil means unset.
func DataOf(v interface{}) Data {
	if v == nil {
		return Unset()
	}
	return Value(v)
}

// IsSet returns if the Data carries a value
func (d Data) IsSet() bool {
	return d.isSet
}

// Get returns the value and if it is set
func (d Data) Get() (interface{}, bool) {
	return d.value, d.isSet
}

func (d Data) String() string {
	if !d.isSet {
		return "Unset"
	}
	return fmt.Sprintf("Value(%v)", d.value)
}
