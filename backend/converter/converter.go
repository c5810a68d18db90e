package converter

type Converter interface {
	// To serializes the given value
	To(v any) ([]byte, error)

	// From deserializes data into the given pointer
	From(data []byte, vptr any) error
}

var DefaultConverter Converter = &jsonConverter{}
