package codec

// ICodec is the interface for all value codecs. A codec turns the typed
// values of the higher layers into the opaque byte slices the storage layer
// works with.
type ICodec interface {
	// Encode serializes a value into a byte array.
	// It returns the serialized byte array and an error if any.
	Encode(v interface{}) ([]byte, error)
	// Decode deserializes a byte array into the value pointed to by v.
	// It returns an error if any.
	Decode(b []byte, v interface{}) error
}
