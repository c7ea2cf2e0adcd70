package util

import (
	"fmt"

	"github.com/vmihailenco/msgpack"

	"github.com/kamau/pembe/storage/disk"
)

// ToByteSlice renders obj into a full PAGE_SIZE buffer, ready to be copied
// into a frame. The encoded form must fit in one page.
func ToByteSlice[T any](obj T) ([]byte, error) {
	data, err := msgpack.Marshal(obj)
	if err != nil {
		return nil, err
	}

	if len(data) > disk.PAGE_SIZE {
		return nil, fmt.Errorf("encoded page is %d bytes, page size is %d", len(data), disk.PAGE_SIZE)
	}

	res := make([]byte, disk.PAGE_SIZE)
	copy(res, data)
	return res, nil
}

// ToStruct decodes the typed page layout sitting at the front of a frame's
// bytes. Trailing zero padding after the encoded object is ignored.
func ToStruct[T any](data []byte) (T, error) {
	var res T

	if err := msgpack.Unmarshal(data, &res); err != nil {
		return res, err
	}

	return res, nil
}
