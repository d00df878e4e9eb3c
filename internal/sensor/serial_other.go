//go:build !linux

package sensor

import (
	"errors"
	"io"
)

func OpenSerial(path string, baud int) (io.ReadWriteCloser, error) {
	if _, ok := supportedBauds[baud]; !ok {
		return nil, ErrUnsupportedBaud
	}
	return nil, errors.New("serial ports are only supported on linux")
}

var supportedBauds = map[int]struct{}{9600: {}, 19200: {}, 38400: {}, 57600: {}, 115200: {}}
