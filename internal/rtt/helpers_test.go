package rtt

import "bytes"

func bufferOf(s string) *bytes.Buffer {
	return bytes.NewBufferString(s)
}
