package vkt

import (
	"unsafe"
)

var end = "\x00"
var endChar byte = '\x00'

// ToBytes converts an unsafe.Pointer plus length into a byte slice backed by
// the same memory.
func ToBytes(ptr unsafe.Pointer, lenInBytes int) []byte {
	const m = 0x7fffffff
	return (*[m]byte)(ptr)[:lenInBytes]
}

// safeString null terminates a string for handoff to the C API.
func safeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func safeStrings(list []string) []string {
	for i := range list {
		list[i] = safeString(list[i])
	}
	return list
}
