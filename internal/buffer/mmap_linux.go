//go:build linux

package buffer

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// newDoubleMapping reserves a contiguous 2*size*8-byte region and maps the
// same memfd-backed physical pages into both halves, so that a Sample
// slice of length 2*sizeSamples aliases [0:sizeSamples] onto
// [sizeSamples:2*sizeSamples]. This is the "magic ring buffer" trick.
func newDoubleMapping(sizeSamples int) ([]Sample, bool) {
	if sizeSamples <= 0 {
		return nil, false
	}

	const bytesPerSample = 8 // complex64: two float32 components
	length := sizeSamples * bytesPerSample

	pageSize := unix.Getpagesize()
	if length%pageSize != 0 {
		return nil, false
	}

	fd, err := unix.MemfdCreate("sdrcore-ringbuf", 0)
	if err != nil {
		return nil, false
	}
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(length)); err != nil {
		return nil, false
	}

	// Reserve a contiguous 2*length region so both halves land adjacently.
	reservation, err := unix.Mmap(-1, 0, 2*length, unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, false
	}
	base := uintptr(unsafe.Pointer(&reservation[0]))

	if _, err := mmapFixed(fd, 0, base, uintptr(length)); err != nil {
		_ = unix.Munmap(reservation)
		return nil, false
	}
	if _, err := mmapFixed(fd, 0, base+uintptr(length), uintptr(length)); err != nil {
		_ = unix.Munmap(reservation)
		return nil, false
	}

	samples := unsafe.Slice((*Sample)(unsafe.Pointer(base)), sizeSamples*2)
	return samples, true
}

// mmapFixed overlays fd's contents at offset onto the page(s) starting at
// addr, requiring the kernel to place the mapping at exactly that address
// (MAP_FIXED) and sharing the same physical pages as any other mapping of
// the same fd (MAP_SHARED).
func mmapFixed(fd int, offset int64, addr, length uintptr) (uintptr, error) {
	ret, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		addr,
		length,
		uintptr(unix.PROT_READ|unix.PROT_WRITE),
		uintptr(unix.MAP_SHARED|unix.MAP_FIXED),
		uintptr(fd),
		uintptr(offset),
	)
	if errno != 0 {
		return 0, errno
	}
	return ret, nil
}
