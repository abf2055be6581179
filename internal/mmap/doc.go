// Package mmap maps files read-only into memory.
//
//	m, err := mmap.Open("records/00000000000000000042")
//	if err != nil { ... }
//	defer m.Close()
//	data := m.Bytes()
//
// On unix the mapping uses mmap(2) with madvise(2) hints; on windows it uses
// CreateFileMapping/MapViewOfFile and Advise is a no-op.
//
// A Mapping is safe for concurrent reads. Slices returned by Bytes are only
// valid until Close.
package mmap
