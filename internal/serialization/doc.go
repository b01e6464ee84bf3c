// Package serialization stores named buffers in the .bbuf container format
// and loads them back, either by copying into freshly allocated buffers or by
// memory-mapping the file and wrapping its bytes without a copy.
//
//	Format Structure:
//	  [64 bytes: fixed header]
//	    magic "BBUF", version, flags, JSON header size, data size,
//	    SHA-256 of the data section
//	  [Header: JSON metadata]
//	  [padding to 64 bytes]
//	  [Data section: each buffer's bytes, 64-byte aligned]
//
// Every buffer starts on a 64-byte boundary, so a memory-mapped file can be
// read in place for any element type.
//
// Example usage:
//
//	// Save buffers
//	w, err := serialization.NewWriter("weights.bbuf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = w.Write([]serialization.NamedBuffer{{Name: "w", Buffer: weights}}, nil)
//	w.Close()
//
//	// Map and read in place
//	r, err := serialization.NewMmapReader("weights.bbuf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//	b, err := r.Buffer("w")
package serialization
