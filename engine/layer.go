package engine

import (
	"bytes"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Media types of wasm image layers.
const (
	MediaTypeWasmModule     = "application/vnd.w3c.wasm.module.v1+wasm"
	MediaTypeWasmComponent  = "application/vnd.bytecodealliance.wasm.component.layer.v0+wasm"
	MediaTypeWasmPrecompile = "application/vnd.runwasi.precompiled.v1"
)

var wasmMagic = []byte{0x00, 'a', 's', 'm'}

// WasmLayer is one content addressed layer of a wasm image.
type WasmLayer struct {
	Config ocispec.Descriptor
	Layer  []byte
}

// NewWasmLayer describes b as a wasm module layer.
func NewWasmLayer(b []byte) WasmLayer {
	return WasmLayer{
		Config: ocispec.Descriptor{
			MediaType: MediaTypeWasmModule,
			Digest:    digest.FromBytes(b),
			Size:      int64(len(b)),
		},
		Layer: b,
	}
}

// IsWasmMediaType reports whether mt is a wasm module or component layer.
func IsWasmMediaType(mt string) bool {
	return mt == MediaTypeWasmModule || mt == MediaTypeWasmComponent
}

// IsWasm reports whether b starts with the wasm binary magic.
func IsWasm(b []byte) bool {
	return bytes.HasPrefix(b, wasmMagic)
}
