// Package wasmtest holds small hand assembled wasm modules for tests.
package wasmtest

var header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func module(sections ...[]byte) []byte {
	out := append([]byte(nil), header...)
	for _, s := range sections {
		out = append(out, s...)
	}
	return out
}

// Basic exports:
//
//	_start: () -> ()          returns immediately
//	boom:   () -> ()          executes unreachable
//	add:    (i32, i32) -> i32
var Basic = module(
	[]byte{0x01, 0x0a, 0x02, 0x60, 0x00, 0x00, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f},
	[]byte{0x03, 0x04, 0x03, 0x00, 0x00, 0x01},
	[]byte{0x07, 0x17, 0x03,
		0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00,
		0x04, 'b', 'o', 'o', 'm', 0x00, 0x01,
		0x03, 'a', 'd', 'd', 0x00, 0x02,
	},
	[]byte{0x0a, 0x10, 0x03,
		0x02, 0x00, 0x0b,
		0x03, 0x00, 0x00, 0x0b,
		0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
	},
)

var wasiModule = []byte{0x16,
	'w', 'a', 's', 'i', '_', 's', 'n', 'a', 'p', 's', 'h', 'o', 't', '_',
	'p', 'r', 'e', 'v', 'i', 'e', 'w', '1',
}

var procExitImport = append(append([]byte{0x02, 0x24, 0x01}, wasiModule...),
	0x09, 'p', 'r', 'o', 'c', '_', 'e', 'x', 'i', 't', 0x00, 0x00)

// Exit calls proc_exit(3) from _start. WASI hosts require the memory
// export even for calls that do not touch memory.
var Exit = module(
	[]byte{0x01, 0x08, 0x02, 0x60, 0x01, 0x7f, 0x00, 0x60, 0x00, 0x00},
	procExitImport,
	[]byte{0x03, 0x02, 0x01, 0x01},
	[]byte{0x05, 0x03, 0x01, 0x00, 0x01},
	[]byte{0x07, 0x13, 0x02,
		0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x01,
		0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	},
	[]byte{0x0a, 0x08, 0x01, 0x06, 0x00, 0x41, 0x03, 0x10, 0x00, 0x0b},
)

// StartExit calls proc_exit(5) from its start section, before any export
// can be resolved.
var StartExit = module(
	[]byte{0x01, 0x08, 0x02, 0x60, 0x01, 0x7f, 0x00, 0x60, 0x00, 0x00},
	procExitImport,
	[]byte{0x03, 0x03, 0x02, 0x01, 0x01},
	[]byte{0x05, 0x03, 0x01, 0x00, 0x01},
	[]byte{0x07, 0x13, 0x02,
		0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x01,
		0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	},
	[]byte{0x08, 0x01, 0x02},
	[]byte{0x0a, 0x0b, 0x02,
		0x02, 0x00, 0x0b,
		0x06, 0x00, 0x41, 0x05, 0x10, 0x00, 0x0b,
	},
)

// StartTrap executes unreachable in its start section. Its _start is a
// no-op that is never reached.
var StartTrap = module(
	[]byte{0x01, 0x04, 0x01, 0x60, 0x00, 0x00},
	[]byte{0x03, 0x03, 0x02, 0x00, 0x00},
	[]byte{0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00},
	[]byte{0x08, 0x01, 0x01},
	[]byte{0x0a, 0x08, 0x02,
		0x02, 0x00, 0x0b,
		0x03, 0x00, 0x00, 0x0b,
	},
)

// HelloOutput is what Hello writes to stdout.
const HelloOutput = "hi\n"

// Hello writes HelloOutput to fd 1 with fd_write from _start.
var Hello = module(
	[]byte{0x01, 0x0c, 0x02, 0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f, 0x60, 0x00, 0x00},
	append(append([]byte{0x02, 0x23, 0x01}, wasiModule...),
		0x08, 'f', 'd', '_', 'w', 'r', 'i', 't', 'e', 0x00, 0x00),
	[]byte{0x03, 0x02, 0x01, 0x01},
	[]byte{0x05, 0x03, 0x01, 0x00, 0x01},
	[]byte{0x07, 0x13, 0x02,
		0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x01,
		0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	},
	[]byte{0x0a, 0x0f, 0x01, 0x0d, 0x00,
		0x41, 0x01, 0x41, 0x00, 0x41, 0x01, 0x41, 0x14,
		0x10, 0x00, 0x1a, 0x0b,
	},
	// iovec{buf: 8, len: 3} at 0, "hi\n" at 8
	[]byte{0x0b, 0x11, 0x01, 0x00, 0x41, 0x00, 0x0b, 0x0b,
		0x08, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00, 'h', 'i', '\n',
	},
)

// Spin loops forever in _start.
var Spin = module(
	[]byte{0x01, 0x04, 0x01, 0x60, 0x00, 0x00},
	[]byte{0x03, 0x02, 0x01, 0x00},
	[]byte{0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00},
	[]byte{0x0a, 0x09, 0x01, 0x07, 0x00, 0x03, 0x40, 0x0c, 0x00, 0x0b, 0x0b},
)

// Malformed inputs that no runtime accepts.
var (
	Empty      = []byte{}
	BadMagic   = []byte{0x00, 0x61, 0x73, 0x00, 0x01, 0x00, 0x00, 0x00}
	BadVersion = []byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00}
	Truncated  = Basic[:len(Basic)-5]
	NotAModule = []byte("#!/bin/sh\necho hello\n")
)
