package wasmtimeengine

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/cpuguy83/runwasi/config"
)

const wasmtimeModule = "github.com/bytecodealliance/wasmtime-go/v14"

var readBuildInfo = debug.ReadBuildInfo

// wasmtimeVersion is the version of wasmtime-go linked into the binary.
// It reports false when the build carries no usable module version, such
// as a development build, since a token without one would outlive upgrades.
func wasmtimeVersion() (string, bool) {
	bi, ok := readBuildInfo()
	if !ok {
		return "", false
	}
	for _, dep := range bi.Deps {
		if dep.Path != wasmtimeModule {
			continue
		}
		if dep.Replace != nil {
			dep = dep.Replace
		}
		if dep.Version == "" || dep.Version == "(devel)" {
			return "", false
		}
		return dep.Version + dep.Sum, true
	}
	return "", false
}

// fingerprint covers everything that makes compiled code unsafe to share:
// the runtime version, the target and code generation settings.
func fingerprint(cfg config.Wasmtime, version string) string {
	opt := cfg.OptLevel
	if opt == "" {
		opt = "speed"
	}
	return fmt.Sprintf("%s/%s/%s/%s opt=%s interruptible=%t fuel=%t simd=%t debug=%t",
		Name, version, runtime.GOOS, runtime.GOARCH,
		opt, cfg.Interruptible, cfg.Fuel > 0, cfg.SIMD, cfg.DebugInfo)
}

func hashFingerprint(fp string) string {
	return strconv.FormatUint(xxhash.Sum64String(fp), 10)
}

// Precompiled artifacts are the serialized module prefixed with a magic
// and the token of the engine that produced them.
var aotMagic = []byte{0x00, 'r', 'w', 'a', 'o', 't', 0x01, 0x00}

var errTokenMismatch = errors.New("precompiled for an incompatible engine")

func seal(token string, serialized []byte) []byte {
	out := make([]byte, 0, len(aotMagic)+binary.MaxVarintLen64+len(token)+len(serialized))
	out = append(out, aotMagic...)
	out = binary.AppendUvarint(out, uint64(len(token)))
	out = append(out, token...)
	return append(out, serialized...)
}

func isPrecompiled(b []byte) bool {
	return bytes.HasPrefix(b, aotMagic)
}

// unseal returns the serialized module if it was produced under token.
func unseal(token string, b []byte) ([]byte, error) {
	if !isPrecompiled(b) {
		return nil, errors.New("not a precompiled artifact")
	}
	b = b[len(aotMagic):]
	n, l := binary.Uvarint(b)
	if l <= 0 || uint64(len(b)-l) < n {
		return nil, errors.New("truncated precompiled artifact")
	}
	if string(b[l:l+int(n)]) != token {
		return nil, errTokenMismatch
	}
	return b[l+int(n):], nil
}
