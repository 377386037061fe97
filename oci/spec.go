// Package oci derives the runtime context of a wasm guest from an OCI
// bundle.
package oci

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opencontainers/runtime-spec/specs-go"
)

// ReadSpec reads config.json from bundle.
func ReadSpec(bundle string) (*specs.Spec, error) {
	var spec specs.Spec
	if err := readBundleConfig(bundle, "config", &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

func readBundleConfig(bundle, name string, i interface{}) error {
	data, err := os.ReadFile(filepath.Join(bundle, name+".json"))
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, i); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// Rootfs returns the host path of the bundle rootfs.
func Rootfs(spec *specs.Spec, bundle string) (string, error) {
	var rootfs string
	if spec.Root != nil {
		rootfs = spec.Root.Path
	}
	if rootfs == "" {
		if bundle == "" {
			return "", fmt.Errorf("no rootfs or bundle path specified")
		}
		return filepath.Join(bundle, "rootfs"), nil
	}
	if !filepath.IsAbs(rootfs) {
		if bundle == "" {
			return "", fmt.Errorf("relative rootfs %q without a bundle path", rootfs)
		}
		rootfs = filepath.Join(bundle, rootfs)
	}
	return rootfs, nil
}
