// Package config implements component I: the JSON configuration document
// loader and alias/transfer-descriptor resolution.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/standalone-transfer/xfer/internal/backend"
	"github.com/standalone-transfer/xfer/internal/registry"
	"github.com/standalone-transfer/xfer/internal/xfererr"
)

// Descriptor names the registered backend variant backing a transfer.
// "mod"/"cls" are kept as the JSON field names for wire-format fidelity
// with the original three-section document even though this Go rewrite
// resolves them through the registry (component L) rather than a dynamic
// module import.
type Descriptor struct {
	Mod string `json:"mod"`
	Cls string `json:"cls"`
}

// transferName is the registry key a Descriptor resolves to: by
// convention "cls" carries it, falling back to "mod" if "cls" is absent.
func (d Descriptor) transferName() string {
	if d.Cls != "" {
		return d.Cls
	}
	return d.Mod
}

// Document is the top-level three-section JSON configuration file
// (SPEC_FULL.md §6), loaded by the CLI before any transfer starts.
type Document struct {
	Configs   map[string]json.RawMessage `json:"configs"`
	Transfers map[string]Descriptor      `json:"transfers"`
	Bar       map[string]Descriptor      `json:"bar"`
}

// Load reads and parses a configuration document from path.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &doc, nil
}

// aliasConfig is the common envelope every alias's config blob carries;
// variant-specific fields are re-unmarshaled by the resolved Factory
// directly from the same raw bytes.
type aliasConfig struct {
	Transfer string `json:"transfer"`
}

// TransferName resolves alias to its registered transfer name (the
// registry key its Factory is looked up under), without constructing a
// Backend — used to validate a copy-mode source/destination pair before
// either side is actually authorized.
func (doc *Document) TransferName(alias string) (string, error) {
	raw, ok := doc.Configs[alias]
	if !ok {
		return "", fmt.Errorf("config: unknown alias %q", alias)
	}
	var ac aliasConfig
	if err := json.Unmarshal(raw, &ac); err != nil {
		return "", fmt.Errorf("config: alias %q: %w", alias, err)
	}
	if ac.Transfer == "" {
		return "", fmt.Errorf("config: alias %q missing \"transfer\" field", alias)
	}
	transferName := ac.Transfer
	if desc, ok := doc.Transfers[ac.Transfer]; ok {
		transferName = desc.transferName()
	}
	return transferName, nil
}

// Resolve looks up alias in doc.Configs, determines its transfer variant,
// finds the matching registered Factory, and constructs a Backend for
// path with args. This is the Go-native form of the original's
// "alias → config → transfer descriptor → concrete backend class"
// resolution chain.
func (doc *Document) Resolve(ctx context.Context, alias, path string, args backend.Args) (backend.Backend, error) {
	raw, ok := doc.Configs[alias]
	if !ok {
		return nil, fmt.Errorf("config: unknown alias %q", alias)
	}
	var ac aliasConfig
	if err := json.Unmarshal(raw, &ac); err != nil {
		return nil, fmt.Errorf("config: alias %q: %w", alias, err)
	}
	if ac.Transfer == "" {
		return nil, fmt.Errorf("config: alias %q missing \"transfer\" field", alias)
	}

	transferName := ac.Transfer
	if desc, ok := doc.Transfers[ac.Transfer]; ok {
		transferName = desc.transferName()
	}

	factory, ok := registry.Lookup(transferName)
	if !ok {
		return nil, fmt.Errorf("config: alias %q: transfer %q is not registered (known: %v)", alias, transferName, registry.Names())
	}

	return factory(ctx, raw, path, args)
}

// ResolveCopyPair validates that srcAlias and dstAlias name the same
// transfer variant before either is resolved — copy mode only makes sense
// when source and destination are the same provider, since it asks that
// provider to copy server-side rather than streaming bytes through this
// process.
func (doc *Document) ResolveCopyPair(srcAlias, dstAlias string) error {
	srcName, err := doc.TransferName(srcAlias)
	if err != nil {
		return err
	}
	dstName, err := doc.TransferName(dstAlias)
	if err != nil {
		return err
	}
	if srcName != dstName {
		return fmt.Errorf("%w: source is %q, destination is %q", xfererr.ErrIncompatibleCopy, srcName, dstName)
	}
	return nil
}
