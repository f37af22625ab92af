package rewrite

import (
	"fmt"
	"maps"
	"slices"

	"github.com/cmmoran/composeiso/internal/manifest"
	"github.com/cmmoran/composeiso/internal/token"
)

// Isolation attaches every service of a manifest to one external network
// instead of renaming services and networks. The network is expected to be
// created by the deployer before the stack comes up.
type Isolation struct {
	// Network is both the key and the name of the external network.
	Network string
	// SuffixVolumes additionally runs the volume pass with Network as token.
	SuffixVolumes bool
}

// Isolate returns a copy of doc prepared for an isolated deployment. Service,
// network, config and secret names are left alone. Services that share
// another container's network stack through network_mode are not attached.
func (r *Rewriter) Isolate(doc manifest.Manifest, iso Isolation) (manifest.Manifest, *Result, error) {
	if err := token.Validate(iso.Network); err != nil {
		return nil, nil, fmt.Errorf("isolation network: %w", err)
	}
	out, err := manifest.Clone(doc)
	if err != nil {
		return nil, nil, err
	}
	if out == nil {
		out = manifest.Manifest{}
	}
	res := &Result{
		Token:     iso.Network,
		Tables:    map[manifest.Kind]RenameTable{},
		Preserved: map[manifest.Kind][]string{},
	}
	if iso.SuffixVolumes {
		var table RenameTable
		out, table, err = r.rewriteNamespace(out, manifest.KindVolume, iso.Network)
		if err != nil {
			return nil, nil, err
		}
		res.Tables[manifest.KindVolume] = table
		if kept := r.keptNames(out, manifest.KindVolume); len(kept) > 0 {
			res.Preserved[manifest.KindVolume] = kept
		}
	}

	out = addExternalNetwork(out, iso.Network)
	out = attachNetwork(out, iso.Network)
	return out, res, nil
}

func addExternalNetwork(doc manifest.Manifest, name string) manifest.Manifest {
	nets, _ := doc.Registry(manifest.KindNetwork)
	nets = maps.Clone(nets)
	if nets == nil {
		nets = map[string]any{}
	}
	nets[name] = map[string]any{"name": name, "external": true}
	doc[manifest.KindNetwork.Key()] = nets
	return doc
}

func attachNetwork(doc manifest.Manifest, name string) manifest.Manifest {
	svcs, ok := doc.Services()
	if !ok {
		return doc
	}
	for _, svcName := range slices.Sorted(maps.Keys(svcs)) {
		svc, ok := svcs[svcName].(map[string]any)
		if !ok {
			continue
		}
		if _, shared := svc["network_mode"]; shared {
			continue
		}
		switch nets := svc["networks"].(type) {
		case nil:
			svc["networks"] = []any{name}
		case []any:
			if !slices.Contains(nets, any(name)) {
				svc["networks"] = append(slices.Clip(nets), name)
			}
		case map[string]any:
			if _, ok := nets[name]; !ok {
				nets[name] = nil
			}
		}
	}
	return doc
}
