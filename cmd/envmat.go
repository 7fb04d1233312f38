package cmd

import (
	"fmt"
	"strings"

	"github.com/omnicli/omni/internal/envstore"
	"github.com/omnicli/omni/internal/operation"
	"github.com/omnicli/omni/internal/step"
)

// resolvedVersions converts each entry's reported InstalledResource (when
// it implements step.ResourceReporter) into envstore's fingerprint tuple
// shape, in pipeline order (order is part of what env_version_id hashes,
// so this must walk entries in declared order, not map iteration).
func resolvedVersions(entries []operation.Entry) []envstore.ResolvedVersion {
	var out []envstore.ResolvedVersion
	for _, e := range entries {
		reporter, ok := e.Step.(step.ResourceReporter)
		if !ok {
			continue
		}
		ir, ok := reporter.InstalledResource()
		if !ok {
			continue
		}
		out = append(out, resolvedVersionFor(ir))
	}
	return out
}

// installedResources collects every step's reported InstalledResource, in
// pipeline order, for cache.Cache.LinkRequiredBy once an env_version_id
// exists.
func installedResources(entries []operation.Entry) []step.InstalledResource {
	var out []step.InstalledResource
	for _, e := range entries {
		reporter, ok := e.Step.(step.ResourceReporter)
		if !ok {
			continue
		}
		if ir, ok := reporter.InstalledResource(); ok {
			out = append(out, ir)
		}
	}
	return out
}

func resolvedVersionFor(ir step.InstalledResource) envstore.ResolvedVersion {
	key := ir.CacheKindName
	version := ""
	if n := len(ir.KeyValues); n > 0 {
		version = fmt.Sprint(ir.KeyValues[n-1])
		if n > 1 {
			parts := make([]string, 0, n-1)
			for _, v := range ir.KeyValues[:n-1] {
				parts = append(parts, fmt.Sprint(v))
			}
			key = ir.CacheKindName + ":" + strings.Join(parts, ":")
		}
	}
	return envstore.ResolvedVersion{Key: key, Version: version}
}

// pathContributions converts a step.EnvBuilder's path prepends to
// envstore's on-disk shape, preserving pipeline order.
func pathContributions(paths []step.PathPrepend) []envstore.PathContribution {
	out := make([]envstore.PathContribution, len(paths))
	for i, p := range paths {
		out[i] = envstore.PathContribution{Dir: p.Dir, Priority: p.Priority}
	}
	return out
}

// envVarContributions converts a step.EnvBuilder's mutations to envstore's
// on-disk shape, preserving pipeline order (spec §4.4's ordered_env_vars).
func envVarContributions(muts []step.EnvVarMutation) []envstore.EnvVarContribution {
	out := make([]envstore.EnvVarContribution, len(muts))
	for i, m := range muts {
		out[i] = envstore.EnvVarContribution{Name: m.Name, Op: m.Op.String(), Value: m.Value}
	}
	return out
}

func joinNonEmpty(sep string, parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, sep)
}
