package agents

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/modforge/moduled/internal/bundle"
)

// Resolver maps a profile name to the Behavior that handles it. Built-ins are
// indexed once at construction by the type id each implementation reports;
// lookups against that set never touch the filesystem. Bundle resolutions are
// cached per (bundlePath, profile) for the process lifetime.
type Resolver struct {
	builtins map[string]Behavior
	loader   Loader

	mu    sync.RWMutex
	cache map[string]Behavior
}

func NewResolver(loader Loader, builtins ...Behavior) *Resolver {
	index := make(map[string]Behavior, len(builtins))
	for _, behavior := range builtins {
		index[behavior.TypeID()] = behavior
	}
	return &Resolver{builtins: index, loader: loader, cache: map[string]Behavior{}}
}

// Resolve returns the behavior for profileName. A built-in wins outright;
// otherwise bundlePath must point at a bundle whose manifest declares the
// profile. A bundle whose implementation reports a type id other than the
// declared agent name fails with an identity-mismatch LoaderError — it is
// never silently replaced with a built-in.
func (r *Resolver) Resolve(profileName, bundlePath string) (Behavior, error) {
	profileName = strings.TrimSpace(profileName)
	if profileName == "" {
		return nil, fmt.Errorf("profile name is required")
	}
	if behavior, ok := r.builtins[profileName]; ok {
		return behavior, nil
	}
	if strings.TrimSpace(bundlePath) == "" {
		return nil, fmt.Errorf("profile %s is not built in and no bundle path was given", profileName)
	}

	key := bundlePath + "\x00" + profileName
	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	behavior, err := r.loadFromBundle(profileName, bundlePath)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = behavior
	r.mu.Unlock()
	return behavior, nil
}

func (r *Resolver) loadFromBundle(profileName, bundlePath string) (Behavior, error) {
	manifest, err := bundle.ReadManifest(bundlePath)
	if err != nil {
		return nil, &LoaderError{Kind: KindManifestEntryMissing, Profile: profileName, BundlePath: bundlePath, Err: err}
	}
	profile, ok := manifest.Profiles[profileName]
	if !ok {
		return nil, &LoaderError{
			Kind: KindManifestEntryMissing, Profile: profileName, BundlePath: bundlePath,
			Err: fmt.Errorf("manifest declares no profile %s", profileName),
		}
	}

	decl := manifest.FindAgent(profile.Agent)
	implPath := decl.ImplementationFile(bundlePath)
	if _, err := os.Stat(implPath); err != nil {
		return nil, &LoaderError{Kind: KindModuleFileMissing, Profile: profileName, BundlePath: bundlePath, Err: err}
	}

	behavior, err := r.loader.Load(implPath)
	if err != nil {
		if errors.Is(err, ErrSymbolMissing) {
			return nil, &LoaderError{Kind: KindSymbolMissing, Profile: profileName, BundlePath: bundlePath, Err: err}
		}
		return nil, fmt.Errorf("load agent for profile %s: %w", profileName, err)
	}
	if behavior.TypeID() != profile.Agent {
		return nil, &LoaderError{
			Kind: KindIdentityMismatch, Profile: profileName, BundlePath: bundlePath,
			Err: fmt.Errorf("implementation reports type id %q, manifest declares %q", behavior.TypeID(), profile.Agent),
		}
	}
	return behavior, nil
}
