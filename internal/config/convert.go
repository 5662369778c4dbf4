package config

import "github.com/usgs/vdx/internal/source"

func (e SourceEntry) Descriptor() source.Descriptor {
	params := make(source.Config, len(e.Params))
	for k, v := range e.Params {
		params[k] = v
	}
	return source.Descriptor{
		Name:        e.Name,
		Kind:        e.Kind,
		Description: e.Description,
		Config:      params,
	}
}

// RegisterSources adds every configured source to r. Kinds are checked
// against r's factories as each descriptor is registered.
func RegisterSources(r *source.Registry, entries []SourceEntry) error {
	for _, e := range entries {
		if err := r.Register(e.Descriptor()); err != nil {
			return err
		}
	}
	return nil
}
