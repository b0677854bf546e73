// Package consul reads mount points from a Consul KV prefix. Every key below
// the prefix holds one JSON encoded mount:
//
//	vfsindex/mounts/game = {"engine_path": "/game", "absolute_path": "/srv/game"}
package consul

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/mwantia/vfsindex/config"
	"github.com/mwantia/vfsindex/log"
)

type Source struct {
	kv     *api.KV
	prefix string
	log    *log.Logger
}

// New creates a client for cfg. The address defaults to "127.0.0.1:8500".
func New(cfg config.ConsulConfig, logger *log.Logger) (*Source, error) {
	if cfg.Prefix == "" {
		return nil, fmt.Errorf("consul prefix is required")
	}
	if logger == nil {
		logger = log.Discard()
	}

	clientConfig := api.DefaultConfig()
	clientConfig.Address = cfg.Address
	if clientConfig.Address == "" {
		clientConfig.Address = "127.0.0.1:8500"
	}
	if cfg.Token != "" {
		clientConfig.Token = cfg.Token
	}
	if cfg.Datacenter != "" {
		clientConfig.Datacenter = cfg.Datacenter
	}

	client, err := api.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}

	return &Source{
		kv:     client.KV(),
		prefix: normalizePrefix(cfg.Prefix),
		log:    logger,
	}, nil
}

// Mounts lists the mounts stored below the prefix, ordered by key.
func (s *Source) Mounts(ctx context.Context) ([]config.Mount, error) {
	pairs, _, err := s.kv.List(s.prefix, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return s.decode(pairs), nil
}

// Watch calls fn with the current mounts and again whenever the prefix
// changes, until ctx is done.
func (s *Source) Watch(ctx context.Context, fn func([]config.Mount)) error {
	var index uint64
	for {
		opts := (&api.QueryOptions{WaitIndex: index, WaitTime: 5 * time.Minute}).WithContext(ctx)
		pairs, meta, err := s.kv.List(s.prefix, opts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("Unable to list '%s': %v", s.prefix, err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		// Consul resets the index when the data center restores a snapshot.
		if meta.LastIndex < index {
			index = 0
			continue
		}
		if meta.LastIndex == index {
			continue
		}
		index = meta.LastIndex
		fn(s.decode(pairs))
	}
}

// Put stores m below the prefix under name.
func (s *Source) Put(ctx context.Context, name string, m config.Mount) error {
	value, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = s.kv.Put(&api.KVPair{
		Key:   s.prefix + strings.TrimPrefix(name, "/"),
		Value: value,
	}, (&api.WriteOptions{}).WithContext(ctx))
	return err
}

// Delete removes the mount stored under name.
func (s *Source) Delete(ctx context.Context, name string) error {
	_, err := s.kv.Delete(s.prefix+strings.TrimPrefix(name, "/"), (&api.WriteOptions{}).WithContext(ctx))
	return err
}

func (s *Source) decode(pairs api.KVPairs) []config.Mount {
	mounts, errs := decodePairs(pairs)
	for _, err := range errs {
		s.log.Warn("%v", err)
	}
	return mounts
}

// decodePairs skips folder keys and reports values that are not a valid mount.
func decodePairs(pairs api.KVPairs) ([]config.Mount, []error) {
	sorted := append(api.KVPairs(nil), pairs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var (
		mounts []config.Mount
		errs   []error
	)
	for _, pair := range sorted {
		if pair == nil || strings.HasSuffix(pair.Key, "/") {
			continue
		}

		var m config.Mount
		if err := json.Unmarshal(pair.Value, &m); err != nil {
			errs = append(errs, fmt.Errorf("invalid mount in key '%s': %w", pair.Key, err))
			continue
		}
		if m.AbsolutePath == "" {
			errs = append(errs, fmt.Errorf("invalid mount in key '%s': absolute_path is required", pair.Key))
			continue
		}
		mounts = append(mounts, m)
	}
	return mounts, errs
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
