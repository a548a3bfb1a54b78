package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// hostsFile mirrors the published directory-host inventory format: a map of
// host URLs to metadata we do not otherwise use.
type hostsFile struct {
	PDSes map[string]struct {
		InviteCodeRequired bool   `json:"inviteCodeRequired"`
		Version            string `json:"version"`
	} `json:"pdses"`
}

// LoadHosts reads the host inventory and returns the host URLs, excluding
// any listed in skip (the entry service is listed but not crawlable).
func LoadHosts(path string, skip ...string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hosts file %s: %w", path, err)
	}
	var inv hostsFile
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("decode hosts file %s: %w", path, err)
	}

	skipped := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		skipped[s] = struct{}{}
	}

	hosts := make([]string, 0, len(inv.PDSes))
	for host := range inv.PDSes {
		if _, ok := skipped[host]; ok {
			continue
		}
		hosts = append(hosts, host)
	}
	// Map iteration order is random; keep the inventory order stable so
	// checkpointed host indexes stay meaningful across restarts.
	sort.Strings(hosts)
	return hosts, nil
}
