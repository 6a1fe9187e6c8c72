package config

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/outscale/bsud/pkg/bsuerrors"
)

const metadataBaseURL = "http://169.254.169.254/latest/meta-data/"

// VMIdentity is the VM's cloud identity as discovered from instance
// metadata: subregion (availability zone), region (subregion minus its
// last character), and the VM's own instance id.
type VMIdentity struct {
	Subregion string
	Region    string
	VMID      string
}

// DiscoverVM queries the local instance metadata service for the VM's
// availability zone and instance id.
func DiscoverVM(ctx context.Context) (VMIdentity, error) {
	client := &http.Client{Timeout: 5 * time.Second}

	subregion, err := fetchMetadata(ctx, client, "placement/availability-zone")
	if err != nil {
		return VMIdentity{}, err
	}
	if len(subregion) == 0 {
		return VMIdentity{}, bsuerrors.New(bsuerrors.CloudUnavailable, "config.DiscoverVM", errEmptySubregion)
	}
	region := subregion[:len(subregion)-1]

	vmID, err := fetchMetadata(ctx, client, "instance-id")
	if err != nil {
		return VMIdentity{}, err
	}

	return VMIdentity{Subregion: subregion, Region: region, VMID: vmID}, nil
}

func fetchMetadata(ctx context.Context, client *http.Client, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataBaseURL+path, nil)
	if err != nil {
		return "", bsuerrors.New(bsuerrors.CloudUnavailable, "config.fetchMetadata", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", bsuerrors.New(bsuerrors.CloudUnavailable, "config.fetchMetadata", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", bsuerrors.New(bsuerrors.CloudUnavailable, "config.fetchMetadata", err)
	}
	return strings.TrimSpace(string(body)), nil
}

type emptySubregionErr struct{}

func (emptySubregionErr) Error() string { return "metadata returned an empty availability zone" }

var errEmptySubregion = emptySubregionErr{}
