// Package source provides the OpenStack Swift side of a transfer: paginated
// container listing and object download.
package source

import (
	"context"
	"fmt"
	"io"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/gophercloud/gophercloud/v2/openstack/objectstorage/v1/objects"
	"github.com/gophercloud/gophercloud/v2/pagination"

	"swift2s3/pkg/config"
	"swift2s3/pkg/models"
)

// SwiftStore reads objects from an OpenStack Swift container. The underlying
// service client is safe for concurrent reads, so a single store instance is
// shared by all workers.
type SwiftStore struct {
	client *gophercloud.ServiceClient
}

// NewSwiftStore authenticates against Keystone with application credentials
// and builds an object-storage client.
func NewSwiftStore(ctx context.Context, creds config.SwiftCredentials) (*SwiftStore, error) {
	authOpts := gophercloud.AuthOptions{
		IdentityEndpoint:            creds.AuthURL,
		ApplicationCredentialID:     creds.ApplicationCredentialID,
		ApplicationCredentialSecret: creds.ApplicationCredentialSecret,
	}

	provider, err := openstack.AuthenticatedClient(ctx, authOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate with keystone: %w", err)
	}

	client, err := openstack.NewObjectStorageV1(provider, gophercloud.EndpointOpts{
		Region: creds.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	return &SwiftStore{client: client}, nil
}

// List enumerates every object in the container, draining all pages via the
// marker mechanism. Listing failures are fatal setup errors and are not
// retried here. An empty container yields an empty slice.
func (s *SwiftStore) List(ctx context.Context, container string) ([]models.SourceObject, error) {
	var result []models.SourceObject

	pager := objects.List(s.client, container, objects.ListOpts{})

	err := pager.EachPage(ctx, func(_ context.Context, page pagination.Page) (bool, error) {
		infos, err := objects.ExtractInfo(page)
		if err != nil {
			return false, err
		}

		for _, info := range infos {
			result = append(result, models.SourceObject{
				Key:          info.Name,
				Size:         info.Bytes,
				LastModified: info.LastModified,
			})
		}

		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list container %s: %w", container, err)
	}

	return result, nil
}

// Download opens a stream over the full content of one object. The caller
// owns the returned body and must close it.
func (s *SwiftStore) Download(ctx context.Context, container, key string) (io.ReadCloser, error) {
	result := objects.Download(ctx, s.client, container, key, nil)
	if result.Err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, result.Err)
	}

	return result.Body, nil
}
