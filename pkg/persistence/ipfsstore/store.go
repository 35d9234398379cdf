// Package ipfsstore persists final merged summaries to IPFS as
// content-addressed blobs. It is the long-term archival counterpart to
// pkg/persistence/memory and pkg/persistence/postgres, which hold the
// structured PartialResult/MergeResult rows a running pipeline queries;
// this package exists so the summary text itself can be handed to callers
// who only want a CID.
package ipfsstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	shell "github.com/ipfs/go-ipfs-api"
)

// Store wraps an IPFS HTTP API shell for storing and retrieving summary
// content by CID.
type Store struct {
	shell *shell.Shell
}

// New connects to the IPFS HTTP API at apiURL ("" defaults to the local
// daemon) and verifies it is reachable.
func New(apiURL string) (*Store, error) {
	if apiURL == "" {
		apiURL = "localhost:5001"
	}

	sh := shell.NewShell(apiURL)
	if _, err := sh.ID(); err != nil {
		return nil, fmt.Errorf("ipfsstore: failed to connect to IPFS: %w", err)
	}

	return &Store{shell: sh}, nil
}

// Store adds content to IPFS and returns its CID.
func (s *Store) Store(ctx context.Context, content string) (string, error) {
	if content == "" {
		return "", errors.New("ipfsstore: content cannot be empty")
	}

	cid, err := s.shell.Add(bytes.NewReader([]byte(content)))
	if err != nil {
		return "", fmt.Errorf("ipfsstore: failed to store content: %w", err)
	}
	return cid, nil
}

// Retrieve fetches the content stored under cid.
func (s *Store) Retrieve(ctx context.Context, cid string) (string, error) {
	if cid == "" {
		return "", errors.New("ipfsstore: cid cannot be empty")
	}

	reader, err := s.shell.Cat(cid)
	if err != nil {
		return "", fmt.Errorf("ipfsstore: failed to retrieve content: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("ipfsstore: failed to read content: %w", err)
	}
	return string(data), nil
}

// Pin requests that the IPFS node keep cid beyond normal garbage collection.
// Nothing in the pipeline or the CLI calls it; pinning is up to the caller.
func (s *Store) Pin(ctx context.Context, cid string) error {
	if err := s.shell.Pin(cid); err != nil {
		return fmt.Errorf("ipfsstore: failed to pin %s: %w", cid, err)
	}
	return nil
}
