package content

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// FetchPath is the HTTP path convention creator nodes use to serve content
// by multihash, mirroring the original system's content-fetch endpoint.
const FetchPath = "/content/"

// DefaultPerPeerTimeout is the per-attempt timeout for a single peer fetch.
// Deliberately flat rather than scaled by declared file size (spec.md §9's
// Open Question): scaling would require plumbing a size hint through every
// caller for a timeout that, empirically, almost never fires below 1s on
// the original system's LAN-adjacent peer topology.
const DefaultPerPeerTimeout = 1 * time.Second

// Fetcher fetches content by multihash from one of a list of candidate
// peer endpoints, trying each in order until one succeeds, grounded on the
// teacher's httpClientTransport round-robin-with-retry shape (generalized
// here from "pick the next endpoint and retry the same one" into "try every
// candidate peer once, first success wins").
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher with perPeerTimeout bounding each individual
// attempt (not the call overall). perPeerTimeout<=0 uses DefaultPerPeerTimeout.
func NewFetcher(perPeerTimeout time.Duration) *Fetcher {
	if perPeerTimeout <= 0 {
		perPeerTimeout = DefaultPerPeerTimeout
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: perPeerTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// Fetch tries peers in order, returning the first successfully fetched and
// hash-verified payload. It returns the last error seen if every peer
// fails.
func (f *Fetcher) Fetch(peers []string, multihash string) ([]byte, error) {
	if len(peers) == 0 {
		return nil, fmt.Errorf("content: no peers supplied for %s", multihash)
	}

	var lastErr error
	for _, peer := range peers {
		data, err := f.fetchOne(peer, multihash)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("content: all peers failed for %s: %w", multihash, lastErr)
}

func (f *Fetcher) fetchOne(peerEndpoint, multihash string) ([]byte, error) {
	return f.get(peerEndpoint+FetchPath+multihash, multihash)
}

// FetchInDir tries peers in order for a file addressed by a shared
// directory multihash plus a file name within it (image files with
// multiple resolutions), rather than by its own multihash alone. The
// fetched bytes are still verified against expectedMultihash, the
// individual file's own hash, not the directory's.
func (f *Fetcher) FetchInDir(peers []string, dirMultihash, fileName, expectedMultihash string) ([]byte, error) {
	if len(peers) == 0 {
		return nil, fmt.Errorf("content: no peers supplied for %s/%s", dirMultihash, fileName)
	}

	var lastErr error
	for _, peer := range peers {
		data, err := f.fetchOneInDir(peer, dirMultihash, fileName, expectedMultihash)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("content: all peers failed for %s/%s: %w", dirMultihash, fileName, lastErr)
}

func (f *Fetcher) fetchOneInDir(peerEndpoint, dirMultihash, fileName, expectedMultihash string) ([]byte, error) {
	return f.get(peerEndpoint+FetchPath+dirMultihash+"/"+fileName, expectedMultihash)
}

func (f *Fetcher) get(url, expectedMultihash string) ([]byte, error) {
	resp, err := f.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("content: %s returned %s", url, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("content: read body from %s: %w", url, err)
	}

	if got := Multihash(data); got != expectedMultihash {
		return nil, &ErrHashMismatch{Multihash: expectedMultihash, Got: got}
	}
	return data, nil
}
